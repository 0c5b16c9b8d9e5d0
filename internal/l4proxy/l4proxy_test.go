package l4proxy_test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashproxy/internal/l4proxy"
)

type singlePicker struct{ target string }

func (s singlePicker) Pick(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	return s.target, true
}
func (s singlePicker) DebugSnapshot() string { return "" }

type emptyPicker struct{}

func (emptyPicker) Pick([]string) (string, bool) { return "", false }
func (emptyPicker) DebugSnapshot() string        { return "" }

// startEchoBackend runs a tiny TCP echo server and returns its address and a
// stop func.
func startEchoBackend(t *testing.T) (addr string, stop func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()

	return lis.Addr().String(), func() { lis.Close() }
}

func TestProxy_RoundTripsBytes(t *testing.T) {
	backendAddr, stopBackend := startEchoBackend(t)
	defer stopBackend()

	p := l4proxy.New([]string{backendAddr}, singlePicker{target: backendAddr})

	front, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer front.Close()

	go p.Serve(front)

	conn, err := net.Dial("tcp", front.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("hello backend")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf)
}

func TestProxy_NoBackendAvailable_ClosesClientConnection(t *testing.T) {
	p := l4proxy.New(nil, emptyPicker{})

	front, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer front.Close()

	go p.Serve(front)

	conn, err := net.Dial("tcp", front.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestProxy_BackendDialFailure_ClosesClientConnection(t *testing.T) {
	// Port 1 on loopback should refuse immediately in the test sandbox.
	deadBackend := "127.0.0.1:1"
	p := l4proxy.New([]string{deadBackend}, singlePicker{target: deadBackend})

	front, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer front.Close()

	go p.Serve(front)

	conn, err := net.Dial("tcp", front.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}

func TestProxy_ClientHalfCloses_BackendSeesEOF(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	backendSawEOF := make(chan struct{}, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
		backendSawEOF <- struct{}{}
	}()

	p := l4proxy.New([]string{lis.Addr().String()}, singlePicker{target: lis.Addr().String()})

	front, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer front.Close()
	go p.Serve(front)

	conn, err := net.Dial("tcp", front.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	tcpConn := conn.(*net.TCPConn)
	_, err = tcpConn.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, tcpConn.CloseWrite())

	select {
	case <-backendSawEOF:
	case <-time.After(2 * time.Second):
		t.Fatal("backend never observed EOF after client half-close")
	}
}
