// Package l4proxy implements the opaque L4 TCP splice forwarder of spec §4.5:
// an accept loop plus a bidirectional byte pump between each client
// connection and its chosen backend, with half-close propagation.
package l4proxy

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"dashproxy/internal/strategy"
)

const bufferSize = 16 * 1024

// Proxy is the L4 forwarder. It holds the fixed backend set and the
// selection strategy; both are read-only after construction.
type Proxy struct {
	backends []string
	picker   strategy.Picker
	log      *slog.Logger
}

// New returns a Proxy that forwards to one of backends, chosen by picker.
func New(backends []string, picker strategy.Picker) *Proxy {
	return &Proxy{backends: backends, picker: picker, log: slog.Default()}
}

// Serve runs the accept loop on lis until Accept fails. Closing lis from
// another goroutine on shutdown ends the loop and Serve returns nil. It
// never returns while accept succeeds — any other listener error
// propagates to the caller, who is expected to treat it as process-ending
// per spec §7.
func (p *Proxy) Serve(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go p.handleConn(conn)
	}
}

func (p *Proxy) handleConn(client net.Conn) {
	defer client.Close()

	backend, ok := p.picker.Pick(p.backends)
	if !ok {
		p.log.Error("no backend available, dropping client", "remote", client.RemoteAddr())
		return
	}

	upstream, err := net.Dial("tcp", backend)
	if err != nil {
		p.log.Error("backend connect failed, dropping client",
			"backend", backend,
			"remote", client.RemoteAddr(),
			"error", err,
		)
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go pump(client, upstream, done)
	go pump(upstream, client, done)
	// Either direction completing means the connection is done; the
	// surviving pump's goroutine exits when its read/write fails against the
	// now-closed peer, which happens once handleConn returns and the
	// deferred Close calls run.
	<-done
}

// pump copies bytes from src to dst using a fixed-size buffer, one 16 KiB
// window at a time. On orderly close (zero-byte read) it shuts down dst's
// write half so the peer observes EOF on its own read. On any other error it
// closes dst outright. Both directions of a connection run independently;
// there is no ordering guarantee between them.
func pump(src, dst net.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	buf := make([]byte, bufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				closeConn(dst)
				return
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				closeConn(dst)
				return
			}
			halfClose(dst)
			return
		}
	}
}

// halfClose shuts down dst's write half, propagating an orderly close to the
// peer without tearing down the connection the other pump may still be using.
func halfClose(dst net.Conn) {
	if tc, ok := dst.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
		return
	}
	_ = dst.Close()
}

func closeConn(c net.Conn) {
	_ = c.Close()
}
