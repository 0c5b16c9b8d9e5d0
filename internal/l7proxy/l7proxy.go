// Package l7proxy implements the HTTP reverse-proxy forwarder of spec §4.6.
// Unlike the L4 splice, forwarding here is done by hand rather than through
// net/http/httputil.ReverseProxy: each request gets its own bounded-timeout
// attempt against a backend, and a failed attempt retries against the
// remaining candidates instead of failing the request outright.
package l7proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dashproxy/internal/middleware"
	"dashproxy/internal/strategy"
)

// attemptTimeout bounds a single backend attempt. A request that exhausts
// the candidate set takes at most len(backends) * attemptTimeout.
const attemptTimeout = 5 * time.Second

// hopByHopHeaders are stripped from both the outgoing request and the
// incoming response before forwarding, per spec §4.6.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Te",
	"Trailer",
}

// Gateway is the L7 http.Handler. It is safe for concurrent use.
type Gateway struct {
	backends []string
	picker   strategy.Picker
	client   *http.Client
	log      *slog.Logger
}

// New returns a Gateway that forwards to one of backends, chosen per attempt
// by picker.
func New(backends []string, picker strategy.Picker) *Gateway {
	return &Gateway{
		backends: backends,
		picker:   picker,
		client:   &http.Client{Timeout: attemptTimeout},
		log:      slog.Default(),
	}
}

// ServeHTTP satisfies http.Handler.
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	candidates := append([]string(nil), gw.backends...)

	for len(candidates) > 0 {
		backend, ok := gw.picker.Pick(candidates)
		if !ok {
			break
		}
		middleware.RecordUpstream(r.Context(), backend)

		resp, err := gw.attempt(r, backend, body)
		if err != nil {
			gw.log.Error("backend attempt failed, retrying",
				"backend", backend,
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			candidates = remove(candidates, backend)
			continue
		}

		forwardResponse(w, resp)
		return
	}

	http.Error(w, "No available servers", http.StatusBadGateway)
}

// attempt issues one proxied request against backend and returns its
// response. The caller is responsible for closing resp.Body.
func (gw *Gateway) attempt(r *http.Request, backend string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, "http://"+backend+r.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.Host = backend
	stripHopByHop(req.Header)

	return gw.client.Do(req)
}

// forwardResponse copies resp's status, headers (minus hop-by-hop) and body
// to w.
func forwardResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	stripHopByHop(resp.Header)
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func stripHopByHop(h http.Header) {
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}
}

func remove(candidates []string, target string) []string {
	out := make([]string, 0, len(candidates)-1)
	removed := false
	for _, c := range candidates {
		if !removed && c == target {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}
