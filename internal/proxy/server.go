// Package proxy exposes the tunneled remote file server over local HTTP,
// streaming response bodies without buffering them in memory.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/treykane/data-proxy/internal/model"
	"github.com/treykane/data-proxy/internal/util"
)

// Server handles /data/{path} and /health. It holds only read-only state
// (the resolved connection spec and the upstream base URL), so overlapping
// requests need no synchronization.
type Server struct {
	spec     model.ConnectionSpec
	upstream string
	client   *http.Client
	router   *mux.Router
}

// NewServer creates a proxy server forwarding to the tunnel's local endpoint.
func NewServer(spec model.ConnectionSpec, localPort int) *Server {
	s := &Server{
		spec:     spec,
		upstream: fmt.Sprintf("http://127.0.0.1:%d", localPort),
		// No overall client timeout: large downloads stream for as long as
		// they need. Per-chunk progress is bounded by the transport's
		// response header timeout and the caller's own patience.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
	r := mux.NewRouter()
	r.HandleFunc("/data/{path:.*}", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Use(requestLog)
	s.router = r
	return s
}

// Handler returns the http.Handler serving the proxy surface.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	url := s.upstream + "/" + path
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if r.Context().Err() != nil {
			// Caller went away; nothing left to answer.
			return
		}
		slog.Error("upstream request failed", "path", path, "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	// Push the status line and headers out now. The first body read below can
	// block for as long as the upstream takes to produce a byte, and the
	// caller must not sit without a response until then.
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	streamBody(w, resp.Body)
}

// copyHeaders forwards upstream headers, dropping Content-Length: the body is
// re-chunked on the way through, so the original length framing no longer
// applies.
func copyHeaders(dst, src http.Header) {
	for k, vals := range src {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

// streamBody copies the upstream body to the client in bounded chunks,
// flushing after each one so bytes reach the caller as they arrive. A write
// failure means the caller disconnected; the upstream body is released via
// the deferred Close and the request context cancellation.
func streamBody(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, util.ProxyCopyBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				slog.Warn("upstream stream interrupted", "error", err)
			}
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Reports the configured connection, not tunnel liveness: a dead tunnel
	// still answers OK here and surfaces as a 500 on the next /data request.
	resp := map[string]any{
		"status": "OK",
		"connection": map[string]any{
			"hostname":         s.spec.Hostname,
			"username":         s.spec.Username,
			"using_ssh_config": s.spec.FromAlias,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// requestLog tags every request with an ID and logs method, path and timing.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request served",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
