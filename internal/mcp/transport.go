package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aiswarm/swarmd/internal/shared"
)

// envelope is the wire shape of one tool invocation, read from stdin or
// an HTTP POST body: {"tool": "...", "args": {...}, "id": "..."}.
type envelope struct {
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// response is the wire shape written back: {"id": "...", "result": {...}}.
type response struct {
	ID     string `json:"id"`
	Result Result `json:"result"`
}

// ServeStdio reads newline-delimited envelopes from r and writes
// newline-delimited responses to w until r is exhausted or ctx is done.
// This is the server side of the teacher's StdioTransport idiom
// (bufio-framed, newline-delimited JSON) — here the process owns
// stdin/stdout directly instead of piping a subprocess.
func ServeStdio(ctx context.Context, h *Handlers, r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)
	defer writer.Flush()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read stdio envelope: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			logger.Error("malformed stdio envelope", "error", err)
			continue
		}

		traceID := shared.NewTraceID()
		callCtx := shared.WithTraceID(ctx, traceID)
		result := h.Dispatch(callCtx, env.Tool, env.Args)
		out, err := json.Marshal(response{ID: env.ID, Result: result})
		if err != nil {
			logger.Error("marshal stdio response", "trace_id", traceID, "error", err)
			continue
		}
		if _, err := writer.Write(append(out, '\n')); err != nil {
			return fmt.Errorf("write stdio response: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return fmt.Errorf("flush stdio response: %w", err)
		}
	}
}

// HTTPServer exposes every tool as POST /tools/{name} over a loopback
// listener, tolerating long-poll handlers held open up to 10 minutes per
// spec §6.
type HTTPServer struct {
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewHTTPServer builds an HTTP transport around handlers. It does not
// start listening until Listen is called.
func NewHTTPServer(h *Handlers, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &HTTPServer{handlers: h, logger: logger}
	mux.HandleFunc("/tools/", s.handleTool)
	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 0, // long-poll tools hold the connection open deliberately
		IdleTimeout: 10 * time.Minute,
	}
	return s
}

func (s *HTTPServer) handleTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tool := r.URL.Path[len("/tools/"):]
	var args map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeJSON(w, http.StatusBadRequest, failure(fmt.Sprintf("invalid request body: %s", err)))
			return
		}
	}

	traceID := shared.NewTraceID()
	ctx := shared.WithTraceID(r.Context(), traceID)
	w.Header().Set("X-Trace-Id", traceID)
	result := s.handlers.Dispatch(ctx, tool, args)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", "error", err)
	}
}

// Listen binds the first available loopback port in [startPort, endPort]
// and serves until ctx is cancelled, returning the bound port.
func (s *HTTPServer) Listen(ctx context.Context, startPort, endPort int) (int, error) {
	var ln net.Listener
	var err error
	var port int
	for port = startPort; port <= endPort; port++ {
		ln, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			break
		}
	}
	if ln == nil {
		return 0, fmt.Errorf("no available loopback port in [%d, %d]: %w", startPort, endPort, err)
	}

	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http transport serve failed", "error", err)
		}
	}()

	return port, nil
}
