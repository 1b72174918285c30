package metrics

import (
	"context"
	"encoding/json"
	"net/http"
)

// Server exposes /metrics for Prometheus scraping and a bare /healthz,
// run on its own listener separate from any future API surface.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics server bound to addr. It does not start
// listening until Start is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", healthzHandler)

	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the server, blocking until it stops or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
