package status

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinicaltrials-downloader/internal/middleware"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

// Server is the optional local listener that shows progress while a long
// download runs.
type Server struct {
	tracker *Tracker
	reg     *prometheus.Registry
	log     logr.Logger
	srv     *http.Server
}

func NewServer(tracker *Tracker, log logr.Logger) *Server {
	reg := prometheus.NewRegistry()
	tracker.Register(reg)

	s := &Server{tracker: tracker, reg: reg, log: log}
	s.srv = &http.Server{
		Handler:           middleware.RequestLog(log, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routes without a listener, for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if err := dashboardTmpl.ExecuteTemplate(w, "dashboard", s.tracker.Snapshot()); err != nil {
		http.Error(w, "Template Execute Error: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.tracker.Snapshot()); err != nil {
		s.log.Error(err, "encode progress")
	}
}

// Start begins serving on addr and returns without blocking.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("status listener started", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error(err, "status listener failed")
		}
	}()
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
