// Package api exposes the live analysis state over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"netlens/internal/config"
	"netlens/internal/export"
	"netlens/internal/filter"
	"netlens/internal/model"
	"netlens/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server serves snapshots of the pipeline state: packet history, live
// connections, aggregate statistics and the topology graph. It also owns the
// display filter endpoints and the Prometheus scrape handler.
type Server struct {
	pipe *pipeline.Pipeline
	srv  *http.Server
}

// NewServer builds the HTTP server around the given pipeline.
func NewServer(cfg config.APIConfig, pipe *pipeline.Pipeline) *Server {
	s := &Server{pipe: pipe}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/packets", s.packetsHandler).Methods("GET")
	r.HandleFunc("/api/v1/connections", s.connectionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/api/v1/topology", s.topologyHandler).Methods("GET")
	r.HandleFunc("/api/v1/filters", s.setFiltersHandler).Methods("POST")
	r.HandleFunc("/api/v1/filters", s.clearFiltersHandler).Methods("DELETE")
	r.HandleFunc("/api/v1/filters", s.getFiltersHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.WithField("addr", s.srv.Addr).Info("API server starting")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("API server shutting down")
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode API response")
	}
}

func (s *Server) packetsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = n
	}
	packets := s.pipe.Packets(limit)
	out := make([]export.PacketView, 0, len(packets))
	for _, rec := range packets {
		out = append(out, export.NewPacketView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) connectionsHandler(w http.ResponseWriter, r *http.Request) {
	conns := s.pipe.Connections()
	out := make([]export.ConnectionView, 0, len(conns))
	for i := range conns {
		out = append(out, export.NewConnectionView(&conns[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipe.Stats())
}

type topologyResponse struct {
	Nodes []model.TopologyNode `json:"nodes"`
	Edges []model.TopologyEdge `json:"edges"`
}

func (s *Server) topologyHandler(w http.ResponseWriter, r *http.Request) {
	nodes, edges := s.pipe.Topology()
	writeJSON(w, http.StatusOK, topologyResponse{Nodes: nodes, Edges: edges})
}

type filtersRequest struct {
	Filters []string `json:"filters"`
}

func (s *Server) setFiltersHandler(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	set, err := filter.ParseAll(req.Filters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.pipe.SetFilters(set)
	writeJSON(w, http.StatusOK, filtersRequest{Filters: req.Filters})
}

func (s *Server) clearFiltersHandler(w http.ResponseWriter, r *http.Request) {
	s.pipe.SetFilters(nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFiltersHandler(w http.ResponseWriter, r *http.Request) {
	set := s.pipe.Filters()
	out := make([]string, 0, len(set))
	for _, rule := range set {
		out = append(out, rule.String())
	}
	writeJSON(w, http.StatusOK, filtersRequest{Filters: out})
}
