package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	governanceengine "wheelshare/contexts/vehicle-governance/governance-engine"
	governancehttp "wheelshare/contexts/vehicle-governance/governance-engine/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "wheelshare/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	governance governanceengine.Module
}

func New(governance governanceengine.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		governance: governance,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/governance/v1/assets/{asset_id}/proposals/ownership-change", s.handleCreateOwnershipChange)
	s.mux.HandleFunc("POST /api/governance/v1/assets/{asset_id}/proposals/maintenance-expenditure", s.handleCreateExpenditure)
	s.mux.HandleFunc("GET /api/governance/v1/assets/{asset_id}/proposals", s.handleListProposals)
	s.mux.HandleFunc("GET /api/governance/v1/assets/{asset_id}/history", s.handleListHistory)
	s.mux.HandleFunc("POST /api/governance/v1/proposals/{proposal_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("POST /api/governance/v1/proposals/{proposal_id}/cancel", s.handleCancelProposal)
	s.mux.HandleFunc("GET /api/governance/v1/proposals/{proposal_id}", s.handleGetProposal)
}

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, governancehttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
