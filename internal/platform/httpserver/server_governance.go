package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	governanceerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	governancehttp "wheelshare/contexts/vehicle-governance/governance-engine/transport/http"
)

func (s *Server) handleCreateOwnershipChange(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeGovernanceError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req governancehttp.CreateOwnershipChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.governance.Handler.CreateOwnershipChangeHandler(r.Context(), r.PathValue("asset_id"), userID, req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCreateExpenditure(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeGovernanceError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req governancehttp.CreateExpenditureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.governance.Handler.CreateExpenditureHandler(r.Context(), r.PathValue("asset_id"), userID, req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeGovernanceError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req governancehttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.governance.Handler.CastVoteHandler(r.Context(), r.PathValue("proposal_id"), userID, req)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelProposal(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeGovernanceError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	if err := s.governance.Handler.CancelProposalHandler(r.Context(), r.PathValue("proposal_id"), userID); err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.GetProposalHandler(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ListProposalsHandler(r.Context(), r.PathValue("asset_id"), r.URL.Query().Get("status"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.ListHistoryHandler(r.Context(), r.PathValue("asset_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeGovernanceDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, governanceerrors.ErrInvalidPayload),
		errors.Is(err, governanceerrors.ErrInvalidVoteInput):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, governanceerrors.ErrNotEligible):
		writeGovernanceError(w, http.StatusForbidden, "not_eligible", err.Error())
	case errors.Is(err, governanceerrors.ErrProposalNotFound):
		writeGovernanceError(w, http.StatusNotFound, "proposal_not_found", err.Error())
	case errors.Is(err, governanceerrors.ErrAssetNotFound):
		writeGovernanceError(w, http.StatusNotFound, "asset_not_found", err.Error())
	case errors.Is(err, governanceerrors.ErrProposalFinalized):
		writeGovernanceError(w, http.StatusConflict, "proposal_finalized", err.Error())
	case errors.Is(err, governanceerrors.ErrInvalidTransition):
		writeGovernanceError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, governanceerrors.ErrConflict),
		errors.Is(err, governanceerrors.ErrVersionConflict):
		writeGovernanceError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
