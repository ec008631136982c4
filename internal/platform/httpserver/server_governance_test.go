package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	governanceengine "wheelshare/contexts/vehicle-governance/governance-engine"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	governancehttp "wheelshare/contexts/vehicle-governance/governance-engine/transport/http"
)

func newGovernanceTestServer() (*Server, governanceengine.Module) {
	module := governanceengine.NewInMemoryModule(nil)
	module.Store.SetOwnership("asset-1", []entities.OwnershipSplit{
		{OwnerID: "owner-a", Percent: decimal.RequireFromString("50.00")},
		{OwnerID: "owner-b", Percent: decimal.RequireFromString("50.00")},
	})
	module.Store.SetFundBalance("asset-1", decimal.RequireFromString("500.00"))
	return New(module, nil, ":0"), module
}

func postJSON(t *testing.T, server *Server, path string, userID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func createExpenditure(t *testing.T, server *Server, userID string, amount string) governancehttp.ProposalResponse {
	t.Helper()
	rr := postJSON(t, server, "/api/governance/v1/assets/asset-1/proposals/maintenance-expenditure", userID, governancehttp.CreateExpenditureRequest{
		Amount: amount,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp governancehttp.ProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode proposal failed: %v", err)
	}
	return resp
}

func TestCreateProposalRequiresUserHeader(t *testing.T) {
	server, _ := newGovernanceTestServer()

	rr := postJSON(t, server, "/api/governance/v1/assets/asset-1/proposals/ownership-change", "", governancehttp.CreateOwnershipChangeRequest{
		Splits: []governancehttp.SplitInput{{OwnerID: "owner-a", Percent: "100.00"}},
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateOwnershipChangeEndpoint(t *testing.T) {
	server, _ := newGovernanceTestServer()

	rr := postJSON(t, server, "/api/governance/v1/assets/asset-1/proposals/ownership-change", "owner-a", governancehttp.CreateOwnershipChangeRequest{
		Splits: []governancehttp.SplitInput{
			{OwnerID: "owner-a", Percent: "70.00"},
			{OwnerID: "owner-b", Percent: "30.00"},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp governancehttp.ProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode proposal failed: %v", err)
	}
	if resp.Status != "pending" || resp.Kind != "ownership_change" {
		t.Fatalf("unexpected proposal response: %+v", resp)
	}
}

func TestCreateProposalRejectsNonOwner(t *testing.T) {
	server, _ := newGovernanceTestServer()

	rr := postJSON(t, server, "/api/governance/v1/assets/asset-1/proposals/maintenance-expenditure", "stranger", governancehttp.CreateExpenditureRequest{
		Amount: "10.00",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateProposalRejectsMalformedBody(t *testing.T) {
	server, _ := newGovernanceTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/assets/asset-1/proposals/maintenance-expenditure", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "owner-a")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestVoteAndReadProposalEndpoints(t *testing.T) {
	server, _ := newGovernanceTestServer()
	proposal := createExpenditure(t, server, "owner-a", "100.00")

	rr := postJSON(t, server, "/api/governance/v1/proposals/"+proposal.ProposalID+"/votes", "owner-b", governancehttp.CastVoteRequest{
		Decision: "approve",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var voteResp governancehttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &voteResp); err != nil {
		t.Fatalf("decode vote failed: %v", err)
	}
	if voteResp.Finalized || voteResp.Tally.ApprovalWeight != "50.00" {
		t.Fatalf("unexpected vote response: %+v", voteResp)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/governance/v1/proposals/"+proposal.ProposalID, nil)
	getRR := httptest.NewRecorder()
	server.mux.ServeHTTP(getRR, getReq)
	if getRR.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", getRR.Code, getRR.Body.String())
	}
	var view governancehttp.ProposalViewResponse
	if err := json.Unmarshal(getRR.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view failed: %v", err)
	}
	if len(view.Voters) != 2 || view.Payload.Amount != "100.00" {
		t.Fatalf("unexpected proposal view: %+v", view)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/governance/v1/assets/asset-1/proposals?status=pending", nil)
	listRR := httptest.NewRecorder()
	server.mux.ServeHTTP(listRR, listReq)
	if listRR.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", listRR.Code, listRR.Body.String())
	}
	var list governancehttp.ProposalListResponse
	if err := json.Unmarshal(listRR.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list failed: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ProposalID != proposal.ProposalID {
		t.Fatalf("unexpected proposal list: %+v", list.Items)
	}
}

func TestVoteOnUnknownProposalReturnsNotFound(t *testing.T) {
	server, _ := newGovernanceTestServer()

	rr := postJSON(t, server, "/api/governance/v1/proposals/missing/votes", "owner-a", governancehttp.CastVoteRequest{
		Decision: "approve",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCancelByNonProposerConflicts(t *testing.T) {
	server, _ := newGovernanceTestServer()
	proposal := createExpenditure(t, server, "owner-a", "100.00")

	rr := postJSON(t, server, "/api/governance/v1/proposals/"+proposal.ProposalID+"/cancel", "owner-b", struct{}{})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, server, "/api/governance/v1/proposals/"+proposal.ProposalID+"/cancel", "owner-a", struct{}{})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}
