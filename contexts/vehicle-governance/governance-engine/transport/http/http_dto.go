package http

import "encoding/json"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SplitInput struct {
	OwnerID string `json:"owner_id"`
	Percent string `json:"percent"`
}

type CreateOwnershipChangeRequest struct {
	Splits   []SplitInput `json:"splits"`
	Reason   string       `json:"reason,omitempty"`
	Deadline string       `json:"deadline,omitempty"`
}

type CreateExpenditureRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
}

type ProposalResponse struct {
	ProposalID    string `json:"proposal_id"`
	AssetID       string `json:"asset_id"`
	Kind          string `json:"kind"`
	ProposerID    string `json:"proposer_id"`
	Status        string `json:"status"`
	OutcomeReason string `json:"outcome_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	Deadline      string `json:"deadline"`
	FinalizedAt   string `json:"finalized_at,omitempty"`
}

type CastVoteRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

type TallyView struct {
	Decision        string `json:"decision"`
	ApprovalWeight  string `json:"approval_weight"`
	RejectionWeight string `json:"rejection_weight"`
	UndecidedWeight string `json:"undecided_weight"`
	ApproveCount    int    `json:"approve_count"`
	RejectCount     int    `json:"reject_count"`
	EligibleCount   int    `json:"eligible_count"`
}

type VoteResponse struct {
	ProposalID string    `json:"proposal_id"`
	VoterID    string    `json:"voter_id"`
	Decision   string    `json:"decision"`
	Status     string    `json:"status"`
	Finalized  bool      `json:"finalized"`
	Tally      TallyView `json:"tally"`
}

type VoterStatusView struct {
	VoterID  string `json:"voter_id"`
	Weight   string `json:"weight"`
	HasVoted bool   `json:"has_voted"`
	Decision string `json:"decision,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type PayloadView struct {
	Splits    []SplitInput `json:"splits,omitempty"`
	Amount    string       `json:"amount,omitempty"`
	Reference string       `json:"reference,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

type ProposalViewResponse struct {
	Proposal ProposalResponse  `json:"proposal"`
	Payload  PayloadView       `json:"payload"`
	Tally    TallyView         `json:"tally"`
	Voters   []VoterStatusView `json:"voters"`
}

type ProposalListResponse struct {
	Items []ProposalResponse `json:"items"`
}

type HistoryRecordView struct {
	RecordID   string          `json:"record_id"`
	ProposalID string          `json:"proposal_id"`
	ChangeType string          `json:"change_type"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	AppliedAt  string          `json:"applied_at"`
	AppliedBy  string          `json:"applied_by"`
}

type HistoryListResponse struct {
	AssetID string              `json:"asset_id"`
	Items   []HistoryRecordView `json:"items"`
}
