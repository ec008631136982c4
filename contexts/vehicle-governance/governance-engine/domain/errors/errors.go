package errors

import "errors"

var (
	ErrInvalidPayload    = errors.New("invalid proposal payload")
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrNotEligible       = errors.New("voter is not eligible for this proposal")
	ErrProposalFinalized = errors.New("proposal is already finalized")
	ErrInvalidTransition = errors.New("invalid proposal transition")
	ErrInvalidVoteInput  = errors.New("invalid vote input")
	ErrInsufficientFunds = errors.New("insufficient fund balance")
	ErrVersionConflict   = errors.New("asset state version conflict")
	ErrConflict          = errors.New("governance state conflict")
)
