// Package audit records signed settlement outcomes.
//
// Every settlement attempt that reaches a terminal state (or is parked
// for reconciliation) produces an HMAC-signed record that operators and
// payers can independently verify after the fact.
package audit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound  = errors.New("audit: not found")
	ErrSigningDisabled = errors.New("audit: signing disabled (no HMAC secret configured)")
)

// Outcome is the terminal disposition of a settlement attempt.
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeVoided    Outcome = "voided"
	OutcomeReconcile Outcome = "reconcile"
)

// Record is a signed proof that the facilitator processed a settlement
// attempt and how it ended.
type Record struct {
	ID          string    `json:"id"`
	AttemptID   string    `json:"attemptId"`
	Resource    string    `json:"resource"`
	Payer       string    `json:"payer"`
	PayTo       string    `json:"payTo"`
	Amount      string    `json:"amount"`
	Network     string    `json:"network"`
	Outcome     Outcome   `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	TxHash      string    `json:"txHash,omitempty"`
	PayloadHash string    `json:"payloadHash"`
	Signature   string    `json:"signature"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IssueRequest is the input for creating an audit record.
type IssueRequest struct {
	AttemptID string
	Resource  string
	Payer     string
	PayTo     string
	Amount    string
	Network   string
	Outcome   Outcome
	Reason    string
	TxHash    string
}

// VerifyResponse is the result of record verification.
type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	RecordID string `json:"recordId"`
	Expired  bool   `json:"expired,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Store persists audit records.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListByPayer(ctx context.Context, payer string, limit int) ([]*Record, error)
	ListByAttempt(ctx context.Context, attemptID string) ([]*Record, error)
}

// recordPayload is the canonical struct signed by HMAC.
// Field order must be deterministic (JSON marshalling of struct is by field order).
type recordPayload struct {
	Amount    string `json:"amount"`
	AttemptID string `json:"attemptId"`
	Network   string `json:"network"`
	Outcome   string `json:"outcome"`
	PayTo     string `json:"payTo"`
	Payer     string `json:"payer"`
	Resource  string `json:"resource"`
	TxHash    string `json:"txHash"`
}
