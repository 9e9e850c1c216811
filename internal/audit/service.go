package audit

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/paygate/internal/idgen"
)

// Service implements audit record business logic.
type Service struct {
	store  Store
	signer *Signer
}

// NewService creates a new audit service.
// If signer is nil, records are stored unsigned.
func NewService(store Store, signer *Signer) *Service {
	return &Service{
		store:  store,
		signer: signer,
	}
}

// Issue persists a record, signing it when a signer is configured.
// Nil-safe: returns nil if the service is nil.
func (s *Service) Issue(ctx context.Context, req IssueRequest) error {
	if s == nil {
		return nil
	}

	payload := recordPayload{
		Amount:    req.Amount,
		AttemptID: req.AttemptID,
		Network:   req.Network,
		Outcome:   string(req.Outcome),
		PayTo:     strings.ToLower(req.PayTo),
		Payer:     strings.ToLower(req.Payer),
		Resource:  req.Resource,
		TxHash:    strings.ToLower(req.TxHash),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal payload: %w", err)
	}
	hash := sha256.Sum256(data)
	payloadHash := fmt.Sprintf("%x", hash)

	var sig string
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(signatureValidity)
	if s.signer != nil {
		signed, issuedAtStr, expiresAtStr, err := s.signer.Sign(payload)
		if err != nil {
			return fmt.Errorf("audit: failed to sign: %w", err)
		}
		sig = signed
		issuedAt, _ = time.Parse(time.RFC3339, issuedAtStr)
		expiresAt, _ = time.Parse(time.RFC3339, expiresAtStr)
	}

	record := &Record{
		ID:          idgen.WithPrefix("aud_"),
		AttemptID:   req.AttemptID,
		Resource:    req.Resource,
		Payer:       strings.ToLower(req.Payer),
		PayTo:       strings.ToLower(req.PayTo),
		Amount:      req.Amount,
		Network:     req.Network,
		Outcome:     req.Outcome,
		Reason:      req.Reason,
		TxHash:      strings.ToLower(req.TxHash),
		PayloadHash: payloadHash,
		Signature:   sig,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}

	return s.store.Create(ctx, record)
}

// Get returns a record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// ListByPayer returns records for a payer address, newest first.
func (s *Service) ListByPayer(ctx context.Context, payer string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByPayer(ctx, strings.ToLower(payer), limit)
}

// ListByAttempt returns records for a settlement attempt.
func (s *Service) ListByAttempt(ctx context.Context, attemptID string) ([]*Record, error) {
	return s.store.ListByAttempt(ctx, attemptID)
}

// Verify checks whether a record's signature is valid.
func (s *Service) Verify(ctx context.Context, recordID string) (*VerifyResponse, error) {
	if s.signer == nil {
		return &VerifyResponse{
			Valid:    false,
			RecordID: recordID,
			Error:    ErrSigningDisabled.Error(),
		}, nil
	}

	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		return &VerifyResponse{
			Valid:    false,
			RecordID: recordID,
			Error:    ErrRecordNotFound.Error(),
		}, nil
	}

	payload := recordPayload{
		Amount:    record.Amount,
		AttemptID: record.AttemptID,
		Network:   record.Network,
		Outcome:   string(record.Outcome),
		PayTo:     record.PayTo,
		Payer:     record.Payer,
		Resource:  record.Resource,
		TxHash:    record.TxHash,
	}

	valid := s.signer.Verify(payload, record.Signature)

	resp := &VerifyResponse{
		Valid:    valid,
		RecordID: recordID,
	}

	if valid && time.Now().After(record.ExpiresAt) {
		resp.Expired = true
	}

	if !valid {
		resp.Error = "signature verification failed"
	}

	return resp, nil
}
