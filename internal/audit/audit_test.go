package audit

import (
	"context"
	"testing"
	"time"
)

const (
	testPayer  = "0x1111111111111111111111111111111111111111"
	testPayTo  = "0x2222222222222222222222222222222222222222"
	testSecret = "test-hmac-secret-for-audit"
)

func newTestService() *Service {
	return NewService(NewMemoryStore(), NewSigner(testSecret))
}

func issueTestRecord(t *testing.T, svc *Service, attemptID string, outcome Outcome) {
	t.Helper()
	err := svc.Issue(context.Background(), IssueRequest{
		AttemptID: attemptID,
		Resource:  "/weather",
		Payer:     testPayer,
		PayTo:     testPayTo,
		Amount:    "10000",
		Network:   "base-sepolia",
		Outcome:   outcome,
		TxHash:    "0xABCDEF",
	})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
}

func TestIssue_Success(t *testing.T) {
	svc := newTestService()
	issueTestRecord(t, svc, "att_123", OutcomeSettled)

	records, err := svc.ListByPayer(context.Background(), testPayer, 10)
	if err != nil {
		t.Fatalf("ListByPayer failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.AttemptID != "att_123" {
		t.Errorf("expected attempt att_123, got %s", r.AttemptID)
	}
	if r.Outcome != OutcomeSettled {
		t.Errorf("expected outcome settled, got %s", r.Outcome)
	}
	if r.Payer != testPayer {
		t.Errorf("expected payer %s, got %s", testPayer, r.Payer)
	}
	if r.TxHash != "0xabcdef" {
		t.Errorf("expected lowercased tx hash, got %s", r.TxHash)
	}
	if r.Signature == "" {
		t.Error("expected non-empty signature")
	}
	if r.PayloadHash == "" {
		t.Error("expected non-empty payload hash")
	}
	if r.IssuedAt.IsZero() {
		t.Error("expected non-zero issuedAt")
	}
	// Should expire ~30 days from now
	expectedExpiry := time.Now().Add(30 * 24 * time.Hour)
	if r.ExpiresAt.Before(expectedExpiry.Add(-time.Minute)) {
		t.Errorf("expiresAt too early: %v", r.ExpiresAt)
	}
}

func TestIssue_UnsignedWithoutSecret(t *testing.T) {
	svc := NewService(NewMemoryStore(), NewSigner(""))
	if err := svc.Issue(context.Background(), IssueRequest{AttemptID: "att_x", Payer: testPayer}); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	records, err := svc.ListByAttempt(context.Background(), "att_x")
	if err != nil {
		t.Fatalf("ListByAttempt failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Signature != "" {
		t.Error("record should be unsigned without a secret")
	}

	// Unsigned records never verify.
	resp, err := svc.Verify(context.Background(), records[0].ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("unsigned record must not verify")
	}
}

func TestVerify_ValidRecord(t *testing.T) {
	svc := newTestService()
	issueTestRecord(t, svc, "att_verify", OutcomeReconcile)

	records, _ := svc.ListByAttempt(context.Background(), "att_verify")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	resp, err := svc.Verify(context.Background(), records[0].ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.Valid {
		t.Errorf("expected valid signature: %s", resp.Error)
	}
	if resp.Expired {
		t.Error("fresh record should not be expired")
	}
}

func TestVerify_TamperedRecordFails(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, NewSigner(testSecret))
	issueTestRecord(t, svc, "att_tamper", OutcomeSettled)

	records, _ := svc.ListByAttempt(context.Background(), "att_tamper")
	records[0].Amount = "999999"
	if err := store.Create(context.Background(), records[0]); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resp, err := svc.Verify(context.Background(), records[0].ID)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("tampered record must not verify")
	}
}

func TestVerify_UnknownRecord(t *testing.T) {
	svc := newTestService()
	resp, err := svc.Verify(context.Background(), "aud_missing")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("missing record must not verify")
	}
	if resp.Error == "" {
		t.Error("expected error detail")
	}
}

func TestVerify_SigningDisabled(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	resp, err := svc.Verify(context.Background(), "aud_any")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Valid {
		t.Error("verification must fail with signing disabled")
	}
	if resp.Error != ErrSigningDisabled.Error() {
		t.Errorf("unexpected error: %s", resp.Error)
	}
}
