package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/paygate/internal/testutil"
)

func TestPostgresStore_IssueAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	svc := NewService(NewPostgresStore(db), NewSigner("pg-test-secret"))
	ctx := context.Background()

	err := svc.Issue(ctx, IssueRequest{
		AttemptID: "att_pg1",
		Resource:  "/weather",
		Payer:     "0xAaAa000000000000000000000000000000000001",
		PayTo:     "0x2222000000000000000000000000000000000002",
		Amount:    "10000",
		Network:   "base-sepolia",
		Outcome:   OutcomeSettled,
		TxHash:    "0xfeed",
	})
	require.NoError(t, err)

	records, err := svc.ListByAttempt(ctx, "att_pg1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeSettled, records[0].Outcome)
	assert.Equal(t, "0xfeed", records[0].TxHash)

	// Signatures must survive the round-trip through the database.
	resp, err := svc.Verify(ctx, records[0].ID)
	require.NoError(t, err)
	assert.True(t, resp.Valid)
}

func TestPostgresStore_ListByPayerNewestFirst(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	svc := NewService(NewPostgresStore(db), nil)
	ctx := context.Background()
	payer := "0xAaAa000000000000000000000000000000000001"

	for _, id := range []string{"att_pg2", "att_pg3"} {
		err := svc.Issue(ctx, IssueRequest{
			AttemptID: id,
			Resource:  "/fx",
			Payer:     payer,
			PayTo:     "0x2222000000000000000000000000000000000002",
			Amount:    "5000",
			Network:   "base-sepolia",
			Outcome:   OutcomeVoided,
			Reason:    "InsufficientAmount",
		})
		require.NoError(t, err)
	}

	records, err := svc.ListByPayer(ctx, payer, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
