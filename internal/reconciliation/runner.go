package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/paygate/internal/audit"
	"github.com/mbd888/paygate/internal/retry"
)

// receiptChecks bounds how many times one RunAll pass polls for a
// single receipt before giving up until the next pass.
const (
	receiptChecks     = 3
	receiptCheckDelay = 500 * time.Millisecond

	// maxChecks is the total number of failed passes before a case is
	// closed as unrecoverable rather than polled forever.
	maxChecks = 10
)

// ReceiptSource looks up transaction receipts. chain.Client satisfies this.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Resolution is the final disposition of one reconciled case.
type Resolution struct {
	AttemptID string        `json:"attemptId"`
	Outcome   audit.Outcome `json:"outcome"`
	TxHash    string        `json:"txHash,omitempty"`
	Detail    string        `json:"detail"`
}

// Runner drains the queue by resolving each case against chain state.
type Runner struct {
	queue      *Queue
	receipts   ReceiptSource
	audits     *audit.Service
	logger     *slog.Logger
	checkDelay time.Duration
}

// NewRunner creates a runner.
func NewRunner(queue *Queue, receipts ReceiptSource, audits *audit.Service, logger *slog.Logger) *Runner {
	return &Runner{
		queue:      queue,
		receipts:   receipts,
		audits:     audits,
		logger:     logger,
		checkDelay: receiptCheckDelay,
	}
}

// RunAll attempts to resolve every pending case once. Cases that still
// cannot be resolved stay queued for the next pass.
func (r *Runner) RunAll(ctx context.Context) ([]Resolution, error) {
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	var resolved []Resolution
	for _, c := range r.queue.Pending() {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		res, ok := r.resolve(ctx, c)
		if !ok {
			continue
		}
		resolved = append(resolved, res)
	}
	return resolved, nil
}

// resolve determines one case's disposition. The second return is
// false when the case must stay queued.
func (r *Runner) resolve(ctx context.Context, c Case) (Resolution, bool) {
	attempt := c.Attempt

	// No transaction ever reached the network: nothing to wait for.
	// The payer kept their funds and the resource went out unpaid.
	if attempt.TxHash == "" {
		return r.close(ctx, c, audit.OutcomeVoided, "no transaction was broadcast; resource delivered unpaid"), true
	}

	var receipt *types.Receipt
	err := retry.Do(ctx, receiptChecks, r.checkDelay, func() error {
		var lookupErr error
		receipt, lookupErr = r.receipts.TransactionReceipt(ctx, common.HexToHash(attempt.TxHash))
		return lookupErr
	})
	if err != nil {
		reconcileErrors.Inc()
		r.queue.noteFailure(attempt.ID, err.Error())
		if c.Checks+1 >= maxChecks {
			return r.close(ctx, c, audit.OutcomeVoided,
				fmt.Sprintf("unresolved after %d receipt checks: %v", c.Checks+1, err)), true
		}
		r.logger.Warn("reconciliation check inconclusive",
			"attempt", attempt.ID, "tx", attempt.TxHash, "checks", c.Checks+1, "error", err)
		return Resolution{}, false
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return r.close(ctx, c, audit.OutcomeSettled, "settlement confirmed on chain"), true
	}
	return r.close(ctx, c, audit.OutcomeVoided, "settlement reverted on chain; resource delivered unpaid"), true
}

// close removes the case and records its final disposition.
func (r *Runner) close(ctx context.Context, c Case, outcome audit.Outcome, detail string) Resolution {
	attempt := c.Attempt
	r.queue.remove(attempt.ID)
	reconcileResolved.WithLabelValues(string(outcome)).Inc()

	r.logger.Info("reconciliation case closed",
		"attempt", attempt.ID, "payer", attempt.Payer, "outcome", outcome, "detail", detail)

	if err := r.audits.Issue(ctx, audit.IssueRequest{
		AttemptID: attempt.ID,
		Resource:  attempt.Resource,
		Payer:     attempt.Payer,
		PayTo:     attempt.PayTo,
		Amount:    attempt.Amount,
		Network:   attempt.Network,
		Outcome:   outcome,
		Reason:    detail,
		TxHash:    attempt.TxHash,
	}); err != nil {
		r.logger.Warn("failed to record reconciliation outcome", "attempt", attempt.ID, "error", err)
	}

	return Resolution{
		AttemptID: attempt.ID,
		Outcome:   outcome,
		TxHash:    attempt.TxHash,
		Detail:    detail,
	}
}
