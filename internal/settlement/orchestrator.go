// Package settlement implements the facilitator's settlement state
// machine: pre-flight checks, the single downstream service call,
// result validation, and the final on-chain transfer or void.
//
// Service delivery happens before settlement. The payer's funds only
// move once a successful result is observed, at the cost of a narrow
// window where the chain rejects settlement after delivery; that case
// is flagged for reconciliation, never hidden.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/paygate/internal/audit"
	"github.com/mbd888/paygate/internal/chain"
	"github.com/mbd888/paygate/internal/policy"
	"github.com/mbd888/paygate/internal/providers"
	"github.com/mbd888/paygate/internal/traces"
	"github.com/mbd888/paygate/internal/verify"
	"github.com/mbd888/paygate/internal/x402"
)

// DefaultConfirmTimeout bounds the wait for a settlement receipt.
const DefaultConfirmTimeout = 60 * time.Second

// Guard is the replay guard's consume operation. *replay.MemoryStore
// and *replay.PostgresStore satisfy this.
type Guard interface {
	Consume(ctx context.Context, payer, nonce string) (bool, error)
}

// Oracle answers balance sufficiency questions. *chain.Oracle satisfies this.
type Oracle interface {
	Sufficient(ctx context.Context, account string, required *big.Int) chain.Check
}

// Submitter submits the on-chain transfer and waits for confirmation.
// *chain.Settler satisfies this.
type Submitter interface {
	Submit(ctx context.Context, auth x402.Authorization, signature string) (string, error)
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*types.Receipt, error)
}

// Verifier recovers and checks the authorization signer.
// *verify.Verifier satisfies this.
type Verifier interface {
	Verify(auth x402.Authorization, signature string) verify.Result
}

// Validator judges downstream response bodies. *policy.Registry satisfies this.
type Validator interface {
	Judge(kind string, body map[string]interface{}) policy.Verdict
}

// ServiceCaller performs the EXECUTE call. *Forwarder satisfies this.
type ServiceCaller interface {
	Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error)
}

// Recorder receives one observation per completed downstream call.
// *reliability.Tracker satisfies this.
type Recorder interface {
	Record(providerID string, success bool, latencyMs int64)
}

// ReconcileQueue receives attempts whose chain state is unknown or
// negative after delivery.
type ReconcileQueue interface {
	Enqueue(ctx context.Context, attempt Attempt)
}

// Notifier is told about every terminal attempt, e.g. for live dashboards.
type Notifier interface {
	AttemptCompleted(attempt Attempt)
}

// Request is one inbound paid request: the raw proof-of-payment
// header, the requirement the resource server issued, the provider
// chosen for the resource, and the original request body.
type Request struct {
	PaymentHeader string
	Requirement   x402.PaymentRequirement
	Provider      providers.Provider
	Body          map[string]interface{}
}

// Outcome is the result of processing one request.
type Outcome struct {
	Attempt  *Attempt
	Result   x402.SettleResult
	Response map[string]interface{} // downstream body, set when delivered
}

// Config wires the orchestrator's collaborators. Audit, Queue and
// Notifier are optional; the rest are required.
type Config struct {
	Verifier       Verifier
	Guard          Guard
	Oracle         Oracle
	Submitter      Submitter
	Forwarder      ServiceCaller
	Policies       Validator
	Tracker        Recorder
	Audit          *audit.Service
	Queue          ReconcileQueue
	Notifier       Notifier
	Logger         *slog.Logger
	ConfirmTimeout time.Duration
}

// Orchestrator sequences HOLD → EXECUTE → VALIDATE → {SETTLE | VOID}
// for each request. Each attempt is an independent unit of work; the
// only shared mutable state is the replay guard and the chain nonce.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg}
}

// Process runs one request through the full state machine and returns
// the outcome. Rejections are outcomes, not errors.
func (o *Orchestrator) Process(ctx context.Context, req Request) *Outcome {
	ctx, span := traces.StartSpan(ctx, "settlement.process",
		traces.Resource(req.Requirement.Resource))
	defer span.End()

	start := time.Now()
	attempt := newAttempt(req.Requirement.Resource, req.Provider.ID,
		req.Requirement.Network, req.Requirement.PayTo, req.Requirement.MaxAmountRequired)
	defer func() {
		settleDuration.Observe(time.Since(start).Seconds())
	}()

	// --- HOLD: decode ---
	payload, err := x402.DecodePayment(req.PaymentHeader)
	if err != nil {
		reason := x402.ReasonMalformedHeader
		if errors.Is(err, x402.ErrUnsupportedVersion) {
			reason = x402.ReasonUnsupportedVersion
		}
		return o.reject(ctx, attempt, reason, err.Error())
	}

	if payload.Scheme != x402.SchemeExact {
		return o.reject(ctx, attempt, x402.ReasonPreflightFailed,
			"unsupported payment scheme "+payload.Scheme)
	}
	if !strings.EqualFold(payload.Network, req.Requirement.Network) {
		return o.reject(ctx, attempt, x402.ReasonPreflightFailed,
			"payment network "+payload.Network+" does not match requirement "+req.Requirement.Network)
	}

	auth := payload.Payload.Authorization
	signature := payload.Payload.Signature

	// --- HOLD: signature + window ---
	res := o.cfg.Verifier.Verify(auth, signature)
	if !res.Valid {
		return o.reject(ctx, attempt, res.Reason, res.Detail)
	}
	attempt.Payer = res.Payer
	attempt.Nonce = auth.Nonce
	span.SetAttributes(traces.Payer(res.Payer))

	// --- HOLD: replay guard. The nonce burns here, before EXECUTE; a
	// later void still costs the payer a fresh signature to retry.
	accepted, err := o.cfg.Guard.Consume(ctx, res.Payer, auth.Nonce)
	if err != nil {
		// Fail closed: an unavailable guard must not admit replays.
		return o.reject(ctx, attempt, x402.ReasonPreflightFailed,
			"replay guard unavailable: "+err.Error())
	}
	if !accepted {
		return o.reject(ctx, attempt, x402.ReasonNonceReused, "nonce already consumed")
	}

	// --- HOLD: amount and payee ---
	value, ok := auth.ValueBig()
	if !ok {
		return o.reject(ctx, attempt, x402.ReasonInvalidSignature, "authorization value is not numeric")
	}
	required, ok := new(big.Int).SetString(req.Requirement.MaxAmountRequired, 10)
	if !ok {
		return o.reject(ctx, attempt, x402.ReasonPreflightFailed,
			"requirement amount is not numeric: "+req.Requirement.MaxAmountRequired)
	}
	if value.Cmp(required) < 0 {
		return o.reject(ctx, attempt, x402.ReasonInsufficientAmount,
			"authorized "+value.String()+" of required "+required.String())
	}
	if !strings.EqualFold(auth.To, req.Requirement.PayTo) {
		return o.reject(ctx, attempt, x402.ReasonPreflightFailed,
			"authorization payee "+auth.To+" does not match "+req.Requirement.PayTo)
	}
	attempt.Amount = auth.Value

	// --- HOLD: balance oracle (fail closed on RPC trouble) ---
	check := o.cfg.Oracle.Sufficient(ctx, res.Payer, value)
	if !check.Sufficient {
		return o.reject(ctx, attempt, x402.ReasonPreflightFailed, check.Detail)
	}

	// --- EXECUTE: exactly one downstream call ---
	attempt.transition(StateExecute)
	timeout := req.Provider.Timeout
	if req.Requirement.MaxTimeoutSeconds > 0 {
		timeout = time.Duration(req.Requirement.MaxTimeoutSeconds) * time.Second
	}

	fwd, err := o.cfg.Forwarder.Forward(ctx, ForwardRequest{
		Endpoint:  req.Provider.Endpoint,
		Body:      req.Body,
		Payer:     res.Payer,
		Amount:    auth.Value,
		AttemptID: attempt.ID,
		Timeout:   timeout,
	})
	if err != nil {
		reason := x402.ReasonServiceUnreachable
		latency := time.Since(start).Milliseconds()
		if fwd != nil {
			reason = x402.ReasonServiceError
			latency = fwd.LatencyMs
		}
		o.cfg.Tracker.Record(req.Provider.ID, false, latency)
		return o.voidAfterExecute(ctx, attempt, reason, err.Error())
	}
	attempt.LatencyMs = fwd.LatencyMs
	serviceLatency.Observe(float64(fwd.LatencyMs) / 1000)

	// --- VALIDATE: injectable per-kind success predicate ---
	attempt.transition(StateValidate)
	verdict := o.cfg.Policies.Judge(req.Provider.Kind, fwd.Body)
	if !verdict.Acceptable {
		o.cfg.Tracker.Record(req.Provider.ID, false, fwd.LatencyMs)
		return o.voidAfterExecute(ctx, attempt, x402.ReasonResultRejected, verdict.Detail)
	}
	o.cfg.Tracker.Record(req.Provider.ID, true, fwd.LatencyMs)

	// --- SETTLE: value moves only now, against an already-delivered result ---
	txHash, err := o.cfg.Submitter.Submit(ctx, auth, signature)
	if err != nil {
		var submitErr *chain.SubmitError
		if errors.As(err, &submitErr) && submitErr.TxHash != "" {
			txHash = submitErr.TxHash
		}
		return o.reconcileCase(ctx, attempt, x402.ReasonSettlementRejected, err.Error(), txHash, fwd.Body)
	}

	if _, err := o.cfg.Submitter.WaitForReceipt(ctx, txHash, o.cfg.ConfirmTimeout); err != nil {
		reason := x402.ReasonSettlementTimeout
		if errors.Is(err, chain.ErrReverted) {
			reason = x402.ReasonSettlementRejected
		}
		return o.reconcileCase(ctx, attempt, reason, err.Error(), txHash, fwd.Body)
	}

	attempt.settle(txHash)
	settlementAttempts.WithLabelValues("settled").Inc()
	observeAmount(value)
	o.cfg.Logger.Info("settlement confirmed",
		"attempt", attempt.ID, "payer", attempt.Payer, "amount", attempt.Amount, "tx", txHash)
	o.finish(ctx, attempt, audit.OutcomeSettled)

	return &Outcome{
		Attempt:  attempt,
		Response: fwd.Body,
		Result: x402.SettleResult{
			Paid:    true,
			Amount:  attempt.Amount,
			TxHash:  txHash,
			Network: attempt.Network,
			Payer:   attempt.Payer,
		},
	}
}

// reject voids an attempt that never reached EXECUTE.
func (o *Orchestrator) reject(ctx context.Context, attempt *Attempt, reason x402.Reason, detail string) *Outcome {
	attempt.void(reason, detail)
	preflightRejections.WithLabelValues(string(reason)).Inc()
	settlementAttempts.WithLabelValues("voided").Inc()
	o.cfg.Logger.Info("settlement rejected",
		"attempt", attempt.ID, "reason", reason, "detail", detail)
	o.finish(ctx, attempt, audit.OutcomeVoided)
	return &Outcome{Attempt: attempt, Result: voidResult(attempt)}
}

// voidAfterExecute voids an attempt whose downstream call failed or
// whose result was rejected. No chain state was touched.
func (o *Orchestrator) voidAfterExecute(ctx context.Context, attempt *Attempt, reason x402.Reason, detail string) *Outcome {
	attempt.void(reason, detail)
	settlementAttempts.WithLabelValues("voided").Inc()
	o.cfg.Logger.Warn("settlement voided after service call",
		"attempt", attempt.ID, "provider", attempt.ProviderID, "reason", reason, "detail", detail)
	o.finish(ctx, attempt, audit.OutcomeVoided)
	return &Outcome{Attempt: attempt, Result: voidResult(attempt)}
}

// reconcileCase handles the irregular terminal state: the resource was
// delivered but the chain outcome is unknown or negative. Surfaced as
// best-effort paid=true with a reconciliation flag.
func (o *Orchestrator) reconcileCase(ctx context.Context, attempt *Attempt, reason x402.Reason, detail, txHash string, body map[string]interface{}) *Outcome {
	attempt.irregular(reason, detail, txHash)
	settlementAttempts.WithLabelValues("reconcile").Inc()
	o.cfg.Logger.Error("settlement requires reconciliation",
		"attempt", attempt.ID, "payer", attempt.Payer, "reason", reason, "tx", txHash, "detail", detail)
	if o.cfg.Queue != nil {
		o.cfg.Queue.Enqueue(ctx, *attempt)
	}
	o.finish(ctx, attempt, audit.OutcomeReconcile)
	return &Outcome{
		Attempt:  attempt,
		Response: body,
		Result: x402.SettleResult{
			Paid:      true,
			Amount:    attempt.Amount,
			TxHash:    txHash,
			Network:   attempt.Network,
			Payer:     attempt.Payer,
			Reason:    reason,
			Message:   reason.Message(),
			Reconcile: true,
		},
	}
}

// finish emits the audit record and notifies listeners.
func (o *Orchestrator) finish(ctx context.Context, attempt *Attempt, outcome audit.Outcome) {
	if err := o.cfg.Audit.Issue(ctx, audit.IssueRequest{
		AttemptID: attempt.ID,
		Resource:  attempt.Resource,
		Payer:     attempt.Payer,
		PayTo:     attempt.PayTo,
		Amount:    attempt.Amount,
		Network:   attempt.Network,
		Outcome:   outcome,
		Reason:    string(attempt.Reason),
		TxHash:    attempt.TxHash,
	}); err != nil {
		o.cfg.Logger.Warn("failed to issue audit record", "attempt", attempt.ID, "error", err)
	}
	if o.cfg.Notifier != nil {
		o.cfg.Notifier.AttemptCompleted(*attempt)
	}
}

func voidResult(attempt *Attempt) x402.SettleResult {
	return x402.SettleResult{
		Paid:    false,
		Payer:   attempt.Payer,
		Reason:  attempt.Reason,
		Message: attempt.Reason.Message(),
	}
}

func observeAmount(value *big.Int) {
	f, _ := new(big.Float).SetInt(value).Float64()
	settledAmount.Observe(f)
}
