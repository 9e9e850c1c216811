package server

import (
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/paygate/internal/audit"
	"github.com/mbd888/paygate/internal/chain"
	"github.com/mbd888/paygate/internal/idgen"
	"github.com/mbd888/paygate/internal/settlement"
	"github.com/mbd888/paygate/internal/x402"
)

// The facilitator API serves external resource servers that run their
// own paywall: they post the payment payload plus the requirement they
// issued, and this facilitator verifies signatures and moves funds on
// their behalf. Unlike the in-process paywall there is no EXECUTE
// stage here; the caller delivers its resource after a successful
// settle response.

// facilitatorRequest is the body of /facilitator/verify and /settle.
type facilitatorRequest struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// verifyResponse is the body of a /facilitator/verify answer.
type verifyResponse struct {
	Valid   bool        `json:"valid"`
	Payer   string      `json:"payer,omitempty"`
	Reason  x402.Reason `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
}

// checkRequest runs the static checks shared by verify and settle.
// A nil result means the payment passed every local check.
func (s *Server) checkRequest(req facilitatorRequest) *verifyResponse {
	fail := func(reason x402.Reason, detail string) *verifyResponse {
		msg := reason.Message()
		if detail != "" {
			msg = detail
		}
		return &verifyResponse{Valid: false, Reason: reason, Message: msg}
	}

	if req.X402Version != x402.Version {
		return fail(x402.ReasonUnsupportedVersion, "")
	}

	payload := req.PaymentPayload
	requirement := req.PaymentRequirements

	if payload.Scheme != x402.SchemeExact || payload.Scheme != requirement.Scheme {
		return fail(x402.ReasonPreflightFailed, "unsupported or mismatched payment scheme")
	}
	if !strings.EqualFold(payload.Network, requirement.Network) {
		return fail(x402.ReasonPreflightFailed,
			"payment network "+payload.Network+" does not match requirement "+requirement.Network)
	}

	auth := payload.Payload.Authorization

	res := s.verifier.Verify(auth, payload.Payload.Signature)
	if !res.Valid {
		return fail(res.Reason, res.Detail)
	}

	value, ok := auth.ValueBig()
	if !ok {
		return fail(x402.ReasonMalformedHeader, "authorization value is not numeric")
	}
	required, ok := new(big.Int).SetString(requirement.MaxAmountRequired, 10)
	if !ok {
		return fail(x402.ReasonPreflightFailed, "requirement amount is not numeric")
	}
	if value.Cmp(required) < 0 {
		return fail(x402.ReasonInsufficientAmount, "")
	}
	if !strings.EqualFold(auth.To, requirement.PayTo) {
		return fail(x402.ReasonPreflightFailed,
			"authorization pays "+auth.To+" but requirement demands "+requirement.PayTo)
	}

	return nil
}

// facilitatorVerify handles POST /facilitator/verify. Verification is
// read-only: it never burns the nonce, so a verified payment can still
// be settled afterwards.
func (s *Server) facilitatorVerify(c *gin.Context) {
	var req facilitatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be JSON with paymentPayload and paymentRequirements",
		})
		return
	}

	if resp := s.checkRequest(req); resp != nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		Valid: true,
		Payer: req.PaymentPayload.Payload.Authorization.From,
	})
}

// facilitatorSettle handles POST /facilitator/settle: the full local
// check, a nonce burn, a balance read, then the on-chain transfer.
// Rejections are 200 responses with paid=false, mirroring the
// X-Payment-Response body of the paywall path.
func (s *Server) facilitatorSettle(c *gin.Context) {
	var req facilitatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be JSON with paymentPayload and paymentRequirements",
		})
		return
	}

	ctx := c.Request.Context()
	auth := req.PaymentPayload.Payload.Authorization
	requirement := req.PaymentRequirements

	if resp := s.checkRequest(req); resp != nil {
		c.JSON(http.StatusOK, x402.SettleResult{
			Paid:    false,
			Network: requirement.Network,
			Reason:  resp.Reason,
			Message: resp.Message,
		})
		return
	}

	reject := func(reason x402.Reason, detail string) {
		msg := reason.Message()
		if detail != "" {
			msg = detail
		}
		c.JSON(http.StatusOK, x402.SettleResult{
			Paid:    false,
			Network: requirement.Network,
			Payer:   auth.From,
			Reason:  reason,
			Message: msg,
		})
	}

	// Burn the nonce before any chain interaction. A failed settle
	// keeps it burned; the payer retries with a fresh authorization.
	accepted, err := s.guard.Consume(ctx, auth.From, auth.Nonce)
	if err != nil {
		reject(x402.ReasonPreflightFailed, "replay guard unavailable")
		return
	}
	if !accepted {
		reject(x402.ReasonNonceReused, "")
		return
	}

	value, _ := auth.ValueBig()
	check := s.oracle.Sufficient(ctx, auth.From, value)
	if check.Unavailable {
		reject(x402.ReasonPreflightFailed, "balance oracle unavailable: "+check.Detail)
		return
	}
	if !check.Sufficient {
		reject(x402.ReasonPreflightFailed, "payer balance below authorized amount")
		return
	}

	txHash, err := s.submitter.Submit(ctx, auth, req.PaymentPayload.Payload.Signature)
	if err != nil {
		var submitErr *chain.SubmitError
		if errors.As(err, &submitErr) {
			txHash = submitErr.TxHash
		}
		s.settleAuditAndRespond(c, auth, requirement, txHash, x402.ReasonSettlementRejected, err.Error())
		return
	}

	timeout := time.Duration(s.cfg.SettleTimeoutSec) * time.Second
	if _, err := s.submitter.WaitForReceipt(ctx, txHash, timeout); err != nil {
		reason := x402.ReasonSettlementTimeout
		if errors.Is(err, chain.ErrReverted) {
			reason = x402.ReasonSettlementRejected
		}
		s.settleAuditAndRespond(c, auth, requirement, txHash, reason, err.Error())
		return
	}

	s.logger.Info("facilitator settlement confirmed",
		"payer", auth.From, "payTo", auth.To, "amount", auth.Value, "tx", txHash)

	if err := s.audits.Issue(ctx, audit.IssueRequest{
		AttemptID: idgen.WithPrefix("att_"),
		Resource:  requirement.Resource,
		Payer:     auth.From,
		PayTo:     auth.To,
		Amount:    auth.Value,
		Network:   requirement.Network,
		Outcome:   audit.OutcomeSettled,
		TxHash:    txHash,
	}); err != nil {
		s.logger.Warn("failed to issue audit record", "error", err)
	}

	c.JSON(http.StatusOK, x402.SettleResult{
		Paid:    true,
		Amount:  auth.Value,
		TxHash:  txHash,
		Network: requirement.Network,
		Payer:   auth.From,
	})
}

// settleAuditAndRespond handles the irregular settle outcomes: the
// transfer was attempted but its chain state is negative or unknown.
// An audit record marks the occurrence; the case is also queued so
// reconciliation records the final disposition.
func (s *Server) settleAuditAndRespond(c *gin.Context, auth x402.Authorization,
	requirement x402.PaymentRequirement, txHash string, reason x402.Reason, detail string) {

	attempt := settlement.Attempt{
		ID:        idgen.WithPrefix("att_"),
		Resource:  requirement.Resource,
		Network:   requirement.Network,
		Payer:     strings.ToLower(auth.From),
		PayTo:     strings.ToLower(auth.To),
		Amount:    auth.Value,
		Nonce:     auth.Nonce,
		State:     settlement.StateSettle,
		Reason:    reason,
		Detail:    detail,
		TxHash:    txHash,
		Reconcile: true,
		CreatedAt: time.Now(),
	}
	s.queue.Enqueue(c.Request.Context(), attempt)

	if err := s.audits.Issue(c.Request.Context(), audit.IssueRequest{
		AttemptID: attempt.ID,
		Resource:  requirement.Resource,
		Payer:     auth.From,
		PayTo:     auth.To,
		Amount:    auth.Value,
		Network:   requirement.Network,
		Outcome:   audit.OutcomeReconcile,
		Reason:    string(reason),
		TxHash:    txHash,
	}); err != nil {
		s.logger.Warn("failed to issue audit record", "error", err)
	}

	s.logger.Warn("facilitator settlement irregular",
		"payer", auth.From, "tx", txHash, "reason", reason, "detail", detail)

	c.JSON(http.StatusOK, x402.SettleResult{
		Paid:      false,
		TxHash:    txHash,
		Network:   requirement.Network,
		Payer:     auth.From,
		Reason:    reason,
		Message:   reason.Message(),
		Reconcile: true,
	})
}

// facilitatorSupported handles GET /facilitator/supported.
func (s *Server) facilitatorSupported(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"kinds": []gin.H{
			{
				"x402Version": x402.Version,
				"scheme":      x402.SchemeExact,
				"network":     s.cfg.Network,
			},
		},
	})
}
