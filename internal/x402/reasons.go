package x402

// Reason is a machine-readable rejection or outcome key. Every reason
// has a distinct human-readable message so both programmatic agents and
// humans debugging an integration get something useful.
type Reason string

const (
	ReasonMalformedHeader    Reason = "MalformedHeader"
	ReasonUnsupportedVersion Reason = "UnsupportedVersion"
	ReasonInvalidSignature   Reason = "InvalidSignature"
	ReasonNonceReused        Reason = "NonceReused"
	ReasonWindowNotYetValid  Reason = "PaymentWindowNotYetValid"
	ReasonPaymentExpired     Reason = "PaymentExpired"
	ReasonInsufficientAmount Reason = "InsufficientAmount"
	ReasonPreflightFailed    Reason = "PreflightFailed"
	ReasonServiceUnreachable Reason = "ServiceUnreachable"
	ReasonServiceError       Reason = "ServiceError"
	ReasonResultRejected     Reason = "ResultRejected"
	ReasonSettlementRejected Reason = "SettlementRejectedOnChain"
	ReasonSettlementTimeout  Reason = "SettlementTimeout"
)

var reasonMessages = map[Reason]string{
	ReasonMalformedHeader:    "payment header is not valid base64-encoded JSON",
	ReasonUnsupportedVersion: "payment header uses an unsupported x402 version",
	ReasonInvalidSignature:   "authorization signature does not recover to the payer address",
	ReasonNonceReused:        "authorization nonce was already used; sign a fresh authorization to retry",
	ReasonWindowNotYetValid:  "authorization validAfter is in the future",
	ReasonPaymentExpired:     "authorization validBefore has passed; sign a fresh authorization",
	ReasonInsufficientAmount: "authorized amount is below the required payment",
	ReasonPreflightFailed:    "payer balance check failed or balance is insufficient",
	ReasonServiceUnreachable: "downstream service could not be reached before the timeout",
	ReasonServiceError:       "downstream service returned an error response",
	ReasonResultRejected:     "downstream service responded, but the payload failed result validation",
	ReasonSettlementRejected: "on-chain settlement was rejected after the service already delivered; flagged for reconciliation",
	ReasonSettlementTimeout:  "settlement submitted but confirmation was not observed in time; flagged for reconciliation",
}

// Message returns the human-readable explanation for a reason.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

// Terminal reports whether the reason ends the attempt without any
// value movement (VOID) as opposed to a reconciliation case.
func (r Reason) Terminal() bool {
	return r != ReasonSettlementRejected && r != ReasonSettlementTimeout
}
