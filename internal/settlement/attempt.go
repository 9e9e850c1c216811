package settlement

import (
	"time"

	"github.com/mbd888/paygate/internal/idgen"
	"github.com/mbd888/paygate/internal/x402"
)

// State is a position in the settlement state machine.
type State string

const (
	StateHold     State = "hold"
	StateExecute  State = "execute"
	StateValidate State = "validate"
	StateSettle   State = "settle"
	StateVoid     State = "void"
)

// Terminal reports whether the state ends the attempt.
func (s State) Terminal() bool {
	return s == StateSettle || s == StateVoid
}

// Transition records one state change with its wall-clock time.
type Transition struct {
	To State     `json:"to"`
	At time.Time `json:"at"`
}

// Attempt is the mutable record the orchestrator builds while
// processing one request. It is owned exclusively by the orchestrator
// for the duration of the request; only its outcome is projected into
// the reliability tracker and the audit log.
type Attempt struct {
	ID         string       `json:"id"`
	Resource   string       `json:"resource"`
	ProviderID string       `json:"providerId"`
	Network    string       `json:"network"`
	Payer      string       `json:"payer,omitempty"`
	PayTo      string       `json:"payTo"`
	Amount     string       `json:"amount"`
	Nonce      string       `json:"nonce,omitempty"`
	State      State        `json:"state"`
	Reason     x402.Reason  `json:"reason,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	TxHash     string       `json:"txHash,omitempty"`
	Reconcile  bool         `json:"reconcile,omitempty"`
	LatencyMs  int64        `json:"latencyMs,omitempty"` // downstream service latency
	CreatedAt  time.Time    `json:"createdAt"`
	History    []Transition `json:"history"`
}

func newAttempt(resource, providerID, network, payTo, amount string) *Attempt {
	now := time.Now()
	return &Attempt{
		ID:         idgen.WithPrefix("att_"),
		Resource:   resource,
		ProviderID: providerID,
		Network:    network,
		PayTo:      payTo,
		Amount:     amount,
		State:      StateHold,
		CreatedAt:  now,
		History:    []Transition{{To: StateHold, At: now}},
	}
}

func (a *Attempt) transition(to State) {
	a.State = to
	a.History = append(a.History, Transition{To: to, At: time.Now()})
}

// void marks the attempt terminal-failure. No value moves.
func (a *Attempt) void(reason x402.Reason, detail string) {
	a.Reason = reason
	a.Detail = detail
	a.transition(StateVoid)
}

// settle marks the attempt terminal-success.
func (a *Attempt) settle(txHash string) {
	a.TxHash = txHash
	a.transition(StateSettle)
}

// irregular marks the attempt terminal but flagged for reconciliation:
// the resource was delivered and the final chain state is unknown or
// negative. Never treated as void.
func (a *Attempt) irregular(reason x402.Reason, detail, txHash string) {
	a.Reason = reason
	a.Detail = detail
	a.TxHash = txHash
	a.Reconcile = true
	a.transition(StateSettle)
}
