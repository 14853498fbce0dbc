// Package checkout drives the payment provider's order lifecycle: order
// creation, buyer approval, capture, and the post-capture cart clear.
package checkout

import "github.com/google/uuid"

// State is the checkout session's position in the payment lifecycle.
type State string

const (
	StateIdle             State = "IDLE"
	StateCreatingOrder    State = "CREATING_ORDER"
	StateAwaitingApproval State = "AWAITING_BUYER_APPROVAL"
	StateCapturing        State = "CAPTURING"
	StateCompleted        State = "COMPLETED"
	StateFailed           State = "FAILED"
)

// IsTerminal reports whether the session is finished, successfully or not.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// InFlight reports whether a payment attempt is underway. A repeat pay
// invocation while in flight must be ignored.
func (s State) InFlight() bool {
	return s == StateCreatingOrder || s == StateAwaitingApproval || s == StateCapturing
}

func (s State) String() string {
	return string(s)
}

// Session tracks one payment attempt. Sessions are transient: never
// persisted, discarded once terminal and acknowledged.
type Session struct {
	ID      uuid.UUID `json:"id"`
	State   State     `json:"state"`
	OrderID string    `json:"order_id,omitempty"`
	Err     string    `json:"error,omitempty"`
}
