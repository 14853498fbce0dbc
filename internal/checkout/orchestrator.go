package checkout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
)

// CartStore is the slice of the cart store the orchestrator needs.
type CartStore interface {
	Get(ctx context.Context) cartstore.Cart
	Clear(ctx context.Context)
}

// CheckoutClient talks to the remote checkout service.
type CheckoutClient interface {
	BeginCheckout(ctx context.Context, items []cartstore.LineItem) (string, error)
	CompleteCheckout(ctx context.Context, orderID string) (CaptureResult, error)
}

// StartOptions configure one payment widget run.
type StartOptions struct {
	PaymentFlow string
}

// OrderIDFunc produces the remote order id the widget should collect payment
// for. The widget calls it once, after the buyer clicks.
type OrderIDFunc func(ctx context.Context) (string, error)

// Widget is the opaque third-party payment SDK. The orchestrator hands it
// order creation and receives approval or cancellation back through the
// Handle methods.
type Widget interface {
	Start(ctx context.Context, opts StartOptions, orderID OrderIDFunc) error
}

// CaptureStatusCompleted is the only capture status that confirms payment.
const CaptureStatusCompleted = "COMPLETED"

// Orchestrator runs the checkout state machine. One session exists at a
// time; while it is in flight, repeat pay invocations are ignored so a
// double click can never create a second remote order. The cart is cleared
// on exactly one transition: Capturing to Completed, after the capture
// response confirms success.
type Orchestrator struct {
	cart   CartStore
	client CheckoutClient
	log    logrus.FieldLogger

	mu      sync.Mutex
	session *Session
}

func NewOrchestrator(cart CartStore, client CheckoutClient, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		cart:   cart,
		client: client,
		log:    log,
	}
}

// Session returns a snapshot of the current session. With no payment attempt
// underway it reports StateIdle.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

// Acknowledge discards a terminal session, returning the machine to Idle.
// Calling it mid-flight does nothing.
func (o *Orchestrator) Acknowledge() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil && o.session.State.IsTerminal() {
		o.session = nil
	}
}

// Pay starts a payment attempt: it creates a remote order for the current
// cart and leaves the session awaiting buyer approval. If an attempt is
// already in flight the call is ignored and the live session is returned. A
// failed or completed previous session is discarded and a fresh one started.
func (o *Orchestrator) Pay(ctx context.Context) Session {
	o.mu.Lock()
	if o.session != nil && o.session.State.InFlight() {
		current := *o.session
		o.mu.Unlock()
		o.log.WithField("state", current.State).Debug("checkout already in progress, ignoring pay")
		return current
	}
	session := &Session{ID: uuid.New(), State: StateCreatingOrder}
	o.session = session
	o.mu.Unlock()

	items := o.cart.Get(ctx).Items
	orderID, err := o.client.BeginCheckout(ctx, items)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != session {
		return o.snapshot()
	}
	if err != nil {
		session.State = StateFailed
		session.Err = err.Error()
		o.log.WithError(err).Error("begin checkout failed")
		return *session
	}
	session.OrderID = orderID
	session.State = StateAwaitingApproval
	o.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"order_id":   orderID,
	}).Info("order created, awaiting buyer approval")
	return *session
}

// HandleApprove is the widget's approval callback: the buyer authorized
// payment for orderID, so capture it. The cart is cleared only when the
// capture response reports COMPLETED; any other status or error leaves the
// cart untouched and fails the session.
func (o *Orchestrator) HandleApprove(ctx context.Context, orderID string) Session {
	o.mu.Lock()
	if o.session == nil || o.session.State != StateAwaitingApproval {
		o.log.WithField("state", o.stateLocked()).Warn("approve callback outside of approval wait, ignoring")
		current := o.snapshot()
		o.mu.Unlock()
		return current
	}
	session := o.session
	session.State = StateCapturing
	o.mu.Unlock()

	result, err := o.client.CompleteCheckout(ctx, orderID)

	o.mu.Lock()
	if o.session != session {
		current := o.snapshot()
		o.mu.Unlock()
		return current
	}
	var captured bool
	switch {
	case err != nil:
		session.State = StateFailed
		session.Err = err.Error()
		o.log.WithError(err).Error("complete checkout failed")
	case result.Status != CaptureStatusCompleted:
		session.State = StateFailed
		session.Err = errors.Errorf("order %s was not captured: status %s", result.ID, result.Status).Error()
		o.log.WithFields(logrus.Fields{
			"order_id": result.ID,
			"status":   result.Status,
		}).Error("capture not confirmed, cart left untouched")
	default:
		session.State = StateCompleted
		session.OrderID = result.ID
		captured = true
	}
	current := *session
	o.mu.Unlock()

	if captured {
		// Confirmed capture is the one place the cart is cleared.
		o.cart.Clear(ctx)
		o.log.WithField("order_id", result.ID).Info("order captured, cart cleared")
	}
	return current
}

// HandleCancel is the widget's cancellation callback: the buyer backed out
// or the widget closed. The session is discarded and the cart untouched; the
// buyer can pay again later.
func (o *Orchestrator) HandleCancel() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil && o.session.State == StateAwaitingApproval {
		o.log.WithField("session_id", o.session.ID).Info("buyer cancelled checkout")
		o.session = nil
	}
	return o.snapshot()
}

// HandleWidgetError is the widget's failure callback.
func (o *Orchestrator) HandleWidgetError(err error) Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil && o.session.State.InFlight() {
		o.session.State = StateFailed
		o.session.Err = err.Error()
		o.log.WithError(err).Error("payment widget failed")
	}
	return o.snapshot()
}

// Checkout runs one widget-driven payment attempt: the widget is started
// with a callback that creates the remote order, and reports approval or
// cancellation back through the Handle methods.
func (o *Orchestrator) Checkout(ctx context.Context, widget Widget) error {
	return widget.Start(ctx, StartOptions{PaymentFlow: "auto"}, func(ctx context.Context) (string, error) {
		session := o.Pay(ctx)
		if session.State != StateAwaitingApproval {
			return "", errors.New(session.Err)
		}
		return session.OrderID, nil
	})
}

// snapshot and stateLocked require o.mu held.
func (o *Orchestrator) snapshot() Session {
	if o.session == nil {
		return Session{State: StateIdle}
	}
	return *o.session
}

func (o *Orchestrator) stateLocked() State {
	if o.session == nil {
		return StateIdle
	}
	return o.session.State
}
