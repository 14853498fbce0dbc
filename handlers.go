package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartview"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/catalog"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/checkout"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/pubsub"
)

// frontendServer exposes the cart engine to the page. It touches cart state
// only through the cart store's operations and the notification bus.
type frontendServer struct {
	catalogBaseURL  string
	checkoutBaseURL string

	cart         *cartstore.Store
	reconciler   *catalog.Reconciler
	orchestrator *checkout.Orchestrator
	orders       *checkout.Client
	bus          *pubsub.Bus
	badge        *badgeCounter
	ping         func(ctx context.Context) bool
	log          logrus.FieldLogger
}

func (s *frontendServer) registerRoutes(r *mux.Router) {
	r.HandleFunc("/cart", s.viewCartHandler).Methods(http.MethodGet)
	r.HandleFunc("/cart", s.emptyCartHandler).Methods(http.MethodDelete)
	r.HandleFunc("/cart/count", s.cartCountHandler).Methods(http.MethodGet)
	r.HandleFunc("/cart/items/{sku}", s.addItemHandler).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{sku}", s.removeItemHandler).Methods(http.MethodDelete)
	r.HandleFunc("/checkout", s.payHandler).Methods(http.MethodPost)
	r.HandleFunc("/checkout/approve", s.approveHandler).Methods(http.MethodPost)
	r.HandleFunc("/checkout/cancel", s.cancelHandler).Methods(http.MethodPost)
	r.HandleFunc("/checkout/session", s.sessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/order-complete", s.orderCompleteHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
}

// viewCartHandler reconciles the cart against the catalog and serves the
// projection. Rendering publishes cart.view.rendered so checkout buttons
// know the cart is safe to probe.
func (s *frontendServer) viewCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cart := s.cart.Get(ctx)
	if cart.IsEmpty() {
		renderJSON(w, http.StatusOK, cartview.Projection{Lines: []cartview.Line{}})
		s.bus.Publish(pubsub.TopicCartViewRendered, nil)
		return
	}

	products, err := s.reconciler.Reconcile(ctx, cart.SKUs())
	if err == catalog.ErrSuperseded {
		// A newer render pass owns the cart view now; drop this one.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.log.WithError(err).Error("cart reconciliation failed")
		renderError(w, http.StatusBadGateway, "Failed to load products. Please try again later.")
		return
	}

	projection := cartview.Project(s.cart.Get(ctx), products)
	renderJSON(w, http.StatusOK, projection)
	s.bus.Publish(pubsub.TopicCartViewRendered, nil)
}

func (s *frontendServer) addItemHandler(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	s.cart.Add(r.Context(), sku)
	renderJSON(w, http.StatusOK, s.cart.Get(r.Context()))
}

func (s *frontendServer) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	sku := mux.Vars(r)["sku"]
	s.cart.Remove(r.Context(), sku)
	renderJSON(w, http.StatusOK, s.cart.Get(r.Context()))
}

func (s *frontendServer) emptyCartHandler(w http.ResponseWriter, r *http.Request) {
	s.cart.Clear(r.Context())
	renderJSON(w, http.StatusOK, s.cart.Get(r.Context()))
}

func (s *frontendServer) cartCountHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]int{"count": s.badge.Count()})
}

func (s *frontendServer) payHandler(w http.ResponseWriter, r *http.Request) {
	session := s.orchestrator.Pay(r.Context())
	renderJSON(w, http.StatusOK, session)
}

func (s *frontendServer) approveHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OrderID == "" {
		renderError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	session := s.orchestrator.HandleApprove(r.Context(), body.OrderID)
	renderJSON(w, http.StatusOK, session)
}

func (s *frontendServer) cancelHandler(w http.ResponseWriter, r *http.Request) {
	session := s.orchestrator.HandleCancel()
	renderJSON(w, http.StatusOK, session)
}

func (s *frontendServer) sessionHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, s.orchestrator.Session())
}

// orderCompleteHandler serves the order-confirmation view's lookup.
func (s *frontendServer) orderCompleteHandler(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("paypal-order-id")
	if orderID == "" {
		renderJSON(w, http.StatusOK, json.RawMessage(`{}`))
		return
	}
	order, err := s.orders.LookupOrder(r.Context(), orderID)
	if err != nil {
		s.log.WithError(err).Error("order lookup failed")
		renderError(w, http.StatusBadGateway, "Failed to load order. Please try again later.")
		return
	}
	renderJSON(w, http.StatusOK, order)
}

func (s *frontendServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil && !s.ping(r.Context()) {
		renderError(w, http.StatusServiceUnavailable, "cart storage unreachable")
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, status int, message string) {
	renderJSON(w, status, map[string]string{"error": message})
}
