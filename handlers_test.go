package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartview"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/catalog"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/checkout"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/kv"
	"github.com/WhiteRabbitVintageMarket/storefront/internal/pubsub"
)

// upstream fakes the remote catalog and checkout services for one test.
type upstream struct {
	mux *http.ServeMux
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{mux: http.NewServeMux()}
	server := httptest.NewServer(u.mux)
	t.Cleanup(server.Close)
	return u, server
}

func newTestFrontend(t *testing.T, upstreamURL string) (*frontendServer, *mux.Router, *pubsub.Bus) {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard

	bus := pubsub.NewBus()
	svc := &frontendServer{
		catalogBaseURL:  upstreamURL,
		checkoutBaseURL: upstreamURL,
		bus:             bus,
		log:             log,
	}
	svc.cart = cartstore.New(kv.NewLocal(), "shoppingCart", bus, log)
	svc.reconciler = catalog.NewReconciler(catalog.NewClient(upstreamURL), svc.cart, log)
	svc.orchestrator = checkout.NewOrchestrator(svc.cart, checkout.NewClient(upstreamURL), log)
	svc.orders = checkout.NewClient(upstreamURL)
	svc.badge = newBadgeCounter(context.Background(), svc.cart, bus)

	r := mux.NewRouter()
	svc.registerRoutes(r)
	return svc, r, bus
}

func do(t *testing.T, router *mux.Router, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestShoppingTripEndToEnd(t *testing.T) {
	u, server := newUpstream(t)
	u.mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"sku":"A","name":"Brooch","amount":"10.00","quantity":2},
			{"sku":"B","name":"Hat","amount":"15.00","quantity":1}
		]}`))
	})
	u.mux.HandleFunc("/api/shopping-cart/begin-checkout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ORDER-1"}`))
	})
	u.mux.HandleFunc("/api/shopping-cart/complete-checkout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED"}`))
	})

	svc, router, bus := newTestFrontend(t, server.URL)

	rendered := 0
	bus.Subscribe(pubsub.TopicCartViewRendered, func(interface{}) {
		rendered++
	})
	var lastCartEvent *cartstore.Cart
	bus.Subscribe(pubsub.TopicCartChanged, func(payload interface{}) {
		snapshot := payload.(cartstore.Cart)
		lastCartEvent = &snapshot
	})

	do(t, router, http.MethodPost, "/cart/items/A", "")
	do(t, router, http.MethodPost, "/cart/items/B", "")
	if svc.badge.Count() != 2 {
		t.Errorf("badge count = %d, want 2", svc.badge.Count())
	}

	resp := do(t, router, http.MethodGet, "/cart", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("GET /cart status = %d, body %s", resp.Code, resp.Body)
	}
	var projection cartview.Projection
	if err := json.Unmarshal(resp.Body.Bytes(), &projection); err != nil {
		t.Fatalf("decode projection: %v", err)
	}
	if !projection.Subtotal.Equal(decimal.RequireFromString("25.00")) {
		t.Errorf("subtotal = %s, want 25.00", projection.Subtotal)
	}
	if len(projection.Lines) != 2 {
		t.Errorf("got %d lines, want 2", len(projection.Lines))
	}
	if rendered != 1 {
		t.Errorf("cart.view.rendered published %d times, want 1", rendered)
	}

	resp = do(t, router, http.MethodPost, "/checkout", "")
	var session checkout.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.State != checkout.StateAwaitingApproval {
		t.Fatalf("session state = %s, body %s", session.State, resp.Body)
	}

	resp = do(t, router, http.MethodPost, "/checkout/approve", `{"order_id":"ORDER-1"}`)
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.State != checkout.StateCompleted {
		t.Fatalf("session state = %s, want %s", session.State, checkout.StateCompleted)
	}

	if !svc.cart.Get(context.Background()).IsEmpty() {
		t.Error("cart not empty after completed checkout")
	}
	if lastCartEvent == nil || len(lastCartEvent.Items) != 0 {
		t.Error("final cart-changed notification missing or non-empty")
	}
	if svc.badge.Count() != 0 {
		t.Errorf("badge count = %d, want 0", svc.badge.Count())
	}
}

func TestViewCartPrunesSoldOutItems(t *testing.T) {
	u, server := newUpstream(t)
	u.mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"sku":"X","name":"Sold","amount":"5.00","quantity":0},
			{"sku":"Y","name":"Here","amount":"7.50","quantity":4}
		]}`))
	})

	svc, router, _ := newTestFrontend(t, server.URL)
	do(t, router, http.MethodPost, "/cart/items/X", "")
	do(t, router, http.MethodPost, "/cart/items/Y", "")

	resp := do(t, router, http.MethodGet, "/cart", "")
	var projection cartview.Projection
	if err := json.Unmarshal(resp.Body.Bytes(), &projection); err != nil {
		t.Fatalf("decode projection: %v", err)
	}

	if len(projection.Lines) != 1 || projection.Lines[0].Product.SKU != "Y" {
		t.Errorf("projected lines = %+v, want only Y", projection.Lines)
	}
	if svc.cart.Contains(context.Background(), "X") {
		t.Error("sold-out SKU still in the cart store")
	}
}

func TestViewCartCatalogFailure(t *testing.T) {
	u, server := newUpstream(t)
	u.mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	svc, router, _ := newTestFrontend(t, server.URL)
	do(t, router, http.MethodPost, "/cart/items/A", "")

	resp := do(t, router, http.MethodGet, "/cart", "")
	if resp.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.Code, http.StatusBadGateway)
	}
	if svc.cart.Get(context.Background()).IsEmpty() {
		t.Error("catalog failure mutated the cart")
	}
}

func TestViewCartEmpty(t *testing.T) {
	_, server := newUpstream(t)
	_, router, bus := newTestFrontend(t, server.URL)

	rendered := 0
	bus.Subscribe(pubsub.TopicCartViewRendered, func(interface{}) {
		rendered++
	})

	resp := do(t, router, http.MethodGet, "/cart", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var projection cartview.Projection
	if err := json.Unmarshal(resp.Body.Bytes(), &projection); err != nil {
		t.Fatalf("decode projection: %v", err)
	}
	if len(projection.Lines) != 0 {
		t.Errorf("got %d lines, want 0", len(projection.Lines))
	}
	// Even an empty render signals the checkout button layer.
	if rendered != 1 {
		t.Errorf("cart.view.rendered published %d times, want 1", rendered)
	}
}

func TestFailedCaptureLeavesCartIntact(t *testing.T) {
	u, server := newUpstream(t)
	u.mux.HandleFunc("/api/shopping-cart/begin-checkout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ORDER-2"}`))
	})
	u.mux.HandleFunc("/api/shopping-cart/complete-checkout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ORDER-2","status":"DECLINED"}`))
	})

	svc, router, _ := newTestFrontend(t, server.URL)
	do(t, router, http.MethodPost, "/cart/items/A", "")

	do(t, router, http.MethodPost, "/checkout", "")
	resp := do(t, router, http.MethodPost, "/checkout/approve", `{"order_id":"ORDER-2"}`)

	var session checkout.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.State != checkout.StateFailed {
		t.Errorf("session state = %s, want %s", session.State, checkout.StateFailed)
	}
	if svc.cart.Get(context.Background()).IsEmpty() {
		t.Error("cart cleared on a failed capture")
	}
}

func TestOrderCompleteLookup(t *testing.T) {
	u, server := newUpstream(t)
	u.mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("paypal-order-id") != "ORDER-3" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":"ORDER-3","status":"COMPLETED"}`))
	})

	_, router, _ := newTestFrontend(t, server.URL)
	resp := do(t, router, http.MethodGet, "/order-complete?paypal-order-id=ORDER-3", "")

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "ORDER-3" {
		t.Errorf("body = %v", body)
	}
}
