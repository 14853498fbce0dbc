package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
)

func TestBeginCheckoutPostsCartAndReturnsOrderID(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id":"ORDER-123"}`))
	}))
	defer server.Close()

	items := []cartstore.LineItem{
		{SKU: "a", Quantity: 1},
		{SKU: "b", Quantity: 2},
	}
	orderID, err := NewClient(server.URL).BeginCheckout(context.Background(), items)
	if err != nil {
		t.Fatalf("BeginCheckout: %v", err)
	}

	if orderID != "ORDER-123" {
		t.Errorf("orderID = %q, want ORDER-123", orderID)
	}
	if gotPath != "/api/shopping-cart/begin-checkout" {
		t.Errorf("path = %q", gotPath)
	}
	wantBody := map[string]interface{}{
		"cart": []interface{}{
			map[string]interface{}{"sku": "a", "quantity": float64(1)},
			map[string]interface{}{"sku": "b", "quantity": float64(2)},
		},
	}
	if diff := cmp.Diff(wantBody, gotBody); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteCheckoutReturnsStatusAsIs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ID string `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]string{"id": body.ID, "status": "PENDING"})
	}))
	defer server.Close()

	result, err := NewClient(server.URL).CompleteCheckout(context.Background(), "ORDER-9")
	if err != nil {
		t.Fatalf("CompleteCheckout: %v", err)
	}
	want := CaptureResult{ID: "ORDER-9", Status: "PENDING"}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}
}

func TestRemoteErrorNormalization(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "structured details",
			body: `{"details":[{"issue":"INSTRUMENT_DECLINED","description":"The instrument was declined."}],"debug_id":"abc123"}`,
			want: "INSTRUMENT_DECLINED The instrument was declined. (abc123)",
		},
		{
			name: "plain message",
			body: `{"message":"Order already captured"}`,
			want: "Order already captured",
		},
		{
			name: "unstructured body",
			body: `{"weird":true}`,
			want: `{"weird":true}`,
		},
		{
			name: "not json at all",
			body: `upstream exploded`,
			want: `upstream exploded`,
		},
		{
			name: "details without debug id",
			body: `{"details":[{"issue":"ISSUE","description":"desc"}]}`,
			want: "ISSUE desc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeRemoteError([]byte(tt.body)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBeginCheckoutSurfacesRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"cart is empty"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).BeginCheckout(context.Background(), nil)
	if !IsRemoteRejection(err) {
		t.Fatalf("got %T (%v), want *RemoteRejection", err, err)
	}
	if err.Error() != "cart is empty" {
		t.Errorf("message = %q, want the remote message verbatim", err.Error())
	}
}

func TestCompleteCheckoutNetworkErrorIsNotARejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := NewClient(server.URL).CompleteCheckout(context.Background(), "ORDER-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsRemoteRejection(err) {
		t.Error("transport failure classified as a remote rejection")
	}
}
