package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/WhiteRabbitVintageMarket/storefront/internal/cartstore"
)

// RemoteRejection is a well-formed error response from the checkout service,
// normalized to a single human-readable message shown to the user verbatim.
type RemoteRejection struct {
	Message string
}

func (e *RemoteRejection) Error() string {
	return e.Message
}

// IsRemoteRejection reports whether err is a checkout service rejection, as
// opposed to a transport failure.
func IsRemoteRejection(err error) bool {
	var rejection *RemoteRejection
	return errors.As(err, &rejection)
}

// CaptureResult is the checkout service's answer to a capture attempt. Only
// Status == "COMPLETED" counts as a confirmed payment.
type CaptureResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// orderPayload covers every response shape the checkout service produces:
// a successful order, a structured error ({details: [...]}), or a plain
// message. Unknown shapes fall through to the raw body.
type orderPayload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// normalizeRemoteError turns whatever the checkout service sent into one
// human-readable string, without assuming any field is present.
func normalizeRemoteError(raw []byte) string {
	var payload orderPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		if len(payload.Details) > 0 {
			detail := payload.Details[0]
			message := strings.TrimSpace(detail.Issue + " " + detail.Description)
			if payload.DebugID != "" {
				message = fmt.Sprintf("%s (%s)", message, payload.DebugID)
			}
			if message != "" {
				return message
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(raw)
}

// Client calls the remote checkout service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer: otel.Tracer("storefront/checkout"),
	}
}

// BeginCheckout creates a remote order for the cart's line items and returns
// the order id the payment widget needs.
func (c *Client) BeginCheckout(ctx context.Context, items []cartstore.LineItem) (string, error) {
	type cartLine struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
	}
	lines := make([]cartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, cartLine{SKU: item.SKU, Quantity: item.Quantity})
	}

	payload, err := c.post(ctx, "/api/shopping-cart/begin-checkout", struct {
		Cart []cartLine `json:"cart"`
	}{Cart: lines})
	if err != nil {
		return "", err
	}

	var order orderPayload
	if json.Unmarshal(payload, &order) == nil && order.ID != "" {
		return order.ID, nil
	}
	return "", &RemoteRejection{Message: normalizeRemoteError(payload)}
}

// CompleteCheckout captures the approved order. The caller decides what a
// non-COMPLETED status means; this only distinguishes an answer from a
// rejection.
func (c *Client) CompleteCheckout(ctx context.Context, orderID string) (CaptureResult, error) {
	payload, err := c.post(ctx, "/api/shopping-cart/complete-checkout", struct {
		ID string `json:"id"`
	}{ID: orderID})
	if err != nil {
		return CaptureResult{}, err
	}

	var order orderPayload
	if json.Unmarshal(payload, &order) == nil && order.ID != "" {
		return CaptureResult{ID: order.ID, Status: order.Status}, nil
	}
	return CaptureResult{}, &RemoteRejection{Message: normalizeRemoteError(payload)}
}

// LookupOrder fetches the completed order record for the confirmation view.
func (c *Client) LookupOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "checkout.LookupOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	requestURL := c.baseURL + "/api/orders?paypal-order-id=" + orderID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrap(err, "lookup order")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "read order response")
	}
	if resp.StatusCode != http.StatusOK {
		err := errors.Errorf("checkout service returned status %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return json.RawMessage(body), nil
}

// post sends a JSON body and returns the raw response payload. The checkout
// service reports rejections in the body, so any parseable response comes
// back for the caller to interpret regardless of HTTP status.
func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "checkout"+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	encoded, err := json.Marshal(body)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "encode request")
	}

	requestURL := c.baseURL + path
	span.SetAttributes(
		attribute.String("http.url", requestURL),
		attribute.String("http.method", http.MethodPost),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(encoded))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "read response")
	}
	return payload, nil
}
