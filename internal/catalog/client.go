// Package catalog fetches authoritative product data and reconciles the
// cart against it: SKUs that no longer resolve to a purchasable product are
// pruned from the cart as a side effect.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// FetchError wraps any transport, status or decode failure talking to the
// catalog service. It is retryable: the cart was not touched.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch products: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client calls the remote catalog service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// No client-wide timeout; each request is bounded by its context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer: otel.Tracer("storefront/catalog"),
	}
}

// FetchProducts resolves skus with a single batched request, one round trip
// regardless of cart size. Products come back in catalog response order.
func (c *Client) FetchProducts(ctx context.Context, skus []string) ([]Product, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.FetchProducts", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("app.sku_count", len(skus)))

	query := url.Values{}
	for _, sku := range skus {
		query.Add("sku[]", sku)
	}
	requestURL := c.baseURL + "/api/products?" + query.Encode()
	span.SetAttributes(attribute.String("http.url", requestURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		span.RecordError(err)
		return nil, &FetchError{Err: err}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := errors.Errorf("catalog service returned status %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &FetchError{Err: err}
	}

	var body struct {
		Data []Product `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &FetchError{Err: errors.Wrap(err, "decode catalog response")}
	}
	return body.Data, nil
}
