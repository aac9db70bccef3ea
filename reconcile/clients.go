package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// StripeClient pages Stripe's GET /v1/events via the created[gte]/[lte]
// cursor described in spec.md §4.J's P1 rule.
type StripeClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewStripeClient builds a StripeClient against api.stripe.com by default.
func NewStripeClient() *StripeClient {
	return &StripeClient{
		BaseURL:    "https://api.stripe.com",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *StripeClient) Pull(ctx context.Context, credential string, since time.Time) ([]providerEvent, error) {
	var out []providerEvent
	cursor := ""

	for {
		q := url.Values{}
		q.Set("created[gte]", strconv.FormatInt(since.Unix(), 10))
		q.Set("created[lte]", strconv.FormatInt(time.Now().Unix(), 10))
		q.Set("limit", "100")
		if cursor != "" {
			q.Set("starting_after", cursor)
		}

		var page stripeEventList
		if err := c.getWithRetry(ctx, credential, "/v1/events?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("stripe: list events: %w", err)
		}

		for _, e := range page.Data {
			out = append(out, providerEvent{
				ProviderEventID: e.ID,
				Type:            e.Type,
				CreatedAt:       time.Unix(e.Created, 0).UTC(),
				Data:            e.Raw,
			})
			cursor = e.ID
		}
		if !page.HasMore || len(page.Data) == 0 {
			return out, nil
		}
	}
}

func (c *StripeClient) getWithRetry(ctx context.Context, credential, path string, dst any) error {
	backoff, err := retry.NewExponential(500 * time.Millisecond)
	if err != nil {
		return fmt.Errorf("stripe: build backoff: %w", err)
	}
	b := retry.WithMaxRetries(3, backoff)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth(credential, "")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("stripe: server error %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(dst)
	})
}

type stripeEventList struct {
	HasMore bool          `json:"has_more"`
	Data    []stripeEvent `json:"data"`
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Raw     json.RawMessage `json:"-"`
}

func (e *stripeEvent) UnmarshalJSON(data []byte) error {
	type alias stripeEvent
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = stripeEvent(a)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ShopifyClient pages Shopify's Admin REST orders endpoint following its
// Link-header cursor, per spec.md §4.J's P2 rule.
type ShopifyClient struct {
	BaseURL    string // e.g. https://{shop}.myshopify.com
	HTTPClient *http.Client
}

// NewShopifyClient builds a ShopifyClient for the given shop domain.
func NewShopifyClient(baseURL string) *ShopifyClient {
	return &ShopifyClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ShopifyClient) Pull(ctx context.Context, credential string, since time.Time) ([]providerEvent, error) {
	var out []providerEvent
	path := fmt.Sprintf("/admin/api/2024-01/orders.json?status=any&created_at_min=%s&limit=250",
		url.QueryEscape(since.Format(time.RFC3339)))

	for path != "" {
		var page shopifyOrderList
		next, err := c.getWithRetry(ctx, credential, path, &page)
		if err != nil {
			return nil, fmt.Errorf("shopify: list orders: %w", err)
		}
		for _, o := range page.Orders {
			out = append(out, providerEvent{
				ProviderEventID: fmt.Sprintf("shopify:order:%d", o.ID),
				Type:            "orders/create",
				CreatedAt:       o.CreatedAt,
				Data:            o.Raw,
			})
		}
		path = next
	}
	return out, nil
}

func (c *ShopifyClient) getWithRetry(ctx context.Context, credential, path string, dst *shopifyOrderList) (string, error) {
	backoff, err := retry.NewExponential(500 * time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("shopify: build backoff: %w", err)
	}
	b := retry.WithMaxRetries(3, backoff)
	var next string
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Shopify-Access-Token", credential)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("shopify: server error %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("shopify: unexpected status %d", resp.StatusCode)
		}
		next = parseNextLink(resp.Header.Get("Link"))
		return json.NewDecoder(resp.Body).Decode(dst)
	})
	return next, err
}

type shopifyOrderList struct {
	Orders []shopifyOrder `json:"orders"`
}

type shopifyOrder struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Raw       json.RawMessage `json:"-"`
}

func (o *shopifyOrder) UnmarshalJSON(data []byte) error {
	type alias shopifyOrder
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = shopifyOrder(a)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// parseNextLink extracts the rel="next" target from a Shopify-style Link
// header, returning "" once there is no further page.
func parseNextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, segment := range strings.Split(header, ",") {
		fields := strings.Split(segment, ";")
		if len(fields) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(fields[0]), "<>")
		for _, param := range fields[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
