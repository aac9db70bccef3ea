package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ShopifyVerifier implements the P2 (Shopify-style) scheme: base64
// HMAC-SHA-256 of the raw body, compared against X-Shopify-Hmac-Sha256.
type ShopifyVerifier struct {
	Secret string
}

func (v ShopifyVerifier) Verify(body []byte, headers map[string]string) Result {
	res := Result{
		EventType:       header(headers, "x-shopify-topic"),
		ProviderEventID: header(headers, "x-shopify-webhook-id"),
	}

	supplied := header(headers, "x-shopify-hmac-sha256")
	if supplied == "" {
		return res
	}

	h := hmac.New(sha256.New, []byte(v.Secret))
	h.Write(body)
	expected := base64.StdEncoding.EncodeToString(h.Sum(nil))

	res.Valid = hmac.Equal([]byte(expected), []byte(supplied))
	return res
}
