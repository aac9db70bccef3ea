package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// stripeMaxAge is the 300-second replay window from spec.md §4.A P1.
const stripeMaxAge = 300 * time.Second

// StripeVerifier implements the P1 (Stripe-style) scheme: header
// `t=<unix>,v1=<hex>[,v1=<hex>...]`, signed message `<t>.<raw-body>`.
type StripeVerifier struct {
	Secret string
}

// Verify checks the stripe-signature header. Unlike Shopify/GitHub, Stripe
// carries event type and id in the JSON body rather than headers, so Result
// leaves EventType/ProviderEventID blank here; the ingestion endpoint fills
// them from the parsed payload's "type"/"id" fields (spec.md §4.F step 4).
func (v StripeVerifier) Verify(body []byte, headers map[string]string) Result {
	var res Result

	ts, sigs, err := parseStripeHeader(header(headers, "stripe-signature"))
	if err != nil {
		return res
	}

	now := time.Now().Unix()
	age := now - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > stripeMaxAge {
		return res
	}

	signedMessage := fmt.Sprintf("%d.%s", ts, body)
	h := hmac.New(sha256.New, []byte(v.Secret))
	h.Write([]byte(signedMessage))
	expected := hex.EncodeToString(h.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			res.Valid = true
			return res
		}
	}
	return res
}

// parseStripeHeader splits `t=<unix>,v1=<hex>,v1=<hex>...` into the
// timestamp and the list of v1 candidates.
func parseStripeHeader(raw string) (int64, []string, error) {
	if raw == "" {
		return 0, nil, fmt.Errorf("signature: empty stripe-signature header")
	}

	var ts int64
	var tsSet bool
	var sigs []string

	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("signature: invalid stripe timestamp: %w", err)
			}
			ts = parsed
			tsSet = true
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}

	if !tsSet || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("signature: malformed stripe-signature header")
	}
	return ts, sigs, nil
}
