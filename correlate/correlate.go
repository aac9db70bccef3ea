// Package correlate derives the replay-grouping correlation key from an
// event's provider and parsed payload (spec.md §4.G).
package correlate

import (
	"strconv"

	"github.com/hookwise/core/store"
)

// Key extracts a correlation key from the event's parsed payload per
// provider. Returns "" (meaning null) when no key applies.
func Key(provider store.Provider, payload map[string]any) string {
	switch provider {
	case store.ProviderStripe:
		return stripeKey(payload)
	case store.ProviderShopify:
		return shopifyKey(payload)
	case store.ProviderGitHub:
		return githubKey(payload)
	default:
		return ""
	}
}

func stripeKey(payload map[string]any) string {
	obj, _ := nested(payload, "data", "object").(map[string]any)
	if obj == nil {
		return ""
	}
	if customer, ok := str(obj["customer"]); ok {
		return "stripe:customer:" + customer
	}
	if id, ok := str(obj["id"]); ok {
		return "stripe:object:" + id
	}
	return ""
}

func shopifyKey(payload map[string]any) string {
	if orderID, ok := str(payload["order_id"]); ok {
		return "shopify:order:" + orderID
	}
	if id, ok := str(payload["id"]); ok {
		return "shopify:resource:" + id
	}
	return ""
}

func githubKey(payload map[string]any) string {
	repo, _ := payload["repository"].(map[string]any)
	if repo == nil {
		return ""
	}
	if name, ok := str(repo["full_name"]); ok {
		return "github:repo:" + name
	}
	return ""
}

// nested walks a chain of map keys, stopping and returning nil as soon as a
// key is missing or the value isn't itself a map.
func nested(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = asMap[k]
	}
	return cur
}

// str coerces a decoded JSON scalar (string or float64 id) into a string,
// reporting whether a usable value was present.
func str(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
