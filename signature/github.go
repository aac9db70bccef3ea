package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GitHubVerifier implements the P3 (GitHub-style) scheme: `sha256=<hex>` of
// the raw body, compared against X-Hub-Signature-256.
type GitHubVerifier struct {
	Secret string
}

func (v GitHubVerifier) Verify(body []byte, headers map[string]string) Result {
	res := Result{
		EventType:       header(headers, "x-github-event"),
		ProviderEventID: header(headers, "x-github-delivery"),
	}

	supplied := header(headers, "x-hub-signature-256")
	const prefix = "sha256="
	if !strings.HasPrefix(supplied, prefix) {
		return res
	}
	supplied = strings.TrimPrefix(supplied, prefix)

	h := hmac.New(sha256.New, []byte(v.Secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	res.Valid = hmac.Equal([]byte(expected), []byte(supplied))
	return res
}
