package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Auth selects how callers prove they may use the relay. With Secret set
// requests must carry an HMAC-SHA256 signature of the body; otherwise a
// non-empty BearerToken is required. Both empty allows everyone.
type Auth struct {
	Secret      string `json:"secret,omitempty" yaml:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
}

// Enabled reports whether any check is configured.
func (a Auth) Enabled() bool { return a.Secret != "" || a.BearerToken != "" }

func (a Auth) authenticate(r *http.Request, body []byte) bool {
	if a.Secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Hub-Signature-256")
		}
		return verifyHMAC(body, a.Secret, sig)
	}
	if a.BearerToken != "" {
		return r.Header.Get("Authorization") == "Bearer "+a.BearerToken
	}
	return true
}

// verifyHMAC checks a "sha256=<hex>" signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// ComputeSignature returns the X-Signature-256 value for body.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
