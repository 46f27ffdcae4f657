package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/sourcegraph/conc/panics"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret,
// the format Coinbase sends in X-Coinbase-Signature.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the hex HMAC-SHA256 of payload under
// secret. It must be given the raw request body, never a re-encoded form.
// Empty inputs and any failure during computation yield false.
func Verify(signature string, payload []byte, secret string) bool {
	ok, _ := VerifyDetailed(signature, payload, secret)
	return ok
}

// VerifyDetailed is Verify that also returns the recovered panic, if any,
// so callers can log it.
func VerifyDetailed(signature string, payload []byte, secret string) (ok bool, err error) {
	if signature == "" || len(payload) == 0 || secret == "" {
		return false, nil
	}

	recovered := panics.Try(func() {
		expected := []byte(Sign(secret, payload))
		actual := []byte(signature)

		// ConstantTimeCompare returns 0 on length mismatch, keep the guard explicit.
		if len(actual) != len(expected) {
			return
		}
		ok = subtle.ConstantTimeCompare(actual, expected) == 1
	})
	if recovered != nil {
		return false, recovered.AsError()
	}
	return ok, nil
}
