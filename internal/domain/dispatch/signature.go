package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of outbound webhook bodies and is
// expected on inbound webhook triggers.
const SignatureHeader = "X-Sofia-Signature"

const signaturePrefix = "sha256="

// Sign returns "sha256=<lowercase hex HMAC-SHA256(secret, body)>". The body
// must be the exact bytes put on the wire.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time. Both the prefixed
// form and a bare hex digest are accepted.
func Verify(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
