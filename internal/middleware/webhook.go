package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/Strob0t/Sofia/internal/domain/dispatch"
)

const maxWebhookBody = 1 << 20 // 1 MB

// WebhookHMAC returns middleware that validates HMAC-SHA256 webhook signatures
// ("sha256=<hex>") carried in header. The body is restored for the next
// handler so it can decode the exact bytes that were signed.
func WebhookHMAC(secret, header string) func(http.Handler) http.Handler {
	return WebhookHMACFunc(func() string { return secret }, header)
}

// WebhookHMACFunc is WebhookHMAC with the secret resolved per request, so a
// rotated secret takes effect without rebuilding the router.
func WebhookHMACFunc(secretFn func() string, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := secretFn()
			if secret == "" {
				http.Error(w, `{"error":"webhook secret not configured"}`, http.StatusServiceUnavailable)
				return
			}

			sig := r.Header.Get(header)
			if sig == "" {
				http.Error(w, `{"error":"missing webhook signature"}`, http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			if len(body) > maxWebhookBody {
				http.Error(w, `{"error":"body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !dispatch.Verify(secret, body, sig) {
				http.Error(w, `{"error":"invalid webhook signature"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
