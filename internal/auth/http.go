// ABOUTME: HTTP middleware for signature authentication on API endpoints
// ABOUTME: Extracts X-Claw-* headers and adds the caller identity to context

package auth

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Signed request headers.
const (
	HeaderClawID    = "X-Claw-Id"
	HeaderTimestamp = "X-Claw-Timestamp"
	HeaderSignature = "X-Claw-Signature"
	HeaderNonce     = "X-Claw-Nonce"
)

// HTTPAuthMiddleware creates an HTTP middleware that verifies request
// signatures and adds AuthContext to the request context. The body is read
// for the signature check and restored for downstream handlers.
func HTTPAuthMiddleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timestampMs, _ := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)

			var body []byte
			if r.Body != nil {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					http.Error(w, `{"error":"reading request body"}`, http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			clawID, err := verifier.Verify(r.Context(), &Request{
				ClawID:      r.Header.Get(HeaderClawID),
				TimestampMs: timestampMs,
				Signature:   r.Header.Get(HeaderSignature),
				Nonce:       r.Header.Get(HeaderNonce),
				Method:      r.Method,
				Path:        r.URL.Path,
				Body:        body,
			})
			if err != nil {
				http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}

			authCtx := &AuthContext{ClawID: clawID}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires an admin identity.
// Must be used after AdminAuthMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}
			if !authCtx.Admin {
				http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
