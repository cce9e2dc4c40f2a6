package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"runclub/gateway/auth"
	"runclub/observability/logging"
)

type contextKey string

const contextKeySigner contextKey = "gateway.signer"

// Signatures verifies request signatures and stores the signer on the
// request context. The body is buffered and restored for the handler.
func Signatures(verifier *auth.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
			if err != nil {
				http.Error(w, "read body", http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()
			principal, err := verifier.Authenticate(r, body)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, auth.ErrReplayed) {
					status = http.StatusConflict
				}
				logger.Warn("signature rejected",
					slog.String("route", r.URL.Path),
					logging.MaskField("signer", r.Header.Get(auth.HeaderSigner)),
					logging.MaskField("signature", r.Header.Get(auth.HeaderSignature)),
					slog.String("error", err.Error()))
				http.Error(w, err.Error(), status)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), contextKeySigner, principal.Signer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignerFromContext returns the verified signer, if any.
func SignerFromContext(ctx context.Context) ([20]byte, bool) {
	signer, ok := ctx.Value(contextKeySigner).([20]byte)
	return signer, ok
}

// WithSigner attaches signer to ctx. Used by tests and trusted in-process callers.
func WithSigner(ctx context.Context, signer [20]byte) context.Context {
	return context.WithValue(ctx, contextKeySigner, signer)
}
