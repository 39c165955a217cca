package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	uuid "github.com/nu7hatch/gouuid"
	"go.uber.org/zap"
)

type principalKey struct{}

const requestIdHeader = "X-Request-Id"

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(requestIdHeader)
		if requestId == "" {
			if id, err := uuid.NewV4(); err == nil {
				requestId = id.String()
			}
		}
		w.Header().Set(requestIdHeader, requestId)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		zap.L().With(
			zap.String("requestId", requestId),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		).Debug("Api: Request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// authenticate resolves the bearer token to the caller's address.
func (s Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

		principal, ok := s.principals[token]
		if token == "" || !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or unknown api key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

func principal(r *http.Request) string {
	p, _ := r.Context().Value(principalKey{}).(string)
	return p
}

// normalizePrincipals maps api keys to normalised addresses, dropping keys
// with an invalid address.
func normalizePrincipals(apiKeys map[string]string) map[string]string {
	principals := make(map[string]string, len(apiKeys))
	for key, address := range apiKeys {
		normalized, err := zil.NormalizeAddress(address)
		if err != nil {
			zap.L().With(zap.String("address", address), zap.Error(err)).Warn("Api: Ignoring api key with invalid address")
			continue
		}
		principals[key] = normalized
	}

	return principals
}
