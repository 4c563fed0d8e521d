package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tokostok/backend/internal/service"
)

// requireDevice resolves the calling device. With tokens enabled a valid
// bearer token is mandatory and its subject is the device id; otherwise the
// X-Device-ID header is trusted as a label.
func (a *API) requireDevice(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.tokens.Enabled() {
			device := strings.TrimSpace(r.Header.Get("X-Device-ID"))
			next(w, r.WithContext(service.WithDevice(r.Context(), device)))
			return
		}

		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.rejectAuth(w, r, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		device, err := a.tokens.Parse(token)
		if err != nil {
			a.rejectAuth(w, r, err)
			return
		}

		next(w, r.WithContext(service.WithDevice(r.Context(), device)))
	}
}

func (a *API) rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	key := clientKey(r)
	if !a.authLimiter.Allow(key) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many failed attempts"))
		return
	}
	a.logger.Warn("device rejected", zap.String("client", key), zap.Error(err))
	a.writeError(w, http.StatusUnauthorized, err)
}
