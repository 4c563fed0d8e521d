package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tokostok/backend/internal/auth"
	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/metrics"
	"tokostok/backend/internal/service"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/xid"
)

const apiPrefix = "/api/v1/"

type API struct {
	service       *service.Service
	tokens        *auth.Manager
	allowedOrigin string
	authLimiter   *attemptLimiter
	collections   map[string]collectionRoutes
	logger        *zap.Logger
}

func New(svc *service.Service, tokens *auth.Manager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		tokens:        tokens,
		allowedOrigin: allowedOrigin,
		authLimiter:   newAttemptLimiter(10, time.Minute),
		collections: map[string]collectionRoutes{
			domain.KindProduct.Collection():     routesFor(service.NewCollection[domain.Product](svc, domain.KindProduct)),
			domain.KindCustomer.Collection():    routesFor(service.NewCollection[domain.Customer](svc, domain.KindCustomer)),
			domain.KindStockItem.Collection():   routesFor(service.NewCollection[domain.StockItem](svc, domain.KindStockItem)),
			domain.KindStockOrder.Collection():  routesFor(service.NewCollection[domain.StockOrder](svc, domain.KindStockOrder)),
			domain.KindCatalog.Collection():     routesFor(service.NewCollection[domain.Catalog](svc, domain.KindCatalog)),
			domain.KindSale.Collection():        routesFor(service.NewCollection[domain.Sale](svc, domain.KindSale)),
			domain.KindDelivery.Collection():    routesFor(service.NewCollection[domain.Delivery](svc, domain.KindDelivery)),
			domain.KindSearchCache.Collection(): routesFor(service.NewCollection[domain.SearchCache](svc, domain.KindSearchCache)),
		},
		logger: logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/versions/", a.requireDevice(a.handleVersion))
	mux.HandleFunc("/api/v1/sales/items", a.requireDevice(a.handleSaleItems))
	mux.HandleFunc(apiPrefix, a.requireDevice(a.handleCollection))

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.service.Ping(r.Context()); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/versions/")
	id, err := strconv.Atoi(strings.Trim(raw, "/"))
	if err != nil || !domain.Kind(id).Valid() {
		a.writeError(w, http.StatusNotFound, fmt.Errorf("unknown version kind %q", raw))
		return
	}
	kind := domain.Kind(id)

	switch r.Method {
	case http.MethodGet:
		version, err := a.service.Version(r.Context(), kind)
		if err != nil {
			a.writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, version)
	case http.MethodPut:
		var version domain.DataVersion
		if err := decodeJSON(r, &version); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if version.ID == 0 {
			version.ID = kind
		}
		if version.ID != kind {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("version id %d does not match path kind %d", int(version.ID), id))
			return
		}
		written, err := a.service.PutVersion(r.Context(), version)
		if err != nil {
			a.writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, written)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Items []domain.SaleItems `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.InsertSaleItems(r.Context(), req.Items); err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCollection(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix), "/"), "/")
	routes, ok := a.collections[parts[0]]
	if !ok || len(parts) > 2 {
		a.writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}

	if len(parts) == 2 {
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id < 1 {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid id %q", parts[1]))
			return
		}
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		if err := routes.delete(r, id); err != nil {
			a.writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := routes.list(r)
		if err != nil {
			a.writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if err := routes.upsert(r); err != nil {
			a.writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

type collectionRoutes struct {
	list   func(r *http.Request) (any, error)
	upsert func(r *http.Request) error
	delete func(r *http.Request, id int64) error
}

func routesFor[T domain.Entity[T]](c *service.Collection[T]) collectionRoutes {
	return collectionRoutes{
		list: func(r *http.Request) (any, error) {
			return c.List(r.Context())
		},
		upsert: func(r *http.Request) error {
			var row T
			if err := decodeJSON(r, &row); err != nil {
				return fmt.Errorf("%w: %v", errBadRequest, err)
			}
			return c.Upsert(r.Context(), row)
		},
		delete: func(r *http.Request, id int64) error {
			return c.Delete(r.Context(), id)
		},
	}
}

var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-ID, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = xid.New("req")
		}
		w.Header().Set("X-Request-ID", requestID)

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		took := time.Since(startedAt)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(took.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("request_id", requestID),
			zap.Duration("took", took),
		)
	})
}

// routeLabel collapses ids out of the path to keep metric cardinality fixed.
func routeLabel(path string) string {
	switch {
	case path == "/healthz", path == "/metrics", path == "/api/v1/sales/items":
		return path
	case strings.HasPrefix(path, "/api/v1/versions/"):
		return "/api/v1/versions/{kind}"
	case strings.HasPrefix(path, apiPrefix):
		parts := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
		if _, ok := domain.KindFromCollection(parts[0]); !ok {
			return "other"
		}
		if len(parts) == 1 {
			return apiPrefix + parts[0]
		}
		return apiPrefix + parts[0] + "/{id}"
	default:
		return "other"
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": "method not allowed",
	})
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
