package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokostok/backend/internal/auth"
	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/remote"
	"tokostok/backend/internal/store"
)

func TestVersionNotFoundMeansAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/versions/4", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	_, ok, err := remote.New(srv.URL, time.Second).Version(context.Background(), domain.KindSale)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersionDecodesRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.NewVersion(domain.KindStockItem, "2024-05-01T08:00:00Z"))
	}))
	defer srv.Close()

	version, ok, err := remote.New(srv.URL+"/", time.Second).Version(context.Background(), domain.KindStockItem)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "STOCK", version.Name)
	assert.Equal(t, "2024-05-01T08:00:00Z", version.Timestamp)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := remote.NewCollection[domain.Product](remote.New(srv.URL, time.Second), domain.KindProduct).GetAll(context.Background())
	require.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, _, err := remote.New(srv.URL, 50*time.Millisecond).Version(context.Background(), domain.KindProduct)
	require.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := remote.New(url, time.Second).PutVersion(context.Background(), domain.NewVersion(domain.KindProduct, "x"))
	require.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestClientErrorKeepsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"insufficient stock"}`))
	}))
	defer srv.Close()

	err := remote.New(srv.URL, time.Second).InsertSaleItems(context.Background(), []domain.SaleItems{{Sale: domain.Sale{ID: 1}}})
	var statusErr *remote.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.Status)
	assert.Equal(t, "insufficient stock", statusErr.Message)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.NotErrorIs(t, err, remote.ErrUnavailable)
}

func TestCollectionRequests(t *testing.T) {
	type call struct {
		method string
		path   string
		body   domain.Customer
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path}
		if r.Method == http.MethodPost {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&c.body))
		}
		calls = append(calls, c)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"items":[{"id":3,"timestamp":"t","name":"Sari"}]}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	customers := remote.NewCollection[domain.Customer](remote.New(srv.URL, time.Second), domain.KindCustomer)

	rows, err := customers.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sari", rows[0].Name)

	require.NoError(t, customers.Insert(ctx, domain.Customer{ID: 9, Name: "Budi"}))
	require.NoError(t, customers.Delete(ctx, 9))

	require.Len(t, calls, 3)
	assert.Equal(t, "/api/v1/customers", calls[0].path)
	assert.Equal(t, http.MethodPost, calls[1].method)
	assert.Equal(t, int64(9), calls[1].body.ID)
	assert.Equal(t, http.MethodDelete, calls[2].method)
	assert.Equal(t, "/api/v1/customers/9", calls[2].path)
}

func TestRequestsCarryDeviceHeaders(t *testing.T) {
	tokens := auth.NewManager("rahasia-toko", time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "kasir-01", r.Header.Get("X-Device-ID"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		device, err := tokens.Parse(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		assert.NoError(t, err)
		assert.Equal(t, "kasir-01", device)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := remote.New(srv.URL, time.Second,
		remote.WithDeviceID("kasir-01"),
		remote.WithTokenSource(tokens.TokenSource("kasir-01")),
	)
	require.NoError(t, client.PutVersion(context.Background(), domain.NewVersion(domain.KindProduct, "x")))
}
