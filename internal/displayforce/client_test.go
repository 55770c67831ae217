package displayforce_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorinsights/internal/displayforce"
)

type capturedRequest struct {
	Token string
	Body  map[string]any
}

func newVisitorServer(t *testing.T, total int, withPagination bool) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/stats/visitor/list", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		mu.Lock()
		captured = append(captured, capturedRequest{Token: r.Header.Get("X-API-Token"), Body: body})
		mu.Unlock()

		offset := int(body["offset"].(float64))
		limit := int(body["limit"].(float64))

		items := []map[string]any{}
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, map[string]any{
				"visitor_id": fmt.Sprintf("v-%d", i),
				"start":      "2024-01-01T10:00:00Z",
				"sex":        1,
				"age":        30,
			})
		}

		resp := map[string]any{"payload": items}
		if withPagination {
			resp["pagination"] = map[string]any{"total": total, "limit": limit, "offset": offset}
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestFetchDay(t *testing.T) {
	t.Run("follows pagination across pages", func(t *testing.T) {
		srv, captured := newVisitorServer(t, 1200, true)
		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL, Token: "secret"})

		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)

		assert.Len(t, visitors, 1200)
		require.Len(t, captured(), 3)
		assert.Equal(t, 0.0, captured()[0].Body["offset"])
		assert.Equal(t, 500.0, captured()[1].Body["offset"])
		assert.Equal(t, 1000.0, captured()[2].Body["offset"])
	})

	t.Run("sends the day window and requested attributes", func(t *testing.T) {
		srv, captured := newVisitorServer(t, 3, true)
		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL, Token: "secret"})

		_, err := client.FetchDay(context.Background(), "2024-01-01", "store-9")
		require.NoError(t, err)

		require.Len(t, captured(), 1)
		req := captured()[0]
		assert.Equal(t, "secret", req.Token)
		assert.Equal(t, "2024-01-01T00:00:00Z", req.Body["start"])
		assert.Equal(t, "2024-01-01T23:59:59Z", req.Body["end"])
		assert.Equal(t, 500.0, req.Body["limit"])
		assert.Equal(t, "store-9", req.Body["device_id"])
		assert.Equal(t, true, req.Body["tracks"])
		assert.ElementsMatch(t, []any{"smile", "pitch", "yaw", "x", "y", "height"}, req.Body["additional_attributes"])
	})

	t.Run("omits device_id for all stores", func(t *testing.T) {
		srv, captured := newVisitorServer(t, 1, true)
		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})

		_, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)

		_, present := captured()[0].Body["device_id"]
		assert.False(t, present)
	})

	t.Run("stops after one full page without pagination info", func(t *testing.T) {
		srv, captured := newVisitorServer(t, 800, false)
		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})

		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)

		assert.Len(t, visitors, 500)
		assert.Len(t, captured(), 1)
	})

	t.Run("stops when total is reached on a full page", func(t *testing.T) {
		srv, captured := newVisitorServer(t, 1000, true)
		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})

		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)

		assert.Len(t, visitors, 1000)
		assert.Len(t, captured(), 2)
	})

	t.Run("falls back to data when payload is missing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":[{"id":7,"start":"2024-01-01T08:00:00Z","sex":2}],"pagination":{"total":1}}`)
		}))
		defer srv.Close()

		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})
		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)

		require.Len(t, visitors, 1)
		assert.Equal(t, "7", visitors[0].Identifier())
	})

	t.Run("odd field types do not fail the page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"payload":[`+
				`{"id":1,"sex":"1","store_name":"Loja"},`+
				`{"id":2,"sex":1.0,"store_name":7},`+
				`{"id":3,"sex":null},`+
				`{"id":4,"sex":"unknown"}`+
				`],"pagination":{"total":4}}`)
		}))
		defer srv.Close()

		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})
		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)

		require.Len(t, visitors, 4)
		assert.Equal(t, []string{"M", "M", "F", "F"}, []string{
			visitors[0].Gender(), visitors[1].Gender(), visitors[2].Gender(), visitors[3].Gender(),
		})
		assert.Equal(t, "7", visitors[1].StoreName.String())
	})

	t.Run("non-array payload yields no visitors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"payload":{"unexpected":true}}`)
		}))
		defer srv.Close()

		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})
		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.NoError(t, err)
		assert.Empty(t, visitors)
	})

	t.Run("returns APIError on non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"bad token"}`)
		}))
		defer srv.Close()

		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})
		visitors, err := client.FetchDay(context.Background(), "2024-01-01", "")
		require.Error(t, err)
		assert.Nil(t, visitors)

		var apiErr *displayforce.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "bad token")
		assert.Contains(t, err.Error(), "API error [401]")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		srv, _ := newVisitorServer(t, 1, true)
		client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FetchDay(ctx, "2024-01-01", "")
		assert.Error(t, err)
	})
}

func TestListDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/device/list", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-API-Token"))
		fmt.Fprint(w, `{"payload":[{"id":12,"name":"Entrance"},{"id":"13","name":"Checkout"}]}`)
	}))
	defer srv.Close()

	client := displayforce.NewClient(displayforce.Options{BaseURL: srv.URL, Token: "tok"})
	devices, err := client.ListDevices(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 2)
	assert.Equal(t, "12", devices[0].ID.String())
	assert.Equal(t, "Entrance", devices[0].Name)
	assert.Equal(t, "13", devices[1].ID.String())
}
