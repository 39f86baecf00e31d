package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/qrsignin/internal/adapter/driven/api"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
)

// cacheableServer answers every GET with a response httpcache would store
// and serve fresh for a minute, echoing the Authorization header.
func cacheableServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1,"name":"`+r.Header.Get("Authorization")+`","email":"a@example.com"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPClient_AuthenticatedGETsBypassCache(t *testing.T) {
	srv, hits := cacheableServer(t)
	client, err := api.NewClient(api.NewHTTPClient(5*time.Second), srv.URL)
	require.NoError(t, err)

	first, err := client.CurrentUser(context.Background(), model.Credential("tok_a"))
	require.NoError(t, err)
	second, err := client.CurrentUser(context.Background(), model.Credential("tok_b"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "Bearer tok_a", first.Name)
	assert.Equal(t, "Bearer tok_b", second.Name)
}

func TestHTTPClient_AnonymousGETsAreCached(t *testing.T) {
	srv, hits := cacheableServer(t)
	httpClient := api.NewHTTPClient(5 * time.Second)

	for range 2 {
		resp, err := httpClient.Get(srv.URL + "/public")
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		require.NoError(t, resp.Body.Close())
	}

	assert.Equal(t, int32(1), hits.Load())
}
