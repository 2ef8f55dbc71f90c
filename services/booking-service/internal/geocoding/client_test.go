package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"status":"OK","results":[{"formatted_address":"1 Main St, Springfield","place_id":"pl-1","geometry":{"location":{"lat":40.5,"lng":-74.25}}}]}`

func geocodeServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(baseURL string, cache Cache) *Client {
	return NewClient(Config{BaseURL: baseURL, APIKey: "k", QPS: 1000, Burst: 100}, cache, nil)
}

func TestGeocode_ParsesFirstResult(t *testing.T) {
	srv, _ := geocodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1 Main St", r.URL.Query().Get("address"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		fmt.Fprint(w, okBody)
	})

	res, err := newTestClient(srv.URL, nil).Geocode(context.Background(), "1 Main St")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 40.5, res.Lat)
	assert.Equal(t, -74.25, res.Lng)
	assert.Equal(t, "1 Main St, Springfield", res.FormattedAddress)
	assert.Equal(t, "pl-1", res.PlaceID)
}

func TestValidateAddress(t *testing.T) {
	srv, _ := geocodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "nowhere" {
			fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
			return
		}
		fmt.Fprint(w, okBody)
	})
	c := newTestClient(srv.URL, nil)

	ok, err := c.ValidateAddress(context.Background(), "1 Main St")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ValidateAddress(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGeocode_UpstreamErrors(t *testing.T) {
	srv, _ := geocodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("address") {
		case "denied":
			fmt.Fprint(w, `{"status":"REQUEST_DENIED","error_message":"bad key"}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})
	c := newTestClient(srv.URL, nil)

	_, err := c.Geocode(context.Background(), "denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")

	_, err = c.Geocode(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGeocode_RedisCacheServesRepeatLookups(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, calls := geocodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "nowhere" {
			fmt.Fprint(w, `{"status":"ZERO_RESULTS"}`)
			return
		}
		fmt.Fprint(w, okBody)
	})
	c := newTestClient(srv.URL, NewRedisCache(rdb, "test:geo"))
	ctx := context.Background()

	first, err := c.Geocode(ctx, "1 Main St")
	require.NoError(t, err)
	second, err := c.Geocode(ctx, "  1  MAIN st ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("test:geo:1 main st"))

	for i := 0; i < 2; i++ {
		res, err := c.Geocode(ctx, "nowhere")
		require.NoError(t, err)
		assert.Nil(t, res)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeocode_CollapsesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	srv, calls := geocodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, okBody)
	})
	c := newTestClient(srv.URL, nil)

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Geocode(context.Background(), "1 Main St")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, "pl-1", res.PlaceID)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1 main st", normalize("  1\tMain   ST "))
	// Fullwidth digits fold to ASCII under NFKC.
	assert.Equal(t, normalize("12 Elm"), normalize("１２ Elm"))
	assert.Equal(t, "", normalize("   "))
}

func TestGeocode_CancelledLeaderDoesNotFailFollowers(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv, calls := geocodeServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		fmt.Fprint(w, okBody)
	})
	defer close(release)
	c := newTestClient(srv.URL, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Geocode(leaderCtx, "1 Main St")
		leaderErr <- err
	}()
	<-started

	type outcome struct {
		res *Result
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := c.Geocode(context.Background(), "1  main st")
		follower <- outcome{res, err}
	}()
	time.Sleep(100 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	release <- struct{}{}
	got := <-follower
	require.NoError(t, got.err)
	require.NotNil(t, got.res)
	assert.Equal(t, "pl-1", got.res.PlaceID)
	assert.Equal(t, int32(1), calls.Load())
}
