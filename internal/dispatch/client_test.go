package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/patrickwarner/holepunch/internal/blocks"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShouldDispatch(t *testing.T) {
	tests := []struct {
		count   int
		product string
		want    bool
	}{
		{0, "", false},
		{0, "42", true},
		{1, "", true},
		{3, "42", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldDispatch(tt.count, tt.product), "count=%d product=%q", tt.count, tt.product)
	}
}

func newPayload() *blocks.Payload {
	p := &blocks.Payload{PageURL: "http://shop.test/p.html", CurrentProductID: "42"}
	p.Blocks.Set("ph_0", "cart.sidebar")
	p.Blocks.Set("header", "top.links")
	return p
}

func TestFetchSendsPayloadAndDecodes(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/aoestatic/call/index", r.URL.Path)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Equal(t, "frontend=abc", r.Header.Get("Cookie"))
		assert.Empty(t, r.Header.Get("Authorization"))

		got, err := blocks.ParsePayload(r.URL.RawQuery)
		require.NoError(t, err)
		assert.Equal(t, []blocks.Pair{{Key: "ph_0", Value: "cart.sidebar"}, {Key: "header", Value: "top.links"}}, got.Blocks.Pairs())
		assert.Equal(t, "http://shop.test/p.html", got.PageURL)
		assert.Equal(t, "42", got.CurrentProductID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"blocks":{"ph_0":"<b>hi</b>"},"code":{"a":"x()"}}`))
	}))
	defer server.Close()

	metrics := &observability.MockMetricsRegistry{}
	client := NewClient(server.URL+"/aoestatic/call/index", 0, []string{"Cookie"}, zaptest.NewLogger(t), metrics)

	header := http.Header{}
	header.Set("Cookie", "frontend=abc")
	header.Set("Authorization", "secret")

	resp, err := client.Fetch(context.Background(), newPayload(), header)
	require.NoError(t, err)

	v, ok := resp.Blocks.Get("ph_0")
	assert.True(t, ok)
	assert.Equal(t, "<b>hi</b>", v)
	assert.Equal(t, 1, resp.Code.Len())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, metrics.Count("dispatch:success"))
}

func TestFetchKeepsEndpointQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "default", r.URL.Query().Get("store"))
		assert.Equal(t, "42", r.URL.Query().Get("currentProductId"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/call?store=default", 0, nil, nil, nil)
	_, err := client.Fetch(context.Background(), newPayload(), nil)
	require.NoError(t, err)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrEndpointStatus},
		{"not found", http.StatusNotFound, "", ErrEndpointStatus},
		{"malformed json", http.StatusOK, "<html>oops</html>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			metrics := &observability.MockMetricsRegistry{}
			client := NewClient(server.URL, 0, nil, zaptest.NewLogger(t), metrics)
			resp, err := client.Fetch(context.Background(), newPayload(), nil)
			assert.Nil(t, resp)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			assert.Equal(t, 1, metrics.Count("dispatch:failure"))
		})
	}
}

func TestDispatchRunsContinuationOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"blocks":{"ph_0":"x"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil, zaptest.NewLogger(t), nil)

	var got *blocks.Response
	pending := client.Dispatch(context.Background(), newPayload(), nil, func(resp *blocks.Response) {
		got = resp
	})
	require.NoError(t, pending.Wait())
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Blocks.Len())

	select {
	case <-pending.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
}

func TestDispatchFailureIsNoOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil, zaptest.NewLogger(t), nil)

	ran := false
	pending := client.Dispatch(context.Background(), newPayload(), nil, func(*blocks.Response) { ran = true })
	err := pending.Wait()
	assert.True(t, errors.Is(err, ErrEndpointStatus))
	assert.False(t, ran)
}

func TestDispatchUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, 0, nil, zaptest.NewLogger(t), nil)
	ran := false
	err := client.Dispatch(context.Background(), newPayload(), nil, func(*blocks.Response) { ran = true }).Wait()
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestDispatchCancelledContextDropsContinuation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, 0, nil, zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())

	ran := false
	pending := client.Dispatch(ctx, newPayload(), nil, func(*blocks.Response) { ran = true })
	cancel()

	err := pending.Wait()
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, ran)
}

// goneAfterResponse never interrupts the request itself but reports the
// visitor as gone once the response is checked.
type goneAfterResponse struct{ context.Context }

func (goneAfterResponse) Err() error { return context.Canceled }

func TestDispatchAbandonedCountsOneOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"blocks":{"ph_0":"x"}}`))
	}))
	defer server.Close()

	metrics := &observability.MockMetricsRegistry{}
	client := NewClient(server.URL, 0, nil, zaptest.NewLogger(t), metrics)

	ran := false
	err := client.Dispatch(goneAfterResponse{context.Background()}, newPayload(), nil,
		func(*blocks.Response) { ran = true }).Wait()

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, ran)
	assert.Equal(t, 1, metrics.Count("dispatch:abandoned"))
	assert.Equal(t, 0, metrics.Count("dispatch:success"))
	assert.Equal(t, 0, metrics.Count("dispatch:failure"))
}

func TestDispatchSuccessCountedOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	metrics := &observability.MockMetricsRegistry{}
	client := NewClient(server.URL, 0, nil, zaptest.NewLogger(t), metrics)
	require.NoError(t, client.Dispatch(context.Background(), newPayload(), nil, func(*blocks.Response) {}).Wait())

	assert.Equal(t, 1, metrics.Count("dispatch:success"))
	assert.Equal(t, 0, metrics.Count("dispatch:abandoned"))
}
