package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{"/a.html", "/b/"}, splitPaths(" a.html, /b/ ,"))
	assert.Equal(t, []string{"/"}, splitPaths(""))
}

func TestIntervalSurge(t *testing.T) {
	s := &simulator{rate: 10, surgeEvery: time.Minute, surgeFor: 10 * time.Second, surgeFactor: 2}
	assert.Equal(t, 50*time.Millisecond, s.interval(5*time.Second))
	assert.Equal(t, 100*time.Millisecond, s.interval(30*time.Second))

	unpaced := &simulator{}
	assert.Zero(t, unpaced.interval(0))
}

func TestRunClassifiesResponses(t *testing.T) {
	var cookies int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "" {
			atomic.AddInt32(&cookies, 1)
		}
		switch r.URL.Path {
		case "/product.html":
			w.Header().Set("Cache-Control", "private, no-cache")
		case "/gone.html":
			http.NotFound(w, r)
			return
		default:
			w.Header().Set("Cache-Control", "public, max-age=60")
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	s := &simulator{
		server:   server.URL,
		paths:    []string{"/product.html"},
		users:    3,
		totalReq: 6,
		conc:     2,
		label:    "test",
		client:   server.Client(),
		logger:   zaptest.NewLogger(t),
	}
	s.run(context.Background())

	assert.Equal(t, uint64(6), s.sent)
	assert.Equal(t, uint64(6), s.personalized)
	assert.Equal(t, int32(6), atomic.LoadInt32(&cookies))

	s.visit(context.Background(), "/about.html", 1)
	s.visit(context.Background(), "/gone.html", 1)
	assert.Equal(t, uint64(1), s.static)
	assert.Equal(t, uint64(1), s.errors)
	s.printStats()
}
