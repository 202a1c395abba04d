package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/holepunch/internal/middleware"
	"github.com/patrickwarner/holepunch/internal/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const statsInterval = 5 * time.Second

var userAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 12; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.5735.196 Mobile Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:111.0) Gecko/20100101 Firefox/111.0",
}

// simulator replays shop visits against a holepunch server. Each simulated
// visitor keeps one session cookie so the block endpoint sees returning users.
type simulator struct {
	server      string
	paths       []string
	users       int
	totalReq    int
	conc        int
	duration    time.Duration
	rate        float64
	surgeEvery  time.Duration
	surgeFor    time.Duration
	surgeFactor float64
	jitter      float64
	label       string

	client *http.Client
	logger *zap.Logger
	rnd    *rand.Rand
	rndMu  sync.Mutex

	sent         uint64
	personalized uint64
	static       uint64
	errors       uint64
}

func main() {
	s := &simulator{}
	var pathCSV string
	var debug bool
	flag.StringVar(&s.server, "server", "http://localhost:8080", "holepunch base URL")
	flag.StringVar(&pathCSV, "paths", "/", "comma-separated page paths to request")
	flag.IntVar(&s.users, "users", 100, "number of unique visitors")
	flag.IntVar(&s.totalReq, "requests", 1000, "total requests to send")
	flag.IntVar(&s.conc, "concurrency", 20, "concurrent requests")
	flag.DurationVar(&s.duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&s.rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.DurationVar(&s.surgeEvery, "surge-interval", 0, "interval between traffic surges (0 to disable)")
	flag.DurationVar(&s.surgeFor, "surge-duration", 0, "duration of each surge window")
	flag.Float64Var(&s.surgeFactor, "surge-multiplier", 2.0, "requests multiplier during surge period")
	flag.Float64Var(&s.jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.StringVar(&s.label, "label", "", "label to identify this run")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	stats := flag.Bool("stats", false, "print aggregated stats periodically")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	logger, err := observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	s.logger = logger
	s.paths = splitPaths(pathCSV)
	if s.label == "" {
		s.label = time.Now().Format(time.RFC3339)
	}
	s.client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.printStats()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	s.run(ctx)
	s.printStats()
}

func splitPaths(csv string) []string {
	var paths []string
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	return paths
}

func (s *simulator) intn(n int) int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.rnd.Intn(n)
}

func (s *simulator) float() float64 {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.rnd.Float64()
}

// interval is the spacing before the next request at elapsed run time.
func (s *simulator) interval(elapsed time.Duration) time.Duration {
	var base time.Duration
	if s.rate > 0 {
		base = time.Duration(float64(time.Second) / s.rate)
	} else if s.duration > 0 && s.totalReq > 0 {
		base = s.duration / time.Duration(s.totalReq)
	}
	if base == 0 {
		return 0
	}
	if s.surgeEvery > 0 && s.surgeFor > 0 && s.surgeFactor > 0 && elapsed%s.surgeEvery < s.surgeFor {
		base = time.Duration(float64(base) / s.surgeFactor)
	}
	if s.jitter > 0 {
		jf := 1 + (s.float()*2-1)*s.jitter
		if jf < 0.1 {
			jf = 0.1
		}
		base = time.Duration(float64(base) * jf)
	}
	return base
}

func (s *simulator) run(ctx context.Context) {
	if s.conc < 1 {
		s.conc = 1
	}
	if s.users < 1 {
		s.users = 1
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.conc)
	start := time.Now()
	next := start

	for i := 0; ; i++ {
		if s.totalReq > 0 && i >= s.totalReq {
			break
		}
		if s.duration > 0 && time.Since(start) >= s.duration {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if d := s.interval(time.Since(start)); d > 0 {
			if now := time.Now(); now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(d)
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.visit(ctx, s.paths[s.intn(len(s.paths))], s.intn(s.users))
		}()
	}
	wg.Wait()
}

// visit requests one page as visitor user and classifies the answer.
func (s *simulator) visit(ctx context.Context, path string, user int) {
	atomic.AddUint64(&s.sent, 1)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.server, "/")+path, nil)
	if err != nil {
		atomic.AddUint64(&s.errors, 1)
		s.logger.Error("request build error", zap.Error(err))
		return
	}
	reqID := uuid.NewString()
	req.Header.Set(middleware.RequestIDHeader, reqID)
	req.Header.Set("User-Agent", userAgents[user%len(userAgents)])
	req.Header.Set("Cookie", fmt.Sprintf("frontend=visitor%d", user))

	resp, err := s.client.Do(req)
	if err != nil {
		atomic.AddUint64(&s.errors, 1)
		s.logger.Error("page request error", zap.Error(err), zap.String("path", path))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		atomic.AddUint64(&s.errors, 1)
		s.logger.Error("unexpected status", zap.Int("status", resp.StatusCode), zap.String("path", path))
		return
	}
	if strings.Contains(resp.Header.Get("Cache-Control"), "private") {
		atomic.AddUint64(&s.personalized, 1)
	} else {
		atomic.AddUint64(&s.static, 1)
	}
	s.logger.Debug("visit", zap.String("request_id", reqID), zap.String("path", path), zap.Int("user", user))
}

func (s *simulator) printStats() {
	sent := atomic.LoadUint64(&s.sent)
	pers := atomic.LoadUint64(&s.personalized)
	static := atomic.LoadUint64(&s.static)
	errs := atomic.LoadUint64(&s.errors)
	var share float64
	if ok := pers + static; ok > 0 {
		share = float64(pers) / float64(ok)
	}
	s.logger.Info("stats",
		zap.String("run", s.label),
		zap.Uint64("sent", sent),
		zap.Uint64("personalized", pers),
		zap.Uint64("static", static),
		zap.Uint64("errors", errs),
		zap.Float64("personalized_share", share))
}
