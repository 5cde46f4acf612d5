package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ThrottleConfig limits how often one caller may hit the wrapped handler.
type ThrottleConfig struct {
	// Limit is the number of requests a caller may make per Window. Zero
	// disables throttling.
	Limit  int
	Window time.Duration
	// Key identifies the caller. Defaults to CallerKey.
	Key func(*http.Request) string
}

// CallerKey identifies a caller by the X-USER-ID header and falls back to the
// client address for anonymous requests.
func CallerKey(r *http.Request) string {
	if id := r.Header.Get("X-USER-ID"); id != "" {
		return "user:" + id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return "addr:" + strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}

// window holds the counts of the current and the previous fixed window. The
// previous count is weighted by how much of it still overlaps the sliding
// window ending now.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type throttle struct {
	cfg ThrottleConfig

	mu      sync.Mutex
	callers map[string]*window
}

func newThrottle(cfg ThrottleConfig) *throttle {
	if cfg.Key == nil {
		cfg.Key = CallerKey
	}
	return &throttle{cfg: cfg, callers: make(map[string]*window)}
}

func (t *throttle) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := now.Truncate(t.cfg.Window)
	w, found := t.callers[key]
	switch {
	case !found:
		w = &window{start: start}
		t.callers[key] = w
	case start.Sub(w.start) >= 2*t.cfg.Window:
		w.start, w.curr, w.prev = start, 0, 0
	case start.After(w.start):
		w.start, w.prev, w.curr = start, w.curr, 0
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(t.cfg.Window)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(t.cfg.Window)
	if used >= float64(t.cfg.Limit) {
		return 0, reset, false
	}

	w.curr++
	return max(int(float64(t.cfg.Limit)-used-1), 0), reset, true
}

// evict drops callers idle for two full windows.
func (t *throttle) evict(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, w := range t.callers {
		if now.Sub(w.start) >= 2*t.cfg.Window {
			delete(t.callers, key)
		}
	}
}

// Throttle rejects callers over the configured rate with 429 and the
// {"code","message"} error body. Responses carry X-RateLimit-* headers.
// Idle callers are evicted until ctx is done.
func Throttle(ctx context.Context, cfg ThrottleConfig) Middleware {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	t := newThrottle(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := t.take(t.cfg.Key(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(t.cfg.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := math.Ceil(max(time.Until(reset), 0).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(wait)))
				writeError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
