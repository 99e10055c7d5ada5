package status

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter caps local command requests per client in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*clientWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

type clientWindow struct {
	start time.Time
	used  int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow records a request for client and reports whether it fits the
// current window.
func (rl *RateLimiter) Allow(client string) bool {
	ok, _ := rl.reserve(client)
	return ok
}

// reserve also returns how long the client has to wait when rejected.
func (rl *RateLimiter) reserve(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	w, ok := rl.windows[client]
	if !ok || now.Sub(w.start) >= rl.window {
		w = &clientWindow{start: now}
		rl.windows[client] = w
	}

	if w.used >= rl.limit {
		return false, w.start.Add(rl.window).Sub(now)
	}
	w.used++
	return true, 0
}

// prune drops windows that ended; the server sees few distinct clients.
func (rl *RateLimiter) prune(now time.Time) {
	for client, w := range rl.windows {
		if now.Sub(w.start) >= rl.window {
			delete(rl.windows, client)
		}
	}
}

func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.reserve(clientIP(r))
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// clientIP keys the limiter on the connection's remote host. Forwarding
// headers are ignored since the server is not deployed behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
