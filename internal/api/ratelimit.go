package api

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit returns middleware enforcing a per-client request rate. Tuned
// with RATE_RPS and RATE_BURST; both unset disables limiting.
func RateLimit(next http.Handler) http.Handler {
	rps, _ := strconv.ParseFloat(os.Getenv("RATE_RPS"), 64)
	burst, _ := strconv.Atoi(os.Getenv("RATE_BURST"))
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}
	get := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l := limiters[key]
		if l == nil {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[key] = l
		}
		return l
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !get(host).Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
