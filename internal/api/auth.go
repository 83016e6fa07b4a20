package api

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"dispatchboard/internal/config"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/models"

	"golang.org/x/time/rate"
)

var errPermissionDenied = fmt.Errorf("permission denied")

// Auth provides API-key auth and per-key rate limiting. The in-process
// token bucket absorbs bursts; the shared counter in the state repository
// enforces the per-minute cap across instances.
type Auth struct {
	cfg      config.APIConfig
	state    domain.StateRepository
	limiters sync.Map // map[string]*rate.Limiter
}

func NewAuth(cfg config.APIConfig, state domain.StateRepository) *Auth {
	return &Auth{cfg: cfg, state: state}
}

func (a *Auth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Auth) headerName() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		h = "x-api-key"
	}
	return h
}

func (a *Auth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return fmt.Errorf("missing api key")
	}

	client, ok := a.lookupKey(apiKey)
	if !ok {
		return fmt.Errorf("invalid api key")
	}

	return a.checkPermissions(client, r)
}

func (a *Auth) lookupKey(apiKey string) (config.APIClientKey, bool) {
	for _, k := range a.cfg.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(apiKey)) == 1 {
			return k, true
		}
	}
	return config.APIClientKey{}, false
}

// checkPermissions enforces the per-key permission list. A key with no
// permissions configured may call everything.
func (a *Auth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/driver/"):
		return "driver"
	case strings.HasPrefix(path, "/api/v1/board"):
		if r.Method == http.MethodGet {
			return "read:board"
		}
		return "write:board"
	}
	return ""
}

func (a *Auth) checkRateLimit(r *http.Request) error {
	key := a.clientKey(r)

	if a.cfg.RateLimit.RPS > 0 {
		if !a.getLimiter(key).Allow() {
			return fmt.Errorf("rate limit exceeded")
		}
	}

	if a.state != nil {
		ok, err := a.state.CheckRateLimit(r.Context(), key, models.RateLimitRequests, models.RateLimitWindow)
		if err != nil {
			// The limiter is advisory: a broken counter never blocks traffic.
			return nil
		}
		if !ok {
			return fmt.Errorf("rate limit exceeded")
		}
	}
	return nil
}

func (a *Auth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *Auth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
