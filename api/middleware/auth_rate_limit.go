package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/studiopass/api/responses"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

const maxAuthBodyBytes = 16 << 10

// RateCounter is the fixed-window counter behind auth throttling.
type RateCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	RateLimitKey(policy, scope, subject string) string
}

// AuthRateLimitPolicy throttles one auth endpoint per client IP and per
// submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

type rateBucket struct {
	scope   string
	subject string
	limit   int
}

// AuthRateLimit rejects sign-in and sign-up bursts with RATE_LIMIT_EXCEEDED.
// Emails are hashed before they become part of a key.
func AuthRateLimit(policy AuthRateLimitPolicy, counter RateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			buckets := []rateBucket{{scope: "ip", subject: clientIP(r), limit: policy.PerIP}}

			if policy.PerEmail > 0 {
				body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAuthBodyBytes))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if email := emailFromBody(body); email != "" {
					buckets = append(buckets, rateBucket{scope: "email", subject: hashEmail(email), limit: policy.PerEmail})
				}
			}

			for _, b := range buckets {
				if b.limit <= 0 || b.subject == "" {
					continue
				}
				count, err := counter.Hit(ctx, counter.RateLimitKey(policy.Name, b.scope, b.subject), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting unavailable"))
					return
				}
				if count > int64(b.limit) {
					rejectBurst(ctx, logg, w, policy, b, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectBurst(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, b rateBucket, count int64) {
	retryAfter := int(policy.Window.Round(time.Second).Seconds())
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"policy":   policy.Name,
			"scope":    b.scope,
			"subject":  b.subject,
			"attempts": count,
			"limit":    b.limit,
		})
		logg.Warn(ctx, "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{"retry_after_seconds": retryAfter}))
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:12])
}
