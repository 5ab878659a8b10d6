package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AlexKimmel/admitgate/internal/clock"
	"github.com/AlexKimmel/admitgate/internal/ratelimit"
	"github.com/AlexKimmel/admitgate/internal/stats"
)

const tracerName = "github.com/AlexKimmel/admitgate/internal/gateway"

type RateLimitOptions struct {
	Clock     clock.Clock         // defaults to the system clock
	KeyFn     KeyFunc             // defaults to DefaultKeyFunc(false)
	SkipPaths map[string]struct{} // ops endpoints served without limits
	Stats     stats.Recorder      // best-effort decision counters

	OnAdmit   func(routeID string)
	OnLimited func(routeID string)
	OnError   func(routeID string)
}

func RateLimit(lim ratelimit.Limiter, opts RateLimitOptions) Middleware {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}
	if opts.Stats == nil {
		opts.Stats = stats.Nop{}
	}
	tracer := otel.Tracer(tracerName)
	// sustained limiting gets one warn line per interval; the rest go to debug
	warn := &rate.Sometimes{Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := opts.SkipPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			identity := opts.KeyFn(r)
			if identity == "" {
				identity = UnknownIdentity
			}
			routeID := RouteID(r)
			now := opts.Clock.Now()

			ctx, span := tracer.Start(r.Context(), "admission.check",
				trace.WithAttributes(attribute.String("admission.route", routeID)))
			dec, err := lim.Check(identity, now)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "admission check failed")
				span.End()
				hlog.FromRequest(r).Error().Err(err).Str("identity", identity).Str("route", routeID).Msg("admission check failed")
				if opts.OnError != nil {
					opts.OnError(routeID)
				}
				writeJSON(w, http.StatusInternalServerError, "rate_limiter_error", "internal rate limiter error")
				return
			}
			span.SetAttributes(
				attribute.Bool("admission.allowed", dec.Allowed),
				attribute.Int("admission.remaining", dec.Remaining),
				attribute.Int64("admission.retry_after_ms", dec.RetryAfter.Milliseconds()),
			)
			span.End()

			if err := opts.Stats.Record(ctx, stats.Event{
				Identity: identity,
				Allowed:  dec.Allowed,
				Route:    routeID,
				At:       now,
			}); err != nil {
				hlog.FromRequest(r).Debug().Err(err).Msg("stats record failed")
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(dec.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))

			if !dec.Allowed {
				if opts.OnLimited != nil {
					opts.OnLimited(routeID)
				}
				logger := hlog.FromRequest(r)
				logger.Debug().Str("identity", identity).Str("route", routeID).Dur("retry_after", dec.RetryAfter).Msg("rate limited")
				warn.Do(func() {
					logger.Warn().Str("identity", identity).Int("limit", dec.Limit).Msg("admission rejecting requests")
				})
				writeRejected(w, dec)
				return
			}

			if opts.OnAdmit != nil {
				opts.OnAdmit(routeID)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRejected(w http.ResponseWriter, dec ratelimit.Decision) {
	secs := strconv.FormatInt(dec.RetryAfterSeconds(), 10)
	w.Header().Set("Retry-After", secs)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"Rate limit exceeded","retry_after":` + secs + `}}`))
}
