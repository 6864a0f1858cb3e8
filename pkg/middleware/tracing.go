package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracingInstrumentation = "github.com/luxuryfashion/storefront/pkg/middleware"

// Values of the auth.credential span attribute.
const (
	CredentialBearer = "bearer"
	CredentialCookie = "cookie"
	CredentialNone   = "none"
)

type tracingOptions struct {
	clients    *IPResolver
	cookieName string
}

// TracingOption customizes Tracing.
type TracingOption func(*tracingOptions)

// WithClientResolver records the resolved client address instead of the raw
// peer, and lets X-Forwarded-Proto through from trusted proxies.
func WithClientResolver(res *IPResolver) TracingOption {
	return func(o *tracingOptions) { o.clients = res }
}

// WithCredentialCookie names the session cookie whose presence is reported
// in auth.credential when no bearer header is sent.
func WithCredentialCookie(name string) TracingOption {
	return func(o *tracingOptions) { o.cookieName = name }
}

// Tracing starts a server span per request from inbound W3C trace context.
// Only the URL path is recorded, never the query, because OAuth callbacks
// carry the authorization code there. Credentials are reported by kind only.
// 401, 403 and 429 responses add a request.rejected event; 5xx marks the span
// as failed.
func Tracing(serviceName string, opts ...TracingOption) func(http.Handler) http.Handler {
	o := tracingOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clients == nil {
		o.clients = NewIPResolver(nil, nil)
	}

	tracer := otel.Tracer(tracingInstrumentation,
		trace.WithInstrumentationAttributes(attribute.String("service.name", serviceName)))
	propagator := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			// Renamed to the chi route pattern once routing has run.
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(r.Method),
					semconv.HTTPScheme(o.scheme(r)),
					semconv.UserAgentOriginal(r.UserAgent()),
					attribute.String("url.path", r.URL.Path),
					attribute.String("http.client_ip", o.clients.ClientIP(r)),
					attribute.String("auth.credential", o.credential(r)),
				),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					span.SetName(r.Method + " " + pattern)
					span.SetAttributes(attribute.String("http.route", pattern))
				}
			}

			status := rw.statusCode
			span.SetAttributes(semconv.HTTPStatusCode(status))
			switch {
			case status >= http.StatusInternalServerError:
				span.SetStatus(codes.Error, http.StatusText(status))
			case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
				span.AddEvent("request.rejected", trace.WithAttributes(attribute.Int("http.status_code", status)))
			}
		})
	}
}

func (o tracingOptions) credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return CredentialBearer
	}
	if o.cookieName != "" {
		if c, err := r.Cookie(o.cookieName); err == nil && c.Value != "" {
			return CredentialCookie
		}
	}
	return CredentialNone
}

func (o tracingOptions) scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if o.clients.trustsPeer(r) {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
			return proto
		}
	}
	return "http"
}
