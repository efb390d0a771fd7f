package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dormhousing-backend/api/responses"
	"github.com/angelmondragon/dormhousing-backend/api/validators"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dormhousing-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	shortReplayTTL = time.Hour
	longReplayTTL  = 24 * time.Hour
	inFlightTTL    = 30 * time.Second

	inFlightMarker = "in-flight"
)

// replayRoutes lists the mutating endpoints that require an Idempotency-Key.
// Path segments written as "*" match any single segment.
var replayRoutes = []replayRoute{
	{http.MethodPost, "/api/v1/reservations", longReplayTTL},
	{http.MethodPost, "/api/v1/applications/*/approve", longReplayTTL},
	{http.MethodPost, "/api/v1/applications/*/reject", longReplayTTL},
	{http.MethodPost, "/api/v1/check-ins", longReplayTTL},
	{http.MethodPost, "/api/v1/check-outs", longReplayTTL},
	{http.MethodPost, "/api/v1/admin/reconcile-occupancy", shortReplayTTL},
}

type replayRoute struct {
	method   string
	template string
	ttl      time.Duration
}

func (rt replayRoute) matches(method, path string) bool {
	if rt.method != method {
		return false
	}
	want := strings.Split(strings.Trim(rt.template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		// "*" also matches chi's "{param}" segments.
		if want[i] == "*" {
			if got[i] == "" {
				return false
			}
			continue
		}
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func replayTTL(method, path string) (time.Duration, bool) {
	for _, rt := range replayRoutes {
		if rt.matches(method, path) {
			return rt.ttl, true
		}
	}
	return 0, false
}

// storedResponse is what a completed request leaves behind under its key.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency makes the configured POST routes safe to retry. The first
// request with a key claims it, runs, and stores its response; later requests
// with the same key and body get that response back without re-running.
// A duplicate that arrives while the first is still running is refused with
// a retryable conflict.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayTTL(r.Method, requestRoute(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, validators.MaxBodyBytes+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			if len(body) > validators.MaxBodyBytes {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large").WithDetails(map[string]any{"limit_bytes": validators.MaxBodyBytes}))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintOf(body)
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			claimed, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(w, r, store, key, fingerprint, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			finished := false
			defer func() {
				// A panicking handler must not leave the key stuck in flight.
				if !finished {
					release(r, store, key, logg)
				}
			}()
			next.ServeHTTP(capture, r)
			finished = true

			// Retryable failures release the key so the client's retry runs again.
			if capture.Header().Get("Retry-After") != "" {
				release(r, store, key, logg)
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      capture.statusOrOK(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err != nil {
				logg.Error(ctx, "encode idempotent response", err)
				release(r, store, key, logg)
				return
			}
			if err := store.Set(ctx, key, string(payload), ttl); err != nil {
				logg.Error(ctx, "store idempotent response", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, fingerprint string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil) || (err == nil && (raw == "" || raw == inFlightMarker)):
		// An empty read means the claim expired between SetNX and Get.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRequestInFlight, "a request with this Idempotency-Key is still being processed"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent response"))
		return
	}
	if stored.Fingerprint != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func release(r *http.Request, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	if err := store.Del(r.Context(), key); err != nil {
		logg.Error(r.Context(), "release idempotency key", err)
	}
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// requestRoute prefers the matched chi pattern. Group-level middleware runs
// before routing finishes and only sees "/prefix/*", so it falls back to the
// raw path there.
func requestRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
