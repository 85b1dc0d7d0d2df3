package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// A claim outlives any handler; a crashed request frees its key after this.
	pendingTTL = 2 * time.Minute
)

// replayableWrite is a storefront write that a client may safely retry with
// the same Idempotency-Key.
type replayableWrite struct {
	name  string
	match func(path string) bool
	ttl   time.Duration
}

// Checkout and returns move money, so their keys are kept for a week.
var replayableWrites = []replayableWrite{
	{name: "create_order", match: pathIs("/api/orders"), ttl: 7 * 24 * time.Hour},
	{name: "request_return", match: pathAround("/api/orders/", "/returns"), ttl: 7 * 24 * time.Hour},
	{name: "create_promotion", match: pathIs("/api/admin/promotions"), ttl: 24 * time.Hour},
	{name: "register_lot", match: pathAround("/api/admin/products/", "/lot"), ttl: 24 * time.Hour},
}

// storedResponse is the Redis value under a request key. Status zero means
// the first request is still running.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency replays the stored response when a customer or staff member
// repeats a checkout, return request, promotion or lot registration with the
// same Idempotency-Key. The key is claimed before the handler runs, so a
// concurrent duplicate is rejected instead of executed. Server errors release
// the key for a retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := strings.TrimSuffix(r.URL.Path, "/")
			op, ok := writeFor(r.Method, path)
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

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintOf(path, body)
			key := store.Key(pkgredis.ScopeRequest, UserIDFromContext(ctx).String(), op.name, clientKey)

			claim, _ := json.Marshal(storedResponse{Fingerprint: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(claim), pendingTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, logg, w, store, key, fingerprint)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			settle(ctx, logg, store, key, op, fingerprint, rec)
		})
	}
}

func replay(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, fingerprint string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// The first request failed and released the key between our calls.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if stored.Fingerprint != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
		return
	}
	if stored.Status == 0 {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// settle swaps the pending claim for the final response, or drops it when the
// handler failed on our side.
func settle(ctx context.Context, logg *logger.Logger, store pkgredis.IdempotencyStore, key string, op replayableWrite, fingerprint string, rec *responseCapture) {
	if err := store.Del(ctx, key); err != nil {
		logFailure(ctx, logg, "idempotency.release_failed", err)
		return
	}
	status := rec.statusCode()
	if status >= http.StatusInternalServerError {
		return
	}

	payload, err := json.Marshal(storedResponse{
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
		Fingerprint: fingerprint,
	})
	if err != nil {
		logFailure(ctx, logg, "idempotency.encode_failed", err)
		return
	}
	if _, err := store.SetNX(ctx, key, string(payload), op.ttl); err != nil {
		logFailure(ctx, logg, "idempotency.store_failed", err)
	}
}

// fingerprintOf covers the path too, so one key cannot be reused for returns
// on two different orders.
func fingerprintOf(path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeFor(method, path string) (replayableWrite, bool) {
	if method != http.MethodPost || path == "" {
		return replayableWrite{}, false
	}
	for _, op := range replayableWrites {
		if op.match(path) {
			return op, true
		}
	}
	return replayableWrite{}, false
}

func pathIs(want string) func(string) bool {
	return func(path string) bool { return path == want }
}

func pathAround(prefix, suffix string) func(string) bool {
	return func(path string) bool {
		return len(path) > len(prefix)+len(suffix) && strings.HasPrefix(path, prefix) && strings.HasSuffix(path, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logFailure(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil {
		logg.Error(ctx, msg, err)
	}
}
