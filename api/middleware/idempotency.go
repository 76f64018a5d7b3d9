package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/millflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/millflow-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyHeader     = "Idempotency-Key"
	replayHeader          = "Idempotent-Replay"
)

// Commands that need an Idempotency-Key. "*" matches one path segment.
// Matching is on the raw path because this middleware runs before the
// subrouter has resolved the final route pattern.
var idempotentCommands = []string{
	"/api/v1/orders",
	"/api/v1/materials",
	"/api/v1/order-lines/*/confirm",
	"/api/v1/order-lines/*/cancel",
	"/api/v1/order-lines/*/status",
	"/api/v1/production-tasks/*/start",
	"/api/v1/production-tasks/*/hold",
	"/api/v1/production-tasks/*/resume",
	"/api/v1/production-tasks/*/output",
	"/api/v1/production-tasks/*/complete",
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency stores the first settled response for each (operator, path,
// key) and replays it for retries carrying the same body. Outcomes a client is
// expected to retry (5xx, 409, 429) are not stored, so the retry runs the
// command again. A ttl of zero uses 24h.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !requiresIdempotency(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := digest(body)
			key := store.IdempotencyKey(SubjectFromContext(ctx)+"|"+r.URL.Path, clientKey)

			raw, err := store.Get(ctx, key)
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key"))
				return
			default:
				var prior storedResponse
				if err := json.Unmarshal([]byte(raw), &prior); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response"))
					return
				}
				if prior.RequestHash != requestHash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request body"))
					return
				}
				replay(w, prior)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if !settled(status) {
				return
			}
			payload, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
				RequestHash: requestHash,
			})
			if err == nil {
				_, err = store.SetNX(ctx, key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "failed to store idempotent response", err)
			}
		})
	}
}

func settled(status int) bool {
	return status < http.StatusInternalServerError &&
		status != http.StatusConflict &&
		status != http.StatusTooManyRequests
}

func replay(w http.ResponseWriter, prior storedResponse) {
	if prior.ContentType != "" {
		w.Header().Set("Content-Type", prior.ContentType)
	}
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(prior.Status)
	if body, err := base64.StdEncoding.DecodeString(prior.Body); err == nil {
		_, _ = w.Write(body)
	}
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func requiresIdempotency(method, path string) bool {
	if method != http.MethodPost {
		return false
	}
	path = strings.TrimSuffix(path, "/")
	for _, pattern := range idempotentCommands {
		if matchSegments(pattern, path) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, path string) bool {
	want := strings.Split(pattern, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
		if want[i] == "*" && got[i] == "" {
			return false
		}
	}
	return true
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

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
