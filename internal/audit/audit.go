// Package audit provides a minimal request audit trail: a structured log
// line per proxied request that got an upstream response, plus a stub query
// endpoint. It is not a sink —
// entries are not retained beyond the log stream.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Entry describes one proxied request for audit purposes.
type Entry struct {
	AgentID      uuid.UUID
	SessionID    string
	ServiceID    string
	Endpoint     string
	Method       string
	StatusCode   int
	RequestID    string
	Timestamp    time.Time
	ResponseTime time.Duration
}

// Log writes e to logger as a structured "request audit" line. The session
// id is logged as a hash, never in the clear — it is a live bearer
// credential, and the log stream is a wider trust boundary than the
// request path itself.
func Log(logger *slog.Logger, e Entry) {
	logger.Info("request audit",
		"agent_id", e.AgentID,
		"session_ref", hashSessionID(e.SessionID),
		"service", e.ServiceID,
		"endpoint", e.Endpoint,
		"method", e.Method,
		"status", e.StatusCode,
		"duration_ms", e.ResponseTime.Milliseconds(),
		"request_id", e.RequestID,
	)
}

// hashSessionID returns a short, irreversible reference to a session id
// suitable for correlating log lines without exposing the bearer value.
func hashSessionID(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:8])
}

// Handler exposes the read side of the audit trail. Entries are not
// persisted anywhere queryable yet, so Query always returns an empty list —
// a real audit store (and its query predicates) is future work.
type Handler struct {
	logger *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Query handles GET /audit. Always returns an empty result set.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"entries":[]}`))
}
