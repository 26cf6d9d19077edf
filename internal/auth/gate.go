// Package auth implements the single-admin password gate in front of the UI
// and crawl endpoints.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/metrics"
)

var (
	// ErrNotConfigured is returned for every attempt when no admin password is set.
	ErrNotConfigured = errors.New("admin password not configured")
	// ErrInvalidCredentials is returned for a wrong password or an empty username.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DefaultRealm is announced in the WWW-Authenticate challenge.
const DefaultRealm = "crawl-archiver"

// Gate compares submitted credentials against one shared secret.
type Gate struct {
	secret []byte
	realm  string
	logger *zap.Logger
}

// NewGate creates a Gate. An empty secret yields a gate that rejects everything.
func NewGate(secret string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		secret: []byte(secret),
		realm:  DefaultRealm,
		logger: logger,
	}
}

// Verify accepts any non-empty username paired with the configured password.
func (g *Gate) Verify(username, password string) error {
	if len(g.secret) == 0 {
		return ErrNotConfigured
	}
	match := subtle.ConstantTimeCompare([]byte(password), g.secret) == 1
	if !match || username == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// Middleware enforces HTTP Basic authentication on the wrapped handler.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			// First visit from a browser; not counted as a failure.
			g.challenge(w, "authentication required")
			return
		}
		switch err := g.Verify(username, password); {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, ErrNotConfigured):
			g.logger.Error("rejecting request: admin password not configured",
				zap.String("path", r.URL.Path))
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			metrics.ObserveAuthFailure()
			g.logger.Info("authentication failed",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			g.challenge(w, err.Error())
		}
	})
}

func (g *Gate) challenge(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q, charset="UTF-8"`, g.realm))
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
