package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	CookieName = "sessionId"
	MaxAge     = 30 * 24 * time.Hour
)

// Manager issues and reads the signed session cookie that identifies a voter.
type Manager struct {
	codec  *securecookie.SecureCookie
	secure bool
	logger *slog.Logger
}

// NewManager signs cookies with hashKey and, when blockKey is set, encrypts
// them as well. blockKey must be 16, 24 or 32 bytes long.
func NewManager(hashKey []byte, blockKey []byte, secure bool, logger *slog.Logger) (*Manager, error) {
	if len(hashKey) == 0 {
		return nil, errors.New("session hash key is required")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(MaxAge / time.Second))
	return &Manager{
		codec:  codec,
		secure: secure,
		logger: logger,
	}, nil
}

// Resolve returns the caller's session id, minting and setting a new cookie
// when the request carries none or carries one that fails verification.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (string, bool, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		var sessionID string
		if decodeErr := m.codec.Decode(CookieName, cookie.Value, &sessionID); decodeErr == nil && sessionID != "" {
			return sessionID, false, nil
		} else if decodeErr != nil {
			m.logger.Warn("session cookie rejected",
				"event", "session_cookie_rejected",
				"module", "internal/platform/session",
				"layer", "platform",
				"error", decodeErr.Error(),
			)
		}
	}

	sessionID := uuid.NewString()
	encoded, err := m.codec.Encode(CookieName, sessionID)
	if err != nil {
		return "", false, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(MaxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	m.logger.Debug("session minted",
		"event", "session_minted",
		"module", "internal/platform/session",
		"layer", "platform",
	)
	return sessionID, true, nil
}
