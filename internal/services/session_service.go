package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/repository"
)

const sessionTTL = 30 * 24 * time.Hour

// GuestSession is an issued anonymous session.
type GuestSession struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionService issues guest sessions and verifies their signed tokens.
type SessionService struct {
	identity repository.IdentityStore
	secret   []byte
}

func NewSessionService(identity repository.IdentityStore, secret string) *SessionService {
	return &SessionService{identity: identity, secret: []byte(secret)}
}

// Issue creates a new guest. A token is only signed when a secret is configured.
func (s *SessionService) Issue(ctx context.Context) (*GuestSession, error) {
	guest, err := s.identity.GetOrCreateGuest(ctx, uuid.NewString())
	if err != nil {
		return nil, storeError("IssueSession", err)
	}

	out := &GuestSession{SessionID: guest.ID, ExpiresAt: time.Now().Add(sessionTTL)}
	if len(s.secret) > 0 {
		claims := jwt.MapClaims{
			"sid": guest.ID,
			"exp": out.ExpiresAt.Unix(),
			"iat": time.Now().Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
		if err != nil {
			return nil, fmt.Errorf("sign session token: %w", err)
		}
		out.Token = token
	}

	logger.WithSession(guest.ID).Info("Guest session issued")
	return out, nil
}

// ParseToken validates a signed session token and returns its session id.
func (s *SessionService) ParseToken(tokenString string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("session tokens are not enabled")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid session token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid session token claims")
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", errors.New("session token has no session id")
	}
	return sid, nil
}
