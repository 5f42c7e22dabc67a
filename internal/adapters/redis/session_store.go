package redis

// Package redis provides Redis-based adapters for the portal gateway.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/hredge/portal/internal/domain/auth"
	"github.com/hredge/portal/internal/sessioncrypt"
)

// DefaultSessionPrefix namespaces session keys.
const DefaultSessionPrefix = "session:"

// SessionStore is a Redis-based session store for production use.
// It handles TTL semantics automatically based on session ExpiresAt and
// seals the IdP token at rest, bound to the session ID.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	sealer sessioncrypt.Sealer
}

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	Client    redis.UniversalClient
	Prefix string
	// Sealer defaults to sessioncrypt.Plain.
	Sealer sessioncrypt.Sealer
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(opts SessionStoreOptions) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	sealer := opts.Sealer
	if sealer == nil {
		sealer = sessioncrypt.Plain{}
	}
	return &SessionStore{
		client: opts.Client,
		prefix: prefix,
		sealer: sealer,
	}
}

// record is the persisted shape of a session.
type record struct {
	domainauth.Session
	SealedToken string `json:"sealed_token,omitempty"`
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		// Session is already expired, don't save it
		return errors.New("session is expired")
	}

	rec := record{Session: sess}
	if sess.Token != (domainauth.Token{}) {
		raw, err := json.Marshal(sess.Token)
		if err != nil {
			return fmt.Errorf("marshal session token: %w", err)
		}
		sealed, err := s.sealer.Seal(raw, sess.ID)
		if err != nil {
			return fmt.Errorf("seal session token: %w", err)
		}
		rec.SealedToken = sealed
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.client.Set(ctx, s.prefix+sess.ID, data, ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var rec record
	if unmarshalErr := json.Unmarshal([]byte(data), &rec); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	sess := rec.Session

	// Redis TTL normally evicts first; a clock skew between hosts can leave a stale key.
	if time.Now().After(sess.ExpiresAt) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	if rec.SealedToken != "" {
		raw, decErr := s.sealer.Open(rec.SealedToken, id)
		if decErr != nil {
			return domainauth.Session{}, fmt.Errorf("open session token: %w", decErr)
		}
		if jsonErr := json.Unmarshal(raw, &sess.Token); jsonErr != nil {
			return domainauth.Session{}, fmt.Errorf("unmarshal session token: %w", jsonErr)
		}
	}

	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil // Nothing to delete
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}

// ErrNotFound is returned when a session is not found.
type notFoundError struct{}

func (notFoundError) Error() string { return "session not found" }

// Is lets callers match the store-agnostic sentinel.
func (notFoundError) Is(target error) bool { return target == domainauth.ErrSessionNotFound }

var ErrNotFound error = notFoundError{}
