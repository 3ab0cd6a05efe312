package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/networth/tracker/internal/auth"
	"github.com/networth/tracker/internal/cache"
	"github.com/networth/tracker/internal/domain/user"
	"github.com/networth/tracker/internal/repo/postgres"
	"github.com/networth/tracker/internal/security"
)

// Keep these interfaces small so tests can fake them easily.

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, name, email, passwordHash string) (user.User, error)
}

type SessionCache interface {
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	SaveUser(ctx context.Context, u user.User) error
	PutSession(ctx context.Context, token string, ttl time.Duration) error
	SessionExists(ctx context.Context, token string) (bool, error)
}

type TokenManager interface {
	IssueToken(userID, email string) (string, error)
	VerifyToken(token string) (*auth.Claims, error)
	TTL() time.Duration
}

// Service composes the store, cache, hasher and token manager into the
// register / login / validate flows. Each call is a fresh, stateless
// transaction; there is no compensation between the store write and the
// cache write.
type Service struct {
	store  UserStore
	cache  SessionCache
	tokens TokenManager
	log    *slog.Logger
}

func NewService(store UserStore, sessions SessionCache, tokens TokenManager, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		cache:  sessions,
		tokens: tokens,
		log:    log,
	}
}

// Register creates the account, warms the cache and issues a token.
func (s *Service) Register(ctx context.Context, name, email, password string) (user.User, string, error) {
	_, err := s.store.GetByEmail(ctx, email)

	if err == nil {
		return user.User{}, "", ErrDuplicateAccount
	}

	if !errors.Is(err, postgres.ErrUserNotFound) {
		return user.User{}, "", fmt.Errorf("lookup account: %w", err)
	}

	hash, err := security.HashPassword(password)

	if err != nil {
		return user.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.Create(ctx, name, email, hash)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			// lost the race against a concurrent registration
			return user.User{}, "", ErrDuplicateAccount
		}

		return user.User{}, "", fmt.Errorf("create account: %w", err)
	}

	if err := s.cache.SaveUser(ctx, u); err != nil {
		return user.User{}, "", fmt.Errorf("cache account: %w", err)
	}

	token, err := s.issueSession(ctx, u)

	if err != nil {
		return user.User{}, "", err
	}

	s.log.InfoContext(ctx, "account registered", "user_id", u.ID)

	return u, token, nil
}

// Login resolves the account cache-first, verifies the password and
// issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.cache.GetUserByEmail(ctx, email)

	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			return "", fmt.Errorf("cache lookup: %w", err)
		}

		u, err = s.store.GetByEmail(ctx, email)

		if err != nil {
			if errors.Is(err, postgres.ErrUserNotFound) {
				return "", ErrInvalidCredentials
			}

			return "", fmt.Errorf("lookup account: %w", err)
		}

		// write-through so the next login hits the cache
		if err := s.cache.SaveUser(ctx, u); err != nil {
			return "", fmt.Errorf("cache account: %w", err)
		}
	}

	ok, err := security.VerifyPassword(u.PasswordHash, password)

	if err != nil {
		return "", fmt.Errorf("verify password: %w", err)
	}

	if !ok {
		return "", ErrInvalidCredentials
	}

	return s.issueSession(ctx, u)
}

// ValidateToken checks the signature and expiry, then requires a live
// session entry for the token. Either failure yields the same result.
func (s *Service) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.VerifyToken(token)

	if err != nil {
		return nil, ErrInvalidSession
	}

	ok, err := s.cache.SessionExists(ctx, token)

	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	if !ok {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

// Profile resolves the account for an authenticated caller, cache-first.
func (s *Service) Profile(ctx context.Context, email string) (user.User, error) {
	u, err := s.cache.GetUserByEmail(ctx, email)

	if err == nil {
		return u, nil
	}

	if !errors.Is(err, cache.ErrMiss) {
		return user.User{}, fmt.Errorf("cache lookup: %w", err)
	}

	u, err = s.store.GetByEmail(ctx, email)

	if err != nil {
		return user.User{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := s.cache.SaveUser(ctx, u); err != nil {
		return user.User{}, fmt.Errorf("cache account: %w", err)
	}

	return u, nil
}

func (s *Service) issueSession(ctx context.Context, u user.User) (string, error) {
	token, err := s.tokens.IssueToken(u.ID, u.Email)

	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	// session entry and token expire together
	if err := s.cache.PutSession(ctx, token, s.tokens.TTL()); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return token, nil
}
