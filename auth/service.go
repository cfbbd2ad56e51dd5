/*
Package auth is the portal's identity provider.

PURPOSE:
  Email/password accounts with JWT session tokens. Every other package
  only sees an Identity (stable UID plus email). Session changes are
  broadcast to listeners, which is how the legacy merge runs once per
  sign-in.

COLLECTIONS:
  accounts/{uid}          - email, bcrypt hash
  revoked_sessions/{jti}  - signed-out sessions and used reset tokens

SEE ALSO:
  - jwt.go:            Token signing and validation
  - members/merge.go:  Runs on sign-in
*/
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/clubportal/generic"
)

const (
	AccountsCollection = "accounts"
	RevokedCollection  = "revoked_sessions"
)

// Identity is the authenticated principal.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Session is a signed-in identity and its bearer token.
type Session struct {
	Identity
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type account struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

type EventKind string

const (
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
)

type Event struct {
	Kind     EventKind
	Identity Identity
}

// Listener reacts to a session change. Its error is logged, never returned
// to the signing-in user.
type Listener func(ctx context.Context, e Event) error

// =============================================================================
// MAILER
// =============================================================================

// Mailer delivers password-reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct {
	// ResetURL is prefixed to the token, e.g. "https://club.example.org/reset?token=".
	ResetURL string
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	slog.Info("password reset requested", "email", email, "link", m.ResetURL+token)
	return nil
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store  generic.DocStore
	JWT    *JWTManager
	Mailer Mailer

	mu        sync.RWMutex
	listeners []Listener
}

func NewService(store generic.DocStore, jwtm *JWTManager, mailer Mailer) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{Store: store, JWT: jwtm, Mailer: mailer}
}

// OnSessionChange registers l for every sign-in and sign-out.
func (s *Service) OnSessionChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) notify(ctx context.Context, e Event) {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		if err := l(ctx, e); err != nil {
			slog.Error("session listener failed", "event", e.Kind, "uid", e.Identity.UID, "error", err)
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") {
		return &generic.ValidationError{Field: "email", Reason: "not an email address"}
	}
	if len(password) < MinPasswordLength {
		return &generic.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

func (s *Service) findAccount(ctx context.Context, email string) (*account, error) {
	docs, err := s.Store.Query(ctx, generic.Collection(AccountsCollection), generic.Where("email", normalizeEmail(email)))
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	var a account
	if err := docs[0].Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	existing, err := s.findAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("account %s: %w", email, generic.ErrAlreadyExists)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.JWT.Clock.Now()
	a := account{UID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if err := s.Store.Commit(ctx, generic.NewBatch().Create(generic.Collection(AccountsCollection).Doc(a.UID), a)); err != nil {
		return nil, err
	}
	return s.startSession(ctx, a)
}

// SignIn checks credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.findAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil || !VerifyPassword(a.PasswordHash, password) {
		return nil, generic.ErrInvalidCredentials
	}
	return s.startSession(ctx, *a)
}

func (s *Service) startSession(ctx context.Context, a account) (*Session, error) {
	token, claims, err := s.JWT.GenerateToken(a.UID, a.Email)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		Identity:  Identity{UID: a.UID, Email: a.Email},
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	s.notify(ctx, Event{Kind: SignedIn, Identity: sess.Identity})
	return sess, nil
}

// Verify resolves a bearer token to its identity.
func (s *Service) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := s.JWT.ValidateToken(token)
	if err != nil {
		return Identity{}, err
	}
	if err := s.checkNotRevoked(ctx, claims.ID); err != nil {
		return Identity{}, err
	}
	return Identity{UID: claims.UID, Email: claims.Email}, nil
}

func (s *Service) checkNotRevoked(ctx context.Context, jti string) error {
	doc, err := s.Store.Get(ctx, generic.Collection(RevokedCollection).Doc(jti))
	if err != nil {
		return err
	}
	if doc != nil {
		return fmt.Errorf("session revoked: %w", generic.ErrInvalidToken)
	}
	return nil
}

func (s *Service) revoke(b *generic.Batch, jti string, expires *time.Time) *generic.Batch {
	data := generic.Fields{"revokedAt": s.JWT.Clock.Now()}
	if expires != nil {
		data["expiresAt"] = *expires
	}
	return b.Set(generic.Collection(RevokedCollection).Doc(jti), data)
}

// SignOut revokes the session token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.JWT.ValidateToken(token)
	if err != nil {
		return err
	}
	var exp *time.Time
	if claims.ExpiresAt != nil {
		exp = &claims.ExpiresAt.Time
	}
	if err := s.Store.Commit(ctx, s.revoke(generic.NewBatch(), claims.ID, exp)); err != nil {
		return err
	}
	s.notify(ctx, Event{Kind: SignedOut, Identity: Identity{UID: claims.UID, Email: claims.Email}})
	return nil
}

// SendPasswordReset mails a reset token if the account exists. Unknown
// emails succeed silently so the endpoint cannot probe for accounts.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	a, err := s.findAccount(ctx, email)
	if err != nil || a == nil {
		return err
	}
	token, err := s.JWT.GenerateResetToken(a.UID, a.Email)
	if err != nil {
		return err
	}
	return s.Mailer.SendPasswordReset(ctx, a.Email, token)
}

// ResetPassword sets a new password using a reset token. Each token works once.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.JWT.ValidateResetToken(token)
	if err != nil {
		return err
	}
	if err := s.checkNotRevoked(ctx, claims.ID); err != nil {
		return err
	}
	if len(newPassword) < MinPasswordLength {
		return &generic.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}

	ref := generic.Collection(AccountsCollection).Doc(claims.UID)
	doc, err := s.Store.Get(ctx, ref)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("account %s: %w", claims.UID, generic.ErrNotFound)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	var exp *time.Time
	if claims.ExpiresAt != nil {
		exp = &claims.ExpiresAt.Time
	}
	b := generic.NewBatch().Merge(ref, generic.Fields{"passwordHash": hash, "updatedAt": s.JWT.Clock.Now()})
	return s.Store.Commit(ctx, s.revoke(b, claims.ID, exp))
}
