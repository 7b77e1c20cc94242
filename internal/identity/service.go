package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
)

const (
	minPasswordLength = 6
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordLength = 72
)

// dummyHash is compared against on unknown emails so sign-in takes the same
// time whether or not the address is registered.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("biomagnet-assist-placeholder"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
})

// Notifier delivers account emails.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendConfirmation(ctx context.Context, email, token string) error
}

type Config struct {
	JWTSecret           string
	SessionTTL          time.Duration
	TokenTTL            time.Duration
	RequireConfirmation bool
	SignInInterval      time.Duration
	SignInBurst         int
}

type Service struct {
	repo     Repository
	gate     *Gate
	notifier Notifier
	events   *Broadcaster
	limiter  *signInLimiter
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, gate *Gate, notifier Notifier, cfg Config, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		gate:     gate,
		notifier: notifier,
		events:   NewBroadcaster(),
		limiter:  newSignInLimiter(cfg.SignInInterval, cfg.SignInBurst),
		cfg:      cfg,
		log:      log.With("service", "identity"),
		now:      time.Now,
	}
}

func (s *Service) Gate() *Gate { return s.gate }

// SignUp registers a new identity. The profile is created on first sign-in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, apierr.Auth(apierr.CodeDuplicateRegistration, errors.New("this email is already registered"))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, s.unreachable("sign up lookup", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Auth(apierr.CodeAuthUnknown, fmt.Errorf("hash password: %w", err))
	}
	u := &User{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   string(hash),
		EmailConfirmed: !s.cfg.RequireConfirmation,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apierr.Auth(apierr.CodeDuplicateRegistration, errors.New("this email is already registered"))
		}
		return nil, s.unreachable("create user", err)
	}

	if s.cfg.RequireConfirmation {
		if err := s.issueToken(ctx, u, PurposeConfirmEmail); err != nil {
			s.log.Error("confirmation token not delivered", "user_id", u.ID, "error", err)
		}
	}
	s.log.Info("user registered", "user_id", u.ID, "requires_confirmation", s.cfg.RequireConfirmation)
	return u, nil
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apierr.Validation("email and password are required")
	}
	if !s.limiter.allow(email, s.now()) {
		return nil, apierr.Auth(apierr.CodeRateLimited, errors.New("too many sign-in attempts, try again later"))
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, s.unreachable("sign in lookup", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, invalidCredentials()
	}
	if !u.EmailConfirmed {
		return nil, apierr.Auth(apierr.CodeUnconfirmedIdentity, errors.New("email address has not been confirmed"))
	}
	s.limiter.forget(email)

	profile, err := s.ensureProfile(ctx, u)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &Session{ID: uuid.New(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(s.cfg.SessionTTL)}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, s.unreachable("create session", err)
	}
	token, err := s.signToken(sess)
	if err != nil {
		return nil, apierr.Auth(apierr.CodeAuthUnknown, fmt.Errorf("sign token: %w", err))
	}

	p := Principal{User: *u, Profile: *profile, SessionID: sess.ID, State: s.gate.State(u, profile)}
	s.publish(EventSignedIn, u.ID, p.State)
	s.log.Info("user signed in", "user_id", u.ID, "state", p.State.String())
	return &SignInResult{Token: token, ExpiresAt: sess.ExpiresAt, Principal: p}, nil
}

// ensureProfile creates the profile on the first successful authentication:
// pending, or authorized directly for an admin identity.
func (s *Service) ensureProfile(ctx context.Context, u *User) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, u.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, s.unreachable("load profile", err)
	}
	now := s.now().UTC()
	p = &Profile{
		UserID:       u.ID,
		IsAuthorized: s.gate.IsAdmin(u.Email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent first sign-in.
			return s.repo.GetProfile(ctx, u.ID)
		}
		return nil, s.unreachable("create profile", err)
	}
	return p, nil
}

func (s *Service) SignOut(ctx context.Context, p *Principal) error {
	if err := s.repo.DeleteSession(ctx, p.SessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return apierr.BackendUnavailable(err)
	}
	s.publish(EventSignedOut, p.User.ID, Unauthenticated)
	return nil
}

// CurrentSession resolves a bearer token into the calling principal.
func (s *Service) CurrentSession(ctx context.Context, token string) (*Principal, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, apierr.Unauthorized("invalid or expired session")
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, apierr.Unauthorized("invalid session id")
	}

	sess, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.Unauthorized("session has ended")
	}
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, apierr.Unauthorized("session has expired")
	}

	u, err := s.repo.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.Unauthorized("account no longer exists")
		}
		return nil, apierr.BackendUnavailable(err)
	}
	profile, err := s.ensureProfile(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Principal{User: *u, Profile: *profile, SessionID: sess.ID, State: s.gate.State(u, profile)}, nil
}

// RequestPasswordReset never reveals whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apierr.Validation("email is required")
	}
	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.unreachable("password reset lookup", err)
	}
	if err := s.issueToken(ctx, u, PurposePasswordReset); err != nil {
		return s.unreachable("password reset token", err)
	}
	return nil
}

// ResetPassword also confirms the email: the reset link was delivered to it.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	t, err := s.consume(ctx, token, PurposePasswordReset)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apierr.Auth(apierr.CodeAuthUnknown, fmt.Errorf("hash password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, t.UserID, string(hash)); err != nil {
		return s.unreachable("update password", err)
	}
	if err := s.repo.MarkEmailConfirmed(ctx, t.UserID); err != nil {
		return s.unreachable("confirm email", err)
	}
	if err := s.repo.DeleteUserSessions(ctx, t.UserID); err != nil {
		s.log.Warn("old sessions not revoked after reset", "user_id", t.UserID, "error", err)
	}
	s.publish(EventPasswordChanged, t.UserID, Unauthenticated)
	return nil
}

func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	t, err := s.consume(ctx, token, PurposeConfirmEmail)
	if err != nil {
		return err
	}
	if err := s.repo.MarkEmailConfirmed(ctx, t.UserID); err != nil {
		return s.unreachable("confirm email", err)
	}
	return nil
}

// ResendConfirmation issues a fresh confirmation link. Like password reset,
// it does not reveal whether the email is registered or already confirmed.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apierr.Validation("email is required")
	}
	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.unreachable("resend confirmation lookup", err)
	}
	if u.EmailConfirmed {
		return nil
	}
	if err := s.issueToken(ctx, u, PurposeConfirmEmail); err != nil {
		return s.unreachable("confirmation token", err)
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, p *Principal, in ProfileInput) (*Profile, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		return nil, apierr.Validation("display name is required")
	}
	profile := p.Profile
	profile.DisplayName = in.DisplayName
	profile.RegistrationID = strings.TrimSpace(in.RegistrationID)
	profile.BusinessContact = strings.TrimSpace(in.BusinessContact)
	profile.Signature = strings.TrimSpace(in.Signature)
	profile.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProfileDetails(ctx, &profile); err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	s.publish(EventProfileUpdated, p.User.ID, p.State)
	return &profile, nil
}

// Profile returns a user's profile, e.g. for report signatures.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("profile")
	}
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	return p, nil
}

func (s *Service) ListMembers(ctx context.Context, actor *Principal) ([]Member, error) {
	if actor.State != Admin {
		return nil, apierr.Forbidden(apierr.CodeForbidden, "only administrators can list users")
	}
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	for i := range members {
		m := &members[i]
		u := User{ID: m.UserID, Email: m.Email}
		m.State = s.gate.State(&u, &m.Profile)
		m.Locked = m.State == Admin
	}
	return members, nil
}

// ToggleAuthorization flips a non-admin user between pending and authorized.
func (s *Service) ToggleAuthorization(ctx context.Context, actor *Principal, targetID uuid.UUID) (*Member, error) {
	target, err := s.repo.GetUserByID(ctx, targetID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.NotFound("user")
	}
	if err != nil {
		return nil, apierr.BackendUnavailable(err)
	}
	if err := s.gate.CheckToggle(actor.State, target); err != nil {
		return nil, err
	}
	profile, err := s.ensureProfile(ctx, target)
	if err != nil {
		return nil, err
	}

	profile.IsAuthorized = !profile.IsAuthorized
	profile.UpdatedAt = s.now().UTC()
	if err := s.repo.SetAuthorized(ctx, target.ID, profile.IsAuthorized, profile.UpdatedAt.UnixMilli()); err != nil {
		return nil, apierr.BackendUnavailable(err)
	}

	state := s.gate.State(target, profile)
	s.publish(EventAuthorizationChanged, target.ID, state)
	s.log.Info("authorization changed", "user_id", target.ID, "state", state.String(), "actor_user_id", actor.User.ID)
	return &Member{Profile: *profile, Email: target.Email, State: state}, nil
}

// Subscribe streams auth events for userID until ctx is done.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID) <-chan Event {
	return s.events.Subscribe(ctx, userID)
}

func (s *Service) publish(t EventType, userID uuid.UUID, state AccessState) {
	s.events.Publish(Event{Type: t, UserID: userID, State: state, At: s.now().UTC()})
}

func (s *Service) issueToken(ctx context.Context, u *User, purpose TokenPurpose) error {
	t := &Token{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		Purpose:   purpose,
		ExpiresAt: s.now().UTC().Add(s.cfg.TokenTTL),
	}
	if err := s.repo.CreateToken(ctx, t); err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}
	switch purpose {
	case PurposePasswordReset:
		return s.notifier.SendPasswordReset(ctx, u.Email, t.Token)
	default:
		return s.notifier.SendConfirmation(ctx, u.Email, t.Token)
	}
}

func (s *Service) consume(ctx context.Context, token string, purpose TokenPurpose) (*Token, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apierr.Validation("token is required")
	}
	t, err := s.repo.ConsumeToken(ctx, token, purpose)
	if errors.Is(err, ErrNotFound) {
		return nil, apierr.Auth(apierr.CodeInvalidCredentials, errors.New("link is invalid or was already used"))
	}
	if err != nil {
		return nil, s.unreachable("consume token", err)
	}
	if !s.now().Before(t.ExpiresAt) {
		return nil, apierr.Auth(apierr.CodeInvalidCredentials, errors.New("link has expired"))
	}
	return t, nil
}

func (s *Service) signToken(sess *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sess.UserID.String(),
		ID:        sess.ID.String(),
		IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Service) unreachable(op string, err error) error {
	s.log.Error("identity store failure", "op", op, "error", err)
	return apierr.Auth(apierr.CodeNetworkUnreachable, fmt.Errorf("identity service unreachable: %w", err))
}

func invalidCredentials() error {
	return apierr.Auth(apierr.CodeInvalidCredentials, errors.New("invalid email or password"))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return apierr.Validation("email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apierr.Validation("invalid email address")
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apierr.Validation("password must have at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return apierr.Validation("password must have at most %d bytes", maxPasswordLength)
	}
	return nil
}
