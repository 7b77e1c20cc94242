package identity

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/database"
	"biomagnet-assist/internal/platform/logger"
)

const adminEmail = "admin@clinic.com"

type fakeNotifier struct {
	mu     sync.Mutex
	resets map[string]string
	confs  map[string]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{resets: map[string]string{}, confs: map[string]string{}}
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[email] = token
	return nil
}

func (n *fakeNotifier) SendConfirmation(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confs[email] = token
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	notifier *fakeNotifier
	clock    *testClock
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := Config{
		JWTSecret:      "test-secret-0123456789",
		SessionTTL:     time.Hour,
		TokenTTL:       time.Hour,
		SignInInterval: time.Hour,
		SignInBurst:    3,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	db := database.OpenTest(t)
	n := newFakeNotifier()
	svc := NewService(NewRepository(db), NewGate([]string{adminEmail}), n, cfg, logger.NewNop())
	clock := &testClock{t: time.Now().UTC().Truncate(time.Second)}
	svc.now = clock.now
	return &fixture{svc: svc, notifier: n, clock: clock}
}

func (f *fixture) register(t *testing.T, email string) *SignInResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, email, "secret-pass")
	require.NoError(t, err)
	res, err := f.svc.SignIn(ctx, email, "secret-pass")
	require.NoError(t, err)
	return res
}

func TestSignInCreatesPendingProfile(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "Ana@Example.com ")

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "ana@example.com", res.Principal.User.Email)
	assert.Equal(t, Pending, res.Principal.State)
	assert.False(t, res.Principal.Profile.IsAuthorized)

	p, err := f.svc.CurrentSession(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Principal.User.ID, p.User.ID)
	assert.Equal(t, Pending, p.State)
}

func TestSignInAdminIsAuthorizedDirectly(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, adminEmail)

	assert.Equal(t, Admin, res.Principal.State)
	assert.True(t, res.Principal.Profile.IsAuthorized)
	assert.True(t, res.Principal.State.Permitted())
}

func TestSignUpDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, "ANA@example.com", "other-pass")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeDuplicateRegistration, apierr.CodeOf(err))
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "not-an-email", "secret-pass")
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))

	_, err = f.svc.SignUp(ctx, "ana@example.com", "123")
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))

	_, err = f.svc.SignUp(ctx, "ana@example.com", strings.Repeat("p", 80))
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
	assert.Equal(t, 400, apierr.StatusOf(err))

	_, err = f.svc.SignUp(ctx, "ana@example.com", strings.Repeat("p", 72))
	assert.NoError(t, err)
}

func TestSignInInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, "ana@example.com", "wrong-pass")
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))

	_, err = f.svc.SignIn(ctx, "ghost@example.com", "secret-pass")
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))
}

func TestSignInRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.SignIn(ctx, "ana@example.com", "wrong-pass")
		require.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))
	}
	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret-pass")
	assert.Equal(t, apierr.CodeRateLimited, apierr.CodeOf(err))
	assert.Equal(t, 429, apierr.StatusOf(err))
}

func TestSignInStoreUnreachable(t *testing.T) {
	db := database.OpenTest(t)
	svc := NewService(NewRepository(db), NewGate(nil), nil, Config{JWTSecret: "test-secret-0123456789", SessionTTL: time.Hour}, logger.NewNop())
	require.NoError(t, db.Close())

	_, err := svc.SignIn(context.Background(), "ana@example.com", "secret-pass")
	assert.Equal(t, apierr.CodeNetworkUnreachable, apierr.CodeOf(err))
}

func TestEmailConfirmationFlow(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RequireConfirmation = true })
	ctx := context.Background()

	u, err := f.svc.SignUp(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)
	assert.False(t, u.EmailConfirmed)

	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret-pass")
	assert.Equal(t, apierr.CodeUnconfirmedIdentity, apierr.CodeOf(err))

	token := f.notifier.confs["ana@example.com"]
	require.NotEmpty(t, token)
	require.NoError(t, f.svc.ConfirmEmail(ctx, token))

	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)

	err = f.svc.ConfirmEmail(ctx, token)
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err), "tokens are single use")
}

func TestExpiredConfirmationCanBeResent(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RequireConfirmation = true })
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)
	expired := f.notifier.confs["ana@example.com"]
	f.clock.advance(2 * time.Hour)

	err = f.svc.ConfirmEmail(ctx, expired)
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))

	require.NoError(t, f.svc.ResendConfirmation(ctx, "ANA@example.com"))
	fresh := f.notifier.confs["ana@example.com"]
	require.NotEqual(t, expired, fresh)
	require.NoError(t, f.svc.ConfirmEmail(ctx, fresh))

	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)

	// Nothing is sent for confirmed or unknown addresses.
	require.NoError(t, f.svc.ResendConfirmation(ctx, "ana@example.com"))
	require.NoError(t, f.svc.ResendConfirmation(ctx, "ghost@example.com"))
	assert.Equal(t, fresh, f.notifier.confs["ana@example.com"])
	assert.NotContains(t, f.notifier.confs, "ghost@example.com")
}

func TestPasswordResetConfirmsEmail(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RequireConfirmation = true })
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "ana@example.com", "secret-pass")
	require.NoError(t, err)
	f.clock.advance(2 * time.Hour)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@example.com"))
	require.NoError(t, f.svc.ResetPassword(ctx, f.notifier.resets["ana@example.com"], "brand-new-pass"))

	_, err = f.svc.SignIn(ctx, "ana@example.com", "brand-new-pass")
	require.NoError(t, err)
}

func TestPasswordResetRejectsLongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ana@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@example.com"))
	err := f.svc.ResetPassword(ctx, f.notifier.resets["ana@example.com"], strings.Repeat("p", 73))
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestUnknownEmailStillComparesHash(t *testing.T) {
	cost, err := bcrypt.Cost(dummyHash())
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "ana@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@example.com"))
	assert.Empty(t, f.notifier.resets)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@example.com"))
	token := f.notifier.resets["ana@example.com"]
	require.NotEmpty(t, token)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new-pass"))

	_, err := f.svc.CurrentSession(ctx, first.Token)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err), "reset revokes open sessions")

	_, err = f.svc.SignIn(ctx, "ana@example.com", "secret-pass")
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))
	_, err = f.svc.SignIn(ctx, "ana@example.com", "brand-new-pass")
	require.NoError(t, err)
}

func TestPasswordResetExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ana@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ana@example.com"))
	f.clock.advance(2 * time.Hour)

	err := f.svc.ResetPassword(ctx, f.notifier.resets["ana@example.com"], "brand-new-pass")
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))
}

func TestSignOutEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "ana@example.com")

	p, err := f.svc.CurrentSession(ctx, res.Token)
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx, p))

	_, err = f.svc.CurrentSession(ctx, res.Token)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestCurrentSessionExpires(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "ana@example.com")

	f.clock.advance(2 * time.Hour)
	_, err := f.svc.CurrentSession(context.Background(), res.Token)
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestCurrentSessionRejectsForeignToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CurrentSession(context.Background(), "not-a-jwt")
	assert.Equal(t, apierr.CodeUnauthorized, apierr.CodeOf(err))
}

func TestToggleAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, adminEmail)
	member := f.register(t, "ana@example.com")

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := f.svc.Subscribe(subCtx, member.Principal.User.ID)

	m, err := f.svc.ToggleAuthorization(ctx, &admin.Principal, member.Principal.User.ID)
	require.NoError(t, err)
	assert.Equal(t, Authorized, m.State)

	select {
	case e := <-events:
		assert.Equal(t, EventAuthorizationChanged, e.Type)
		assert.Equal(t, Authorized, e.State)
	case <-time.After(time.Second):
		t.Fatal("no authorization event delivered")
	}

	p, err := f.svc.CurrentSession(ctx, member.Token)
	require.NoError(t, err)
	assert.Equal(t, Authorized, p.State)

	m, err = f.svc.ToggleAuthorization(ctx, &admin.Principal, member.Principal.User.ID)
	require.NoError(t, err)
	assert.Equal(t, Pending, m.State)
}

func TestToggleAuthorizationRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, adminEmail)
	member := f.register(t, "ana@example.com")

	_, err := f.svc.ToggleAuthorization(ctx, &member.Principal, admin.Principal.User.ID)
	assert.Equal(t, apierr.CodeForbidden, apierr.CodeOf(err))

	_, err = f.svc.ToggleAuthorization(ctx, &admin.Principal, admin.Principal.User.ID)
	assert.Equal(t, "admin_immutable", apierr.CodeOf(err))

	_, err = f.svc.ToggleAuthorization(ctx, &admin.Principal, uuid.New())
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestListMembersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, adminEmail)
	f.clock.advance(time.Minute)
	f.register(t, "ana@example.com")
	f.clock.advance(time.Minute)
	f.register(t, "bia@example.com")

	members, err := f.svc.ListMembers(ctx, &admin.Principal)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "bia@example.com", members[0].Email)
	assert.Equal(t, "ana@example.com", members[1].Email)
	assert.Equal(t, adminEmail, members[2].Email)
	assert.True(t, members[2].Locked)
	assert.Equal(t, Admin, members[2].State)
	assert.Equal(t, Pending, members[0].State)

	_, err = f.svc.ListMembers(ctx, &Principal{State: Authorized})
	assert.Equal(t, apierr.CodeForbidden, apierr.CodeOf(err))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "ana@example.com")

	_, err := f.svc.UpdateProfile(ctx, &res.Principal, ProfileInput{DisplayName: "  "})
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))

	p, err := f.svc.UpdateProfile(ctx, &res.Principal, ProfileInput{
		DisplayName:     " Dra. Ana ",
		RegistrationID:  "CRT 1234",
		BusinessContact: "(11) 99999-0000",
		Signature:       "Ana Souza, terapeuta",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dra. Ana", p.DisplayName)

	stored, err := f.svc.Profile(ctx, res.Principal.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "CRT 1234", stored.RegistrationID)
	assert.Equal(t, "Ana Souza, terapeuta", stored.Signature)
	assert.False(t, stored.IsAuthorized, "profile edits never change authorization")
}
