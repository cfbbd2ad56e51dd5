package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/auth"
	"github.com/warp/clubportal/generic"
	"github.com/warp/clubportal/generic/store"
)

type captureMailer struct{ tokens map[string]string }

func (m *captureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.tokens[email] = token
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setup(t *testing.T) (*auth.Service, *captureMailer, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	jwtm := auth.NewJWTManager("test-secret", "clubportal", 24)
	jwtm.Clock = clk
	mailer := &captureMailer{tokens: map[string]string{}}
	return auth.NewService(store.NewMemory(), jwtm, mailer), mailer, clk
}

func TestSignUpSignInVerify(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, " Ann@X.org ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "ann@x.org", sess.Email)
	assert.NotEmpty(t, sess.UID)

	_, err = svc.SignUp(ctx, "ann@x.org", "another1")
	assert.ErrorIs(t, err, generic.ErrAlreadyExists)

	again, err := svc.SignIn(ctx, "ANN@x.org", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, sess.UID, again.UID)

	_, err = svc.SignIn(ctx, "ann@x.org", "wrong")
	assert.ErrorIs(t, err, generic.ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "nobody@x.org", "hunter22")
	assert.ErrorIs(t, err, generic.ErrInvalidCredentials)

	id, err := svc.Verify(ctx, again.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.UID, id.UID)
}

func TestSignUp_Validation(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.SignUp(context.Background(), "not-an-email", "hunter22")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = svc.SignUp(context.Background(), "a@x.org", "123")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSignOut_RevokesToken(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, "ann@x.org", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, sess.Token))
	_, err = svc.Verify(ctx, sess.Token)
	assert.ErrorIs(t, err, generic.ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	svc, _, clk := setup(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, "ann@x.org", "hunter22")
	require.NoError(t, err)

	clk.now = clk.now.Add(25 * time.Hour)
	_, err = svc.Verify(ctx, sess.Token)
	assert.ErrorIs(t, err, generic.ErrInvalidToken)
}

func TestPasswordReset(t *testing.T) {
	// GIVEN: An account and a reset request
	// WHEN: The mailed token is used to set a new password
	// THEN: Only the new password works and the token cannot be reused

	svc, mailer, _ := setup(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, "ann@x.org", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.SendPasswordReset(ctx, "nobody@x.org"))
	assert.Empty(t, mailer.tokens)

	require.NoError(t, svc.SendPasswordReset(ctx, "ann@x.org"))
	token := mailer.tokens["ann@x.org"]
	require.NotEmpty(t, token)

	_, err = svc.Verify(ctx, token)
	assert.Error(t, err, "reset tokens are not sessions")
	assert.ErrorIs(t, svc.ResetPassword(ctx, sess.Token, "newpass1"), generic.ErrInvalidToken)

	require.NoError(t, svc.ResetPassword(ctx, token, "newpass1"))
	assert.ErrorIs(t, svc.ResetPassword(ctx, token, "newpass2"), generic.ErrInvalidToken)

	_, err = svc.SignIn(ctx, "ann@x.org", "hunter22")
	assert.ErrorIs(t, err, generic.ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "ann@x.org", "newpass1")
	assert.NoError(t, err)
}

func TestSessionListeners(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	var events []auth.EventKind
	svc.OnSessionChange(func(_ context.Context, e auth.Event) error {
		events = append(events, e.Kind)
		return errors.New("listener failure is only logged")
	})

	sess, err := svc.SignUp(ctx, "ann@x.org", "hunter22")
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(ctx, sess.Token))

	assert.Equal(t, []auth.EventKind{auth.SignedIn, auth.SignedOut}, events)
}
