package core_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-rails/recoverykit/core"
	"github.com/open-rails/recoverykit/password"
	memorystore "github.com/open-rails/recoverykit/storage/memory"
)

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestRequestPasswordOTPUnknownAndInvalid(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()

	res, err := h.svc.RequestPasswordOTP(ctx, "nope")
	require.NoError(t, err)
	require.False(t, res.Exists)
	require.Nil(t, res.Sent)

	res, err = h.svc.RequestPasswordOTP(ctx, "ghost@x.com")
	require.NoError(t, err)
	require.False(t, res.Exists)
	require.Nil(t, res.Sent)
	require.Empty(t, h.store.OTPs())
	require.Empty(t, h.mail.sent)
}

func TestRequestPasswordOTPIssuesHashedCode(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")

	res, err := h.svc.RequestPasswordOTP(ctx, "A@x.com")
	require.NoError(t, err)
	require.True(t, res.Exists)
	require.NotNil(t, res.Sent)
	require.True(t, *res.Sent)

	code := h.otpCode(t)
	n := 0
	fmt.Sscanf(code, "%d", &n)
	require.GreaterOrEqual(t, n, 100000)
	require.LessOrEqual(t, n, 999999)

	otps := h.store.OTPs()
	require.Len(t, otps, 1)
	require.NotEqual(t, code, otps[0].OTPHash)
	require.True(t, password.IsBcryptHash(otps[0].OTPHash))
	require.Equal(t, 0, otps[0].Attempts)
	require.Equal(t, h.clock.Now().Add(10*time.Minute), otps[0].ExpiresAt)
	require.Contains(t, h.events.types(), core.EventOTPIssued)
}

func TestRequestPasswordOTPCollectsExpired(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")

	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	h.clock.Advance(11 * time.Minute)
	_, err = h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, h.store.OTPs(), 1)
}

func TestRequestPasswordOTPSendFailure(t *testing.T) {
	h := newHarness(t, core.Config{})
	h.registerUser(t, "a@x.com")
	h.mail.fail = true

	res, err := h.svc.RequestPasswordOTP(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.True(t, res.Exists)
	require.False(t, *res.Sent)
	require.Empty(t, h.store.OTPs())
}

func TestRequestPasswordOTPCooldown(t *testing.T) {
	h := newHarness(t, core.Config{ForgotCooldown: 30 * time.Second})
	h.svc.WithEphemeralStore(memorystore.NewKV().WithClock(h.clock.Now), core.EphemeralMemory)
	ctx := context.Background()
	h.registerUser(t, "a@x.com")

	res, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, *res.Sent)

	res, err = h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, res.Exists)
	require.False(t, *res.Sent)
	require.Len(t, h.store.OTPs(), 1)

	h.clock.Advance(31 * time.Second)
	res, err = h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, *res.Sent)
}

type brokenUsers struct{ core.Store }

func (brokenUsers) FindUserByEmail(context.Context, string) (*core.UserAccount, error) {
	return nil, errors.New("pq: relation users does not exist")
}

func TestRequestPasswordOTPStoreError(t *testing.T) {
	h := newHarness(t, core.Config{})
	h.svc.WithStore(brokenUsers{h.store})
	_, err := h.svc.RequestPasswordOTP(context.Background(), "a@x.com")
	require.ErrorIs(t, err, core.ErrStore)
	require.NotContains(t, core.ErrMessage(err), "relation")
}

func TestPasswordRecoveryEndToEnd(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")
	before := h.store.Users()[0].PasswordHash

	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	code := h.otpCode(t)

	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", wrongCode(code))
	require.ErrorIs(t, err, core.ErrOTPInvalid)
	require.Equal(t, 1, h.store.OTPs()[0].Attempts)

	res, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", code)
	require.NoError(t, err)
	require.Empty(t, h.store.OTPs())
	require.Regexp(t, regexp.MustCompile(`^/reset-password\?token=[0-9a-f]{64}$`), res.Redirect)
	require.Len(t, h.store.ResetTokens(), 1)

	// single use
	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", code)
	require.ErrorIs(t, err, core.ErrOTPInvalid)

	msg, err := h.svc.ResetPassword(ctx, res.Token, "newpass1")
	require.NoError(t, err)
	require.NotEmpty(t, msg)
	after := h.store.Users()[0].PasswordHash
	require.NotEqual(t, before, after)
	ok, err := password.VerifyArgon2id(after, "newpass1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, h.store.ResetTokens())

	_, err = h.svc.ResetPassword(ctx, res.Token, "another1")
	require.ErrorIs(t, err, core.ErrTokenInvalid)
	require.Contains(t, h.events.types(), core.EventPasswordReset)
}

func TestVerifyPasswordOTPAttemptCeiling(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")
	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	bad := wrongCode(h.otpCode(t))

	for i := 1; i <= 4; i++ {
		_, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", bad)
		require.ErrorIs(t, err, core.ErrOTPInvalid, "attempt %d", i)
		otps := h.store.OTPs()
		require.Len(t, otps, 1)
		require.Equal(t, i, otps[0].Attempts)
	}
	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", bad)
	require.ErrorIs(t, err, core.ErrOTPLocked)
	require.Equal(t, core.KindLocked, core.KindOf(err))
	require.Empty(t, h.store.OTPs())
	require.Contains(t, h.events.types(), core.EventOTPLocked)
}

func TestVerifyPasswordOTPLockedRow(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	require.NoError(t, h.store.InsertOTP(ctx, &core.OTPChallenge{
		Email: "a@x.com", OTPHash: "x", Attempts: 5,
		ExpiresAt: h.clock.Now().Add(time.Minute), CreatedAt: h.clock.Now(),
	}))
	_, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", "123456")
	require.ErrorIs(t, err, core.ErrOTPLocked)
	require.Empty(t, h.store.OTPs())
}

func TestVerifyPasswordOTPExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, core.Config{})
	h.registerUser(t, "a@x.com")
	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	h.clock.Advance(10*time.Minute - time.Millisecond)
	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", h.otpCode(t))
	require.NoError(t, err)

	h = newHarness(t, core.Config{})
	h.registerUser(t, "a@x.com")
	_, err = h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	h.clock.Advance(10*time.Minute + time.Millisecond)
	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", h.otpCode(t))
	require.ErrorIs(t, err, core.ErrOTPExpired)
	require.Empty(t, h.store.OTPs())
}

func TestVerifyPasswordOTPNoChallenge(t *testing.T) {
	h := newHarness(t, core.Config{})
	_, err := h.svc.VerifyPasswordOTP(context.Background(), "a@x.com", "123456")
	require.ErrorIs(t, err, core.ErrOTPInvalid)
	require.Equal(t, core.ErrMessage(core.ErrOTPInvalid), core.ErrMessage(err))

	_, err = h.svc.VerifyPasswordOTP(context.Background(), "", "")
	require.ErrorIs(t, err, core.ErrMissingFields)
}

func TestVerifyPasswordOTPUsesNewestChallenge(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")

	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	first := h.otpCode(t)
	h.clock.Advance(time.Second)
	_, err = h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	second := h.otpCode(t)
	if first == second {
		t.Skip("codes collided")
	}

	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", first)
	require.ErrorIs(t, err, core.ErrOTPInvalid)
	_, err = h.svc.VerifyPasswordOTP(ctx, "a@x.com", second)
	require.NoError(t, err)
}

func TestResetPasswordValidationAndExpiry(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")

	_, err := h.svc.ResetPassword(ctx, "", "newpass1")
	require.ErrorIs(t, err, core.ErrTokenInvalid)
	_, err = h.svc.ResetPassword(ctx, "unknown", "newpass1")
	require.ErrorIs(t, err, core.ErrTokenInvalid)

	_, err = h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	res, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", h.otpCode(t))
	require.NoError(t, err)

	_, err = h.svc.ResetPassword(ctx, res.Token, "short")
	require.ErrorIs(t, err, core.ErrPasswordTooShort)
	require.Len(t, h.store.ResetTokens(), 1)

	h.clock.Advance(10 * time.Minute)
	_, err = h.svc.ResetPassword(ctx, res.Token, "newpass1")
	require.ErrorIs(t, err, core.ErrTokenExpired)
	require.Equal(t, core.KindExpired, core.KindOf(err))
	require.Empty(t, h.store.ResetTokens())
}

type failingPasswordUpdate struct{ core.Store }

func (failingPasswordUpdate) UpdatePasswordHash(context.Context, string, string) error {
	return errors.New("deadlock detected")
}

func TestResetPasswordUpdateFailure(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")
	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	res, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", h.otpCode(t))
	require.NoError(t, err)

	h.svc.WithStore(failingPasswordUpdate{h.store})
	_, err = h.svc.ResetPassword(ctx, res.Token, "newpass1")
	require.ErrorIs(t, err, core.ErrStore)
	require.Equal(t, core.KindServer, core.KindOf(err))

	rt, err := h.store.FindResetToken(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", rt.Email)

	h.svc.WithStore(h.store)
	msg, err := h.svc.ResetPassword(ctx, res.Token, "newpass1")
	require.NoError(t, err)
	require.NotEmpty(t, msg)
	_, err = h.store.FindResetToken(ctx, res.Token)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestVerifyPasswordOTPConcurrentSingleUse(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")
	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	code := h.otpCode(t)

	const n = 8
	var wg sync.WaitGroup
	var wins atomic.Int32
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", code); err != nil {
				errs <- err
				return
			}
			wins.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	require.Equal(t, int32(1), wins.Load())
	for err := range errs {
		require.ErrorIs(t, err, core.ErrOTPInvalid)
	}
}

func TestResetPasswordConcurrentSingleUse(t *testing.T) {
	h := newHarness(t, core.Config{})
	ctx := context.Background()
	h.registerUser(t, "a@x.com")
	_, err := h.svc.RequestPasswordOTP(ctx, "a@x.com")
	require.NoError(t, err)
	res, err := h.svc.VerifyPasswordOTP(ctx, "a@x.com", h.otpCode(t))
	require.NoError(t, err)

	const n = 4
	var wg sync.WaitGroup
	var wins atomic.Int32
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.ResetPassword(ctx, res.Token, "newpass1"); err != nil {
				errs <- err
				return
			}
			wins.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	require.Equal(t, int32(1), wins.Load())
	for err := range errs {
		require.ErrorIs(t, err, core.ErrTokenInvalid)
	}
}
