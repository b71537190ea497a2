package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
)

const testPhone = "+14155550100"

type otpFixture struct {
	clk   *clock
	repo  *mockOTPRepository
	sms   *fakeSMS
	otp   *OTPService
	users *mockAuthRepository
	auth  *AuthService
}

func newOTPFixture(exposeCode bool) *otpFixture {
	clk := newClock()
	repo := newMockOTPRepository(clk.Now)
	sms := &fakeSMS{}

	otp := NewOTPService(repo, sms, 10*time.Minute, 5, exposeCode)
	otp.now = clk.Now
	otp.generate = func() (string, error) { return "123456", nil }

	users := newMockAuthRepository()
	auth := NewAuthService(users, NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour), otp, nil)

	return &otpFixture{clk: clk, repo: repo, sms: sms, otp: otp, users: users, auth: auth}
}

func TestOTPService_Send(t *testing.T) {
	f := newOTPFixture(true)

	issue, err := f.otp.Send(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Equal(t, int64(600), issue.ExpiresIn)
	assert.Equal(t, "123456", issue.Code)
	require.Len(t, f.sms.sent, 1)
	assert.Contains(t, f.sms.sent[0], "123456")
	assert.Equal(t, 1, f.repo.count())
}

func TestOTPService_SendHidesCodeOutsideDevelopment(t *testing.T) {
	f := newOTPFixture(false)

	issue, err := f.otp.Send(context.Background(), testPhone)
	require.NoError(t, err)
	assert.Empty(t, issue.Code)
}

func TestOTPService_SendReplacesPreviousCode(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.otp.Send(ctx, testPhone)
	require.NoError(t, err)

	f.otp.generate = func() (string, error) { return "654321", nil }
	_, err = f.otp.Send(ctx, testPhone)
	require.NoError(t, err)

	assert.Equal(t, 1, f.repo.count())

	_, err = f.otp.Check(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, apperror.ErrInvalidOTP)

	_, err = f.otp.Check(ctx, testPhone, "654321")
	assert.NoError(t, err)
}

func TestOTPService_SendFailure(t *testing.T) {
	f := newOTPFixture(true)
	f.sms.err = errors.New("twilio down")

	_, err := f.otp.Send(context.Background(), testPhone)
	assert.Equal(t, apperror.ErrCodeOTPSendFailed, apperror.CodeOf(err))
}

func TestOTPService_RejectsCorrectCodeAfterMaxAttempts(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.otp.Send(ctx, testPhone)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.otp.Check(ctx, testPhone, "000000")
		assert.ErrorIs(t, err, apperror.ErrInvalidOTP)
	}

	_, err = f.otp.Check(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, apperror.ErrTooManyAttempts)

	// Новый код сбрасывает счётчик.
	_, err = f.otp.Send(ctx, testPhone)
	require.NoError(t, err)
	_, err = f.otp.Check(ctx, testPhone, "123456")
	assert.NoError(t, err)
}

func TestOTPService_RejectsExpiredCode(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.otp.Send(ctx, testPhone)
	require.NoError(t, err)

	f.clk.Advance(10 * time.Minute)

	_, err = f.otp.Check(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, apperror.ErrInvalidOTP)
}

func TestOTPService_RejectsUnknownPhone(t *testing.T) {
	f := newOTPFixture(true)

	_, err := f.otp.Check(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, apperror.ErrInvalidOTP)
}

func TestOTPService_ConsumedCodeCannotBeReused(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.otp.Send(ctx, testPhone)
	require.NoError(t, err)

	otp, err := f.otp.Check(ctx, testPhone, "123456")
	require.NoError(t, err)
	require.NoError(t, f.otp.Consume(ctx, otp))

	assert.ErrorIs(t, f.otp.Consume(ctx, otp), apperror.ErrInvalidOTP)
	_, err = f.otp.Check(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, apperror.ErrInvalidOTP)
}

func TestOTPService_ConsumeAfterExpiry(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.otp.Send(ctx, testPhone)
	require.NoError(t, err)
	otp, err := f.otp.Check(ctx, testPhone, "123456")
	require.NoError(t, err)

	f.clk.Advance(11 * time.Minute)
	assert.ErrorIs(t, f.otp.Consume(ctx, otp), apperror.ErrInvalidOTP)
}

func TestOTPService_RunCleanup(t *testing.T) {
	f := newOTPFixture(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.otp.Send(ctx, testPhone)
	require.NoError(t, err)
	f.clk.Advance(time.Hour)

	go f.otp.RunCleanup(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return f.repo.count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestAuthService_VerifyPhoneOTP_RegistersNewUser(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.auth.SendPhoneOTP(ctx, testPhone)
	require.NoError(t, err)

	res, err := f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{
		Phone: testPhone, Code: "123456", FirstName: "Ivan", LastName: "Petrov", Role: models.RoleDriver,
	})
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.True(t, res.User.PhoneVerified)
	assert.Equal(t, models.RoleDriver, res.User.Role)
	assert.Equal(t, []string{res.TokenPair.RefreshToken}, f.users.tokens(res.User.ID))
}

func TestAuthService_VerifyPhoneOTP_MissingFieldsKeepsCode(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.auth.SendPhoneOTP(ctx, testPhone)
	require.NoError(t, err)

	_, err = f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{Phone: testPhone, Code: "123456"})
	assert.ErrorIs(t, err, apperror.ErrMissingFields)

	// Код не погашен, повторная попытка с именами проходит.
	res, err := f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{
		Phone: testPhone, Code: "123456", FirstName: "Ivan", LastName: "Petrov",
	})
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
}

func TestAuthService_VerifyPhoneOTP_ExistingUser(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()
	phone := testPhone
	existing := f.users.add(&models.User{Phone: &phone, FirstName: "Old", LastName: "User", Role: models.RolePassenger, IsActive: true})

	_, err := f.auth.SendPhoneOTP(ctx, testPhone)
	require.NoError(t, err)

	res, err := f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{Phone: testPhone, Code: "123456"})
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, existing.ID, res.User.ID)
	assert.True(t, f.users.get(existing.ID).PhoneVerified)

	// Тот же код второй раз не принимается.
	_, err = f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{Phone: testPhone, Code: "123456"})
	assert.ErrorIs(t, err, apperror.ErrInvalidOTP)
}

func TestAuthService_SendPhoneOTP_InvalidPhone(t *testing.T) {
	f := newOTPFixture(true)

	_, err := f.auth.SendPhoneOTP(context.Background(), "12ab")
	assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err))
	assert.Empty(t, f.sms.sent)
}

func TestAuthService_VerifyPhoneOTP_RequiresE164(t *testing.T) {
	f := newOTPFixture(true)
	ctx := context.Background()

	_, err := f.auth.SendPhoneOTP(ctx, testPhone)
	require.NoError(t, err)
	_, err = f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{
		Phone: testPhone, Code: "123456", FirstName: "Ivan", LastName: "Petrov",
	})
	require.NoError(t, err)

	// Тот же номер без "+" не создаёт второй аккаунт.
	for _, phone := range []string{"14155550100", "+12"} {
		_, err = f.auth.SendPhoneOTP(ctx, phone)
		assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err), phone)

		_, err = f.auth.VerifyPhoneOTP(ctx, VerifyPhoneInput{
			Phone: phone, Code: "123456", FirstName: "Ivan", LastName: "Petrov",
		})
		assert.Equal(t, apperror.ErrCodeValidation, apperror.CodeOf(err), phone)
	}
	assert.Len(t, f.users.users, 1)
	assert.Len(t, f.sms.sent, 1)
}
