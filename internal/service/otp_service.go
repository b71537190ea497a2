package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository"
)

// OTPRepository описывает хранилище одноразовых кодов.
type OTPRepository interface {
	Replace(ctx context.Context, phone, codeHash string, expiresAt time.Time) (*models.OTP, error)
	GetActive(ctx context.Context, phone string) (*models.OTP, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	Consume(ctx context.Context, id uuid.UUID, maxAttempts int) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SMSSender отправляет SMS и возвращает идентификатор сообщения.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// OTPIssue результат выпуска кода. Code заполняется только в development.
type OTPIssue struct {
	ExpiresIn int64
	Code      string
}

// OTPService выпускает и проверяет коды подтверждения телефона.
//
// Жизненный цикл кода: выпущен -> (попытки)* -> подтверждён | истёк.
// После maxAttempts неудачных попыток код отклоняется даже при верном вводе.
type OTPService struct {
	repo        OTPRepository
	sms         SMSSender
	ttl         time.Duration
	maxAttempts int
	exposeCode  bool
	now         func() time.Time
	generate    func() (string, error)
}

// NewOTPService создаёт сервис. sms может быть nil, тогда код только логируется.
func NewOTPService(repo OTPRepository, sms SMSSender, ttl time.Duration, maxAttempts int, exposeCode bool) *OTPService {
	return &OTPService{
		repo:        repo,
		sms:         sms,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		exposeCode:  exposeCode,
		now:         time.Now,
		generate:    generateOTPCode,
	}
}

// Send выпускает новый код для телефона, удаляя прежние неподтверждённые, и отправляет SMS.
func (s *OTPService) Send(ctx context.Context, phone string) (*OTPIssue, error) {
	code, err := s.generate()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeOTPSendFailed, "не удалось сгенерировать код")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeOTPSendFailed, "не удалось сохранить код")
	}

	if _, err := s.repo.Replace(ctx, phone, string(hash), s.now().Add(s.ttl)); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeOTPSendFailed, "не удалось сохранить код")
	}

	body := fmt.Sprintf("Your Rideya verification code is: %s. Valid for %d minutes.", code, int(s.ttl/time.Minute))
	if s.sms != nil {
		if _, err := s.sms.Send(ctx, phone, body); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeOTPSendFailed, "не удалось отправить SMS с кодом")
		}
	} else {
		logger.Log.WithField("phone", phone).Info("otp service: SMS не настроены, код не отправлен")
	}

	issue := &OTPIssue{ExpiresIn: int64(s.ttl / time.Second)}
	if s.exposeCode {
		issue.Code = code
	}
	return issue, nil
}

// Check сверяет код с активным OTP телефона, не погашая его.
// Неверный код атомарно увеличивает счётчик попыток.
func (s *OTPService) Check(ctx context.Context, phone, code string) (*models.OTP, error) {
	otp, err := s.repo.GetActive(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, apperror.ErrInvalidOTP
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeVerificationFail, "не удалось проверить код")
	}

	if otp.Expired(s.now()) {
		return nil, apperror.ErrInvalidOTP
	}

	if otp.Attempts >= s.maxAttempts {
		return nil, apperror.ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		attempts, err := s.repo.IncrementAttempts(ctx, otp.ID)
		if err != nil && !errors.Is(err, repository.ErrOTPNotFound) {
			return nil, apperror.Wrap(err, apperror.ErrCodeVerificationFail, "не удалось проверить код")
		}
		logger.Log.WithFields(logrus.Fields{
			"phone":    phone,
			"attempts": attempts,
		}).Warn("otp service: неверный код")
		return nil, apperror.ErrInvalidOTP
	}

	return otp, nil
}

// Consume погашает проверенный код. Если параллельный запрос успел раньше,
// или код истёк между проверкой и погашением, возвращается INVALID_OTP.
func (s *OTPService) Consume(ctx context.Context, otp *models.OTP) error {
	if err := s.repo.Consume(ctx, otp.ID, s.maxAttempts); err != nil {
		if errors.Is(err, repository.ErrOTPNotActive) {
			return apperror.ErrInvalidOTP
		}
		return apperror.Wrap(err, apperror.ErrCodeVerificationFail, "не удалось подтвердить код")
	}
	return nil
}

// RunCleanup периодически удаляет истёкшие коды до отмены ctx.
func (s *OTPService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.repo.DeleteExpired(ctx, s.now())
			if err != nil {
				logger.Log.WithError(err).Error("otp service: не удалось удалить истёкшие коды")
				continue
			}
			if removed > 0 {
				logger.Log.WithField("removed", removed).Debug("otp service: истёкшие коды удалены")
			}
		}
	}
}

// generateOTPCode возвращает криптографически случайный шестизначный код.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
