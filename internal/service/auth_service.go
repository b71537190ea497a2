package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/rideya/rideya-backend/internal/goroutine"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/models"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/repository"
	"github.com/rideya/rideya-backend/internal/validation"
)

const mailTimeout = 30 * time.Second

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	AppendRefreshToken(ctx context.Context, userID uuid.UUID, token string) error
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldToken, newToken string) error
	RemoveRefreshToken(ctx context.Context, userID uuid.UUID, token string) error
	LinkGoogleID(ctx context.Context, userID uuid.UUID, googleID string) error
	MarkPhoneVerified(ctx context.Context, userID uuid.UUID) error
}

// WelcomeMailer отправляет приветственное письмо.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, to, firstName string) error
}

// AuthService инкапсулирует регистрацию, вход и жизненный цикл токенов.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
	otp          *OTPService
	mailer       WelcomeMailer
}

// RegisterEmailInput данные регистрации по email.
type RegisterEmailInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// VerifyPhoneInput данные подтверждения телефона. Имена обязательны только для нового номера.
type VerifyPhoneInput struct {
	Phone     string
	Code      string
	FirstName string
	LastName  string
	Role      string
}

// GoogleProfile профиль пользователя, полученный от Google.
type GoogleProfile struct {
	ID            string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
	IsNewUser bool
}

// NewAuthService создаёт сервис аутентификации. otp и mailer могут быть nil.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager, otp *OTPService, mailer WelcomeMailer) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
		otp:          otp,
		mailer:       mailer,
	}
}

// RegisterWithEmail создаёт пользователя с паролем и выдаёт токены.
func (s *AuthService) RegisterWithEmail(ctx context.Context, in RegisterEmailInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := firstError(
		validation.ValidateEmail(email),
		validation.ValidatePassword(in.Password),
		validation.ValidateName("имя", in.FirstName),
		validation.ValidateName("фамилия", in.LastName),
		validation.ValidateRegistrationRole(in.Role),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperror.ErrUserExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperror.Wrap(err, apperror.ErrCodeRegistrationFailed, "не удалось зарегистрировать пользователя")
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeRegistrationFailed, "не удалось захешировать пароль")
	}
	hash := string(passHash)

	user := &models.User{
		Email:        &email,
		PasswordHash: &hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         roleOrDefault(in.Role),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperror.ErrUserExists
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeRegistrationFailed, "не удалось зарегистрировать пользователя")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.sendWelcome(email, user.FirstName)

	return &AuthResult{User: user, TokenPair: tokens, IsNewUser: true}, nil
}

// LoginWithEmail проверяет учётные данные и выдаёт токены.
func (s *AuthService) LoginWithEmail(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeLoginFailed, "не удалось выполнить вход")
	}

	if !user.IsActive {
		return nil, apperror.ErrAccountDisabled
	}

	// Пользователи, пришедшие через Google или телефон, пароля не имеют.
	if user.PasswordHash == nil || bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(in.Password)) != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokens}, nil
}

// SendPhoneOTP выпускает код подтверждения для телефона.
func (s *AuthService) SendPhoneOTP(ctx context.Context, phone string) (*OTPIssue, error) {
	phone = strings.TrimSpace(phone)
	if err := validation.ValidatePhone(phone); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	return s.otp.Send(ctx, phone)
}

// VerifyPhoneOTP подтверждает код и входит или регистрирует пользователя по телефону.
// Код погашается только после того, как все остальные проверки пройдены.
func (s *AuthService) VerifyPhoneOTP(ctx context.Context, in VerifyPhoneInput) (*AuthResult, error) {
	phone := strings.TrimSpace(in.Phone)
	if err := firstError(
		validation.ValidatePhone(phone),
		validation.ValidateOTPCode(in.Code),
		validation.ValidateRegistrationRole(in.Role),
	); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}

	otp, err := s.otp.Check(ctx, phone, in.Code)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetByPhone(ctx, phone)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, apperror.ErrAccountDisabled
		}
	case errors.Is(err, repository.ErrUserNotFound):
		user = nil
		if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
			return nil, apperror.ErrMissingFields
		}
	default:
		return nil, apperror.Wrap(err, apperror.ErrCodeVerificationFail, "не удалось подтвердить код")
	}

	if err := s.otp.Consume(ctx, otp); err != nil {
		return nil, err
	}

	isNew := false
	if user == nil {
		user, isNew, err = s.createPhoneUser(ctx, phone, in)
		if err != nil {
			return nil, err
		}
	} else if !user.PhoneVerified {
		if err := s.repo.MarkPhoneVerified(ctx, user.ID); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeVerificationFail, "не удалось подтвердить телефон")
		}
		user.PhoneVerified = true
		user.IsVerified = true
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokens, IsNewUser: isNew}, nil
}

// LoginWithGoogle находит пользователя по Google ID или email, при необходимости
// привязывает аккаунт или создаёт нового пользователя, и выдаёт токены.
func (s *AuthService) LoginWithGoogle(ctx context.Context, profile GoogleProfile) (*AuthResult, error) {
	if profile.ID == "" {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "профиль Google не содержит идентификатора")
	}

	user, err := s.repo.GetByGoogleID(ctx, profile.ID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperror.Wrap(err, apperror.ErrCodeLoginFailed, "не удалось выполнить вход через Google")
	}

	isNew := false
	if user == nil && profile.Email != "" {
		user, err = s.repo.GetByEmail(ctx, profile.Email)
		switch {
		case err == nil:
			if err := s.repo.LinkGoogleID(ctx, user.ID, profile.ID); err != nil {
				return nil, apperror.Wrap(err, apperror.ErrCodeLoginFailed, "не удалось привязать аккаунт Google")
			}
			googleID := profile.ID
			user.GoogleID = &googleID
			user.EmailVerified = true
			user.IsVerified = true
		case errors.Is(err, repository.ErrUserNotFound):
			user = nil
		default:
			return nil, apperror.Wrap(err, apperror.ErrCodeLoginFailed, "не удалось выполнить вход через Google")
		}
	}

	if user == nil {
		user, err = s.createGoogleUser(ctx, profile)
		if err != nil {
			return nil, err
		}
		isNew = true
	}

	if !user.IsActive {
		return nil, apperror.ErrAccountDisabled
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokens, IsNewUser: isNew}, nil
}

// Refresh обменивает действующий refresh токен на новую пару.
// Предъявленный токен погашается, взамен выдаётся ровно один новый.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apperror.ErrMissingToken
	}

	userID, err := s.tokenManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperror.ErrTokenRefreshFailed
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrInvalidToken
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось обновить токен")
	}

	if !user.HasRefreshToken(refreshToken) {
		return nil, apperror.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, apperror.ErrAccountDisabled
	}

	tokens, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить токены")
	}

	if err := s.repo.RotateRefreshToken(ctx, user.ID, refreshToken, tokens.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, apperror.ErrInvalidToken
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось обновить токен")
	}

	return tokens, nil
}

// Logout удаляет указанный refresh токен пользователя. Пустой или неизвестный токен игнорируется.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repo.RemoveRefreshToken(ctx, userID, refreshToken); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выйти из системы")
	}
	return nil
}

// CurrentUser возвращает профиль пользователя.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить пользователя")
	}
	return user, nil
}

// issueTokens выпускает пару и добавляет refresh токен к списку действующих.
func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	tokens, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить токены")
	}

	if err := s.repo.AppendRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сохранить сессию")
	}
	user.RefreshTokens = append(user.RefreshTokens, tokens.RefreshToken)

	return tokens, nil
}

func (s *AuthService) createPhoneUser(ctx context.Context, phone string, in VerifyPhoneInput) (*models.User, bool, error) {
	user := &models.User{
		Phone:         &phone,
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Role:          roleOrDefault(in.Role),
		PhoneVerified: true,
		IsVerified:    true,
	}

	err := s.repo.Create(ctx, user)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, repository.ErrUserExists) {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeRegistrationFailed, "не удалось зарегистрировать пользователя")
	}

	// Номер успел зарегистрировать параллельный запрос.
	existing, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeRegistrationFailed, "не удалось зарегистрировать пользователя")
	}
	return existing, false, nil
}

func (s *AuthService) createGoogleUser(ctx context.Context, profile GoogleProfile) (*models.User, error) {
	googleID := profile.ID
	user := &models.User{
		GoogleID:      &googleID,
		FirstName:     nonEmpty(profile.FirstName, "Google"),
		LastName:      nonEmpty(profile.LastName, "User"),
		Role:          models.RolePassenger,
		EmailVerified: profile.Email != "",
		IsVerified:    profile.Email != "",
	}
	if profile.Email != "" {
		email := strings.ToLower(profile.Email)
		user.Email = &email
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperror.ErrUserExists
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeRegistrationFailed, "не удалось зарегистрировать пользователя")
	}
	return user, nil
}

func (s *AuthService) sendWelcome(email, firstName string) {
	if s.mailer == nil {
		return
	}
	goroutine.SafeGo("welcome-email", func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := s.mailer.SendWelcome(ctx, email, firstName); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"email": email,
				"error": err.Error(),
			}).Warn("auth service: не удалось отправить приветственное письмо")
		}
	})
}

func roleOrDefault(role string) string {
	if role == "" {
		return models.RolePassenger
	}
	return role
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
