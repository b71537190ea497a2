package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	oauthStateTTL     = 10 * time.Minute
)

// GoogleOAuth выполняет вход через Google по схеме authorization code.
type GoogleOAuth struct {
	config      *oauth2.Config
	cache       *CacheService
	userInfoURL string
}

// NewGoogleOAuth создаёт клиент OAuth. state хранится в cache до обмена кода.
func NewGoogleOAuth(cfg config.GoogleConfig, cache *CacheService) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		cache:       cache,
		userInfoURL: googleUserInfoURL,
	}
}

// AuthURL генерирует одноразовый state и возвращает адрес страницы согласия Google.
func (g *GoogleOAuth) AuthURL() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("google oauth: generate state: %w", err)
	}
	state := hex.EncodeToString(buf)
	g.cache.Set(OAuthStateCacheKey(state), true, oauthStateTTL)

	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// Exchange проверяет state, обменивает code на токен и загружает профиль пользователя.
func (g *GoogleOAuth) Exchange(ctx context.Context, state, code string) (*GoogleProfile, error) {
	if _, ok := g.cache.Take(OAuthStateCacheKey(state)); !ok || state == "" {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "недействительный параметр state")
	}
	if code == "" {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "отсутствует код авторизации")
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "не удалось обменять код авторизации Google")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google oauth: build request: %w", err)
	}

	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "не удалось получить профиль Google")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, fmt.Sprintf("Google вернул статус %d", resp.StatusCode))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "не удалось разобрать профиль Google")
	}

	profile := &GoogleProfile{
		ID:            info.Sub,
		EmailVerified: info.EmailVerified,
		FirstName:     info.GivenName,
		LastName:      info.FamilyName,
	}
	// Непроверенный email не используем для привязки к существующему аккаунту.
	if info.EmailVerified {
		profile.Email = info.Email
	}
	return profile, nil
}
