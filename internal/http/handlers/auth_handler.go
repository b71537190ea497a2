package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/rideya/rideya-backend/internal/http/handlers/common"
	"github.com/rideya/rideya-backend/internal/http/response"
	"github.com/rideya/rideya-backend/internal/logger"
	"github.com/rideya/rideya-backend/internal/pkg/apperror"
	"github.com/rideya/rideya-backend/internal/service"
)

var errGoogleDisabled = apperror.New(apperror.ErrCodeServiceUnavailable, "вход через Google не настроен")

// AuthHandler предоставляет HTTP слой регистрации, входа и обновления токенов.
type AuthHandler struct {
	auth        *service.AuthService
	google      *service.GoogleOAuth
	frontendURL string
}

// NewAuthHandler создаёт хэндлер. google может быть nil, если OAuth не настроен.
func NewAuthHandler(auth *service.AuthService, google *service.GoogleOAuth, frontendURL string) *AuthHandler {
	return &AuthHandler{auth: auth, google: google, frontendURL: frontendURL}
}

type authResponse struct {
	User         interface{} `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
	IsNewUser    bool        `json:"isNewUser,omitempty"`
}

func newAuthResponse(result *service.AuthResult) authResponse {
	return authResponse{
		User:         result.User,
		AccessToken:  result.TokenPair.AccessToken,
		RefreshToken: result.TokenPair.RefreshToken,
		ExpiresIn:    result.TokenPair.ExpiresIn,
		IsNewUser:    result.IsNewUser,
	}
}

// RegisterEmail обрабатывает POST /api/auth/register/email.
func (h *AuthHandler) RegisterEmail(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
		Role      string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.auth.RegisterWithEmail(c.Request.Context(), service.RegisterEmailInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Created(c, newAuthResponse(result))
}

// LoginEmail обрабатывает POST /api/auth/login/email.
func (h *AuthHandler) LoginEmail(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.auth.LoginWithEmail(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, newAuthResponse(result))
}

// SendOTP обрабатывает POST /api/auth/register/phone/send-otp.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	issue, err := h.auth.SendPhoneOTP(c.Request.Context(), req.Phone)
	if err != nil {
		common.Fail(c, err)
		return
	}

	data := gin.H{
		"message":   "код отправлен",
		"expiresIn": issue.ExpiresIn,
	}
	if issue.Code != "" {
		data["otp"] = issue.Code
	}
	response.Success(c, data)
}

// VerifyOTP обрабатывает POST /api/auth/register/phone/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Phone     string `json:"phone" binding:"required"`
		OTP       string `json:"otp" binding:"required,len=6"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Role      string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.auth.VerifyPhoneOTP(c.Request.Context(), service.VerifyPhoneInput{
		Phone:     req.Phone,
		Code:      req.OTP,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	status := http.StatusOK
	if result.IsNewUser {
		status = http.StatusCreated
	}
	c.JSON(status, response.Response{Success: true, Data: newAuthResponse(result)})
}

// GoogleLogin обрабатывает GET /api/auth/google: редирект на страницу согласия.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	if h.google == nil {
		common.Fail(c, errGoogleDisabled)
		return
	}

	authURL, err := h.google.AuthURL()
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// GoogleCallback обрабатывает GET /api/auth/google/callback.
// Результат всегда отдаётся редиректом на фронтенд.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.google == nil {
		h.redirectError(c, "google_disabled")
		return
	}
	if reason := c.Query("error"); reason != "" {
		h.redirectError(c, reason)
		return
	}

	profile, err := h.google.Exchange(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.Log.WithError(err).Warn("auth handler: обмен кода Google не удался")
		h.redirectError(c, "authentication_failed")
		return
	}

	result, err := h.auth.LoginWithGoogle(c.Request.Context(), *profile)
	if err != nil {
		logger.Log.WithError(err).Warn("auth handler: вход через Google не удался")
		h.redirectError(c, string(apperror.CodeOf(err)))
		return
	}

	q := url.Values{}
	q.Set("access_token", result.TokenPair.AccessToken)
	q.Set("refresh_token", result.TokenPair.RefreshToken)
	c.Redirect(http.StatusFound, h.frontendURL+"/auth/callback?"+q.Encode())
}

func (h *AuthHandler) redirectError(c *gin.Context, reason string) {
	if reason == "" {
		reason = "authentication_failed"
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/login?error="+url.QueryEscape(reason))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh обрабатывает POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	// Пустое тело означает отсутствующий токен.
	_ = c.ShouldBindJSON(&req)

	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, tokens)
}

// Logout обрабатывает POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.auth.Logout(c.Request.Context(), userID, req.RefreshToken); err != nil {
		common.Fail(c, err)
		return
	}

	response.SuccessMessage(c, "выход выполнен", nil)
}

// Me обрабатывает GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	response.Success(c, user)
}
