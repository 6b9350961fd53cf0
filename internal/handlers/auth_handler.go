package handlers

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/cookies"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/httpx"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/oauth"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthVerifierCookie = "oauth_verifier"
	oauthCookiePath     = "/api/auth/oauth"
	oauthCookieTTL      = 10 * time.Minute
)

type AuthHandler struct {
	authService     *services.AuthService
	cookies         *cookies.Manager
	auth            *middleware.Auth
	providers       oauth.Registry
	successRedirect string
}

func NewAuthHandler(
	authService *services.AuthService,
	cookieManager *cookies.Manager,
	auth *middleware.Auth,
	providers oauth.Registry,
	successRedirect string,
) *AuthHandler {
	if successRedirect == "" {
		successRedirect = "/"
	}
	return &AuthHandler{
		authService:     authService,
		cookies:         cookieManager,
		auth:            auth,
		providers:       providers,
		successRedirect: successRedirect,
	}
}

func client(c *fiber.Ctx) services.Client {
	return services.Client{UserAgent: c.Get(fiber.HeaderUserAgent), IP: c.IP()}
}

// issue writes the auth cookies for res and renders it as an AuthResponse.
func (h *AuthHandler) issue(c *fiber.Ctx, res *services.AuthResult) (dto.AuthResponse, error) {
	if err := h.cookies.SetAuth(c, res.Tokens.AccessToken, res.Tokens.RefreshToken); err != nil {
		return dto.AuthResponse{}, err
	}
	resp := dto.AuthResponse{
		User:             dto.NewUserResponse(res.User),
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	}
	if res.Session != nil {
		if _, err := h.cookies.Manage(cookies.ActionSet, cookies.Session, c, res.Session.ID, cookies.Options{}); err != nil {
			return dto.AuthResponse{}, err
		}
		resp.SessionID = res.Session.ID
	}
	return resp, nil
}

// bindOptional parses the body only when one was sent.
func bindOptional(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return httpx.Bind(c, dst)
}

// =============================================================================
// Registration and sign-in
// =============================================================================

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.authService.Register(c.UserContext(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Client:      client(c),
	})
	if err != nil {
		return services.ToAppError(err)
	}
	resp, err := h.issue(c, res)
	if err != nil {
		return err
	}
	return httpx.Created(c, resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.authService.Login(c.UserContext(), req.Email, req.Password, client(c))
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			slog.Warn("login failed", "action", "login", "ip", c.IP())
		}
		return services.ToAppError(err)
	}
	resp, err := h.issue(c, res)
	if err != nil {
		return err
	}
	return httpx.OK(c, resp)
}

// Refresh takes the refresh token from its cookie, falling back to the body.
// A rejected token clears the auth cookies.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refresh := h.cookies.Get(c, cookies.Name(cookies.Refresh))
	if refresh == "" {
		var req dto.RefreshRequest
		if err := bindOptional(c, &req); err != nil {
			return err
		}
		refresh = strings.TrimSpace(req.RefreshToken)
	}
	if refresh == "" {
		return apperr.TokenRequired()
	}

	res, err := h.authService.Refresh(c.UserContext(), refresh)
	if err != nil {
		slog.Warn("token refresh failed", "action", "refresh", "error", err)
		if clearErr := h.cookies.ClearAuth(c); clearErr != nil {
			slog.Warn("failed to clear auth cookies", "error", clearErr)
		}
		return services.ToAppError(err)
	}
	resp, err := h.issue(c, res)
	if err != nil {
		return err
	}
	return httpx.OK(c, resp)
}

// Logout revokes what the client presents and always clears the cookies.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := bindOptional(c, &req); err != nil {
		return err
	}
	refresh := h.cookies.Get(c, cookies.Name(cookies.Refresh))
	if refresh == "" {
		refresh = req.RefreshToken
	}
	sid := h.cookies.Get(c, cookies.Name(cookies.Session))
	if sid == "" {
		sid = c.Get(middleware.HeaderSessionID)
	}

	h.authService.Logout(c.UserContext(), services.LogoutInput{
		AccessToken:  h.auth.ExtractToken(c),
		RefreshToken: refresh,
		SessionID:    sid,
	})
	if err := h.cookies.ClearAuth(c); err != nil {
		return err
	}
	if id, ok := middleware.GetIdentity(c); ok {
		slog.Info("user logged out", "action", "logout", "user_id", id.UserID)
	}
	return httpx.Message(c, "Logged out successfully")
}

// =============================================================================
// Account
// =============================================================================

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return apperr.AuthRequired("")
	}
	me, err := h.authService.Me(c.UserContext(), userID)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, dto.MeResponse{
		User:        dto.NewUserResponse(me.User),
		Roles:       me.Roles,
		Permissions: me.Permissions,
		Refreshed:   middleware.WasRefreshed(c),
	})
}

// Session reports who the caller is through whichever mechanism admitted
// them.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		return apperr.AuthRequired("")
	}
	resp := dto.SessionResponse{
		UserID:    id.UserID,
		Email:     id.Email,
		Method:    id.Method,
		SessionID: id.SessionID,
	}
	if id.Claims != nil && id.Claims.ExpiresAt != nil {
		exp := id.Claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	return httpx.OK(c, resp)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return apperr.AuthRequired("")
	}
	var req dto.ChangePasswordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.authService.ChangePassword(c.UserContext(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return apperr.New(fiber.StatusUnauthorized, apperr.CodeInvalidCredentials, "Current password is incorrect")
		}
		return services.ToAppError(err)
	}
	return httpx.Message(c, "Password changed")
}

// ForgotPassword answers 202 whether or not the email is known.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.authService.ForgotPassword(c.UserContext(), req.Email); err != nil {
		slog.Error("password reset request failed", "action", "password_forgot", "error", err)
	}
	return httpx.Accepted(c, "If the email is registered, a reset link has been sent")
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.authService.ResetPassword(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return services.ToAppError(err)
	}
	return httpx.Message(c, "Password has been reset")
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req dto.VerifyEmailRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.authService.VerifyEmail(c.UserContext(), req.Token)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OKWithMessage(c, dto.NewUserResponse(user), "Email verified")
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return apperr.AuthRequired("")
	}
	if err := h.authService.ResendVerification(c.UserContext(), userID); err != nil {
		return services.ToAppError(err)
	}
	return httpx.Accepted(c, "Verification email sent")
}

// =============================================================================
// OAuth
// =============================================================================

func (h *AuthHandler) provider(c *fiber.Ctx) (*oauth.Provider, error) {
	name := c.Params("provider")
	p, err := h.providers.Get(name)
	if err != nil {
		return nil, apperr.NotFound("OAuth provider", name)
	}
	return p, nil
}

func (h *AuthHandler) oauthCookieOptions(maxAge time.Duration) cookies.Options {
	return cookies.Options{MaxAge: maxAge, Path: oauthCookiePath}
}

// OAuthStart redirects to the provider. State and PKCE verifier ride in
// short-lived cookies scoped to the oauth routes.
func (h *AuthHandler) OAuthStart(c *fiber.Ctx) error {
	p, err := h.provider(c)
	if err != nil {
		return err
	}
	req, err := oauth.NewAuthRequest(p)
	if err != nil {
		return apperr.Internal(err)
	}
	opts := h.oauthCookieOptions(oauthCookieTTL)
	if err := h.cookies.Set(c, oauthStateCookie, req.State, opts); err != nil {
		return err
	}
	if err := h.cookies.Set(c, oauthVerifierCookie, req.Verifier, opts); err != nil {
		return err
	}
	metrics.Auth("oauth", "started")
	return c.Redirect(req.URL, fiber.StatusFound)
}

func (h *AuthHandler) OAuthCallback(c *fiber.Ctx) error {
	p, err := h.provider(c)
	if err != nil {
		return err
	}
	var params oauth.CallbackParams
	if err := c.QueryParser(&params); err != nil {
		return apperr.BadRequest("Invalid callback parameters").Wrap(err)
	}

	state := h.cookies.Get(c, oauthStateCookie)
	verifier := h.cookies.Get(c, oauthVerifierCookie)
	for _, name := range []string{oauthStateCookie, oauthVerifierCookie} {
		if err := h.cookies.Clear(c, name, h.oauthCookieOptions(0)); err != nil {
			return err
		}
	}

	code, err := oauth.ValidateCallback(params, state)
	if err == nil && verifier == "" {
		err = oauth.ErrMissingState
	}
	if err != nil {
		metrics.Auth("oauth", "failure")
		slog.Warn("oauth callback rejected", "action", "oauth", "provider", p.Name, "error", err)
		return oauthError(err)
	}

	ctx := c.UserContext()
	tok, err := oauth.Exchange(ctx, p, code, verifier)
	if err != nil {
		metrics.Auth("oauth", "failure")
		return apperr.BadRequest("OAuth code exchange failed").Wrap(err)
	}
	profile, err := oauth.FetchProfile(ctx, p, tok)
	if err != nil {
		metrics.Auth("oauth", "failure")
		return oauthError(err)
	}

	res, err := h.authService.OAuthLogin(ctx, p.Name, profile, client(c))
	if err != nil {
		return services.ToAppError(err)
	}
	if _, err := h.issue(c, res); err != nil {
		return err
	}
	return c.Redirect(h.successRedirect, fiber.StatusFound)
}

func oauthError(err error) error {
	switch {
	case errors.Is(err, oauth.ErrStateMismatch), errors.Is(err, oauth.ErrMissingState):
		return apperr.Forbidden("Invalid OAuth state").Wrap(err)
	case errors.Is(err, oauth.ErrProviderDenied):
		return apperr.Forbidden("Authorization was denied by the provider").Wrap(err)
	case errors.Is(err, oauth.ErrMissingCode), errors.Is(err, oauth.ErrNoEmail):
		return apperr.BadRequest(err.Error()).Wrap(err)
	}
	return apperr.Unavailable("OAuth provider unavailable").Wrap(err)
}
