package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/oauth"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/password"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/store"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"github.com/google/uuid"
)

var (
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountLocked        = errors.New("account is locked")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailAlreadyVerified = errors.New("email already verified")
)

// MaxFailedLogins is the number of consecutive wrong passwords that locks an
// account.
const MaxFailedLogins = 5

// SessionStore is the server-side session collaborator; nil disables
// sessions.
type SessionStore interface {
	Create(ctx context.Context, userID uuid.UUID, email, userAgent, ip string) (*store.Session, error)
	Get(ctx context.Context, id string) (*store.Session, error)
	Delete(ctx context.Context, id string) error
}

type AuthDeps struct {
	Users       repository.UserRepository
	RBAC        *RBACService
	Tokens      *tokens.Manager
	Hasher      *password.Hasher
	Rules       password.Rules
	Sessions    SessionStore
	Blacklist   tokens.Blacklist
	Notifier    Notifier
	AdminEmails []string
}

type AuthService struct {
	users       repository.UserRepository
	rbac        *RBACService
	tokens      *tokens.Manager
	hasher      *password.Hasher
	rules       password.Rules
	sessions    SessionStore
	blacklist   tokens.Blacklist
	notifier    Notifier
	adminEmails []string
	now         func() time.Time
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Hasher == nil {
		d.Hasher = password.NewHasher(password.DefaultOptions)
	}
	if d.Rules.MinLength == 0 {
		d.Rules = password.DefaultRules
	}
	if d.Notifier == nil {
		d.Notifier = LogNotifier{}
	}
	return &AuthService{
		users:       d.Users,
		rbac:        d.RBAC,
		tokens:      d.Tokens,
		hasher:      d.Hasher,
		rules:       d.Rules,
		sessions:    d.Sessions,
		blacklist:   d.Blacklist,
		notifier:    d.Notifier,
		adminEmails: d.AdminEmails,
		now:         time.Now,
	}
}

// Client describes where a request came from; it is stored on sessions.
type Client struct {
	UserAgent string
	IP        string
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Client      Client
}

// AuthResult is what a successful sign-in hands back to the transport.
type AuthResult struct {
	User    *models.User
	Tokens  tokens.Pair
	Session *store.Session
}

// Me is the signed-in user's view of their account.
type Me struct {
	User        *models.User `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func payloadFor(u *models.User) tokens.Payload {
	return tokens.Payload{UserID: u.ID.String(), Email: u.Email, EmailVerified: u.EmailConfirmed}
}

func weakPassword(st password.Strength) error {
	fields := make([]apperr.FieldError, len(st.Errors))
	for i, msg := range st.Errors {
		fields[i] = apperr.FieldError{Field: "password", Message: msg}
	}
	return apperr.Validation(fields)
}

// =============================================================================
// Registration and sign-in
// =============================================================================

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	if st := password.ValidateStrength(in.Password, s.rules); !st.Valid {
		return nil, weakPassword(st)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		metrics.Auth("register", "conflict")
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Email: email, Password: &hash, IsActive: true}
	profile := &models.UserProfile{DisplayName: in.DisplayName}
	if profile.DisplayName == "" {
		profile.DisplayName = strings.Split(email, "@")[0]
	}
	if err := s.users.Create(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.assignDefaultRoles(ctx, user)
	s.sendVerification(ctx, user)
	metrics.Auth("register", "success")
	slog.Info("user registered", "action", "register", "user_id", user.ID)

	return s.signIn(ctx, user, in.Client)
}

func (s *AuthService) assignDefaultRoles(ctx context.Context, user *models.User) {
	if s.rbac == nil {
		return
	}
	if err := s.rbac.AssignRoleByName(ctx, user.ID, RoleUser); err != nil {
		slog.Warn("failed to assign default role", "user_id", user.ID, "error", err)
	}
	if slices.Contains(s.adminEmails, user.Email) {
		if err := s.rbac.AssignRoleByName(ctx, user.ID, RoleAdmin); err != nil {
			slog.Warn("failed to assign admin role", "user_id", user.ID, "error", err)
		}
	}
}

// Login never tells an unknown email apart from a wrong password. Locked
// and inactive accounts are only reported once the password checks out.
func (s *AuthService) Login(ctx context.Context, email, pw string, client Client) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.Auth("login", "failure")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() {
		metrics.Auth("login", "failure")
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(pw, *user.Password)
	if err != nil {
		slog.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
	}
	if !ok {
		s.recordFailedLogin(ctx, user)
		metrics.Auth("login", "failure")
		return nil, ErrInvalidCredentials
	}

	if user.IsLocked {
		metrics.Auth("login", "locked")
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		metrics.Auth("login", "inactive")
		return nil, ErrAccountInactive
	}

	now := s.now()
	user.FailedLoginAttempts = 0
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	metrics.Auth("login", "success")
	return s.signIn(ctx, user, client)
}

func (s *AuthService) recordFailedLogin(ctx context.Context, user *models.User) {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= MaxFailedLogins && !user.IsLocked {
		user.IsLocked = true
		slog.Warn("account locked after failed logins", "action", "lock", "user_id", user.ID,
			"attempts", user.FailedLoginAttempts)
	}
	if err := s.users.Update(ctx, user); err != nil {
		slog.Error("failed to record failed login", "user_id", user.ID, "error", err)
	}
}

// signIn issues a token pair and, when a session store is configured, a
// server-side session.
func (s *AuthService) signIn(ctx context.Context, user *models.User, client Client) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(payloadFor(user))
	if err != nil {
		return nil, err
	}
	res := &AuthResult{User: user, Tokens: pair}

	if s.sessions != nil {
		sess, err := s.sessions.Create(ctx, user.ID, user.Email, client.UserAgent, client.IP)
		if err != nil {
			slog.Warn("failed to create session", "user_id", user.ID, "error", err)
		} else {
			res.Session = sess
		}
	}
	return res, nil
}

// =============================================================================
// Tokens
// =============================================================================

// Refresh rotates a refresh token. The old one is blacklisted so it can
// only be used once.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (*AuthResult, error) {
	if refresh == "" {
		return nil, ErrInvalidToken
	}
	if s.isRevoked(ctx, refresh) {
		metrics.Auth("refresh", "revoked")
		return nil, ErrInvalidToken
	}

	pair, claims, err := s.tokens.RefreshPair(refresh)
	if err != nil {
		metrics.Auth("refresh", "failure")
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		metrics.Auth("refresh", "failure")
		return nil, err
	}

	s.revokeClaims(ctx, claims)
	metrics.Auth("refresh", "success")
	return &AuthResult{User: user, Tokens: pair}, nil
}

// RefreshTokens is Refresh for middleware that only needs the new pair.
func (s *AuthService) RefreshTokens(ctx context.Context, refresh string) (tokens.Pair, error) {
	res, err := s.Refresh(ctx, refresh)
	if err != nil {
		return tokens.Pair{}, err
	}
	return res.Tokens, nil
}

type LogoutInput struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// Logout revokes whatever credentials the client still holds. It never
// fails on bad input.
func (s *AuthService) Logout(ctx context.Context, in LogoutInput) {
	for _, tok := range []string{in.AccessToken, in.RefreshToken} {
		if tok != "" {
			s.revokeToken(ctx, tok)
		}
	}
	if in.SessionID != "" && s.sessions != nil {
		if err := s.sessions.Delete(ctx, in.SessionID); err != nil {
			slog.Warn("failed to delete session", "error", err)
		}
	}
	metrics.Auth("logout", "success")
}

func (s *AuthService) isRevoked(ctx context.Context, token string) bool {
	if s.blacklist == nil {
		return false
	}
	claims, err := tokens.Decode(token)
	if err != nil || claims.ID == "" {
		return false
	}
	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		slog.Error("blacklist lookup failed", "error", err)
		return false
	}
	return revoked
}

func (s *AuthService) revokeToken(ctx context.Context, token string) {
	claims, err := tokens.Decode(token)
	if err != nil {
		return
	}
	s.revokeClaims(ctx, claims)
}

func (s *AuthService) revokeClaims(ctx context.Context, claims *tokens.Claims) {
	if s.blacklist == nil {
		return
	}
	entry, err := tokens.EntryFromClaims(claims)
	if err != nil {
		return
	}
	if err := s.blacklist.Add(ctx, entry); err != nil {
		slog.Error("failed to blacklist token", "error", err)
	}
}

// =============================================================================
// Account
// =============================================================================

func (s *AuthService) activeUser(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.IsLocked {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*Me, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	me := &Me{User: user, Roles: []string{}, Permissions: []string{}}
	if s.rbac != nil {
		if me.Roles, err = s.rbac.GetUserRoleNames(ctx, userID); err != nil {
			return nil, err
		}
		if me.Permissions, err = s.rbac.GetUserPermissionNames(ctx, userID); err != nil {
			return nil, err
		}
	}
	return me, nil
}

// ChangePassword requires the current password unless the account was
// created through OAuth and never had one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.activeUser(ctx, userID.String())
	if err != nil {
		return err
	}
	if user.HasPassword() {
		ok, _ := s.hasher.Verify(current, *user.Password)
		if !ok {
			return ErrInvalidCredentials
		}
	}
	if st := password.ValidateStrength(next, s.rules); !st.Valid {
		return weakPassword(st)
	}
	if err := s.setPassword(ctx, user, next); err != nil {
		return err
	}
	metrics.Auth("password_change", "success")
	slog.Info("password changed", "action", "password_change", "user_id", user.ID)
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, user *models.User, pw string) error {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	user.Password = &hash
	user.PasswordChangedAt = &now
	return s.users.Update(ctx, user)
}

// ForgotPassword sends a reset token when the email belongs to an account.
// The caller answers the same way either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.tokens.GenerateTyped(tokens.Reset, payloadFor(user))
	if err != nil {
		return err
	}
	if err := s.notifier.SendPasswordReset(ctx, user.Email, token); err != nil {
		slog.Error("failed to send password reset", "user_id", user.ID, "error", err)
	}
	metrics.Auth("password_forgot", "sent")
	return nil
}

// ResetPassword accepts a reset token once: it is blacklisted when a
// blacklist exists, and it is always rejected when issued before the last
// password change.
func (s *AuthService) ResetPassword(ctx context.Context, token, next string) error {
	claims, err := s.tokens.VerifyTyped(token, tokens.Reset)
	if err != nil {
		metrics.Auth("password_reset", "failure")
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if s.isRevoked(ctx, token) {
		return ErrInvalidToken
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return ErrInvalidToken
	}
	if issuedBefore(claims, user.PasswordChangedAt) {
		return ErrInvalidToken
	}

	if st := password.ValidateStrength(next, s.rules); !st.Valid {
		return weakPassword(st)
	}

	user.IsLocked = false
	user.FailedLoginAttempts = 0
	if err := s.setPassword(ctx, user, next); err != nil {
		return err
	}
	s.revokeClaims(ctx, claims)
	metrics.Auth("password_reset", "success")
	slog.Info("password reset", "action", "password_reset", "user_id", user.ID)
	return nil
}

// issuedBefore compares at second resolution because iat has no more.
func issuedBefore(c *tokens.Claims, t *time.Time) bool {
	if t == nil || c.IssuedAt == nil {
		return false
	}
	return c.IssuedAt.Time.Before(t.Truncate(time.Second))
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.VerifyTyped(token, tokens.Verification)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		// the address changed since the token was sent
		return nil, ErrInvalidToken
	}
	if !user.EmailConfirmed {
		user.EmailConfirmed = true
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
		metrics.Auth("email_verify", "success")
	}
	return user, nil
}

func (s *AuthService) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if user.EmailConfirmed {
		return ErrEmailAlreadyVerified
	}
	s.sendVerification(ctx, user)
	return nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) {
	if user.EmailConfirmed {
		return
	}
	token, err := s.tokens.GenerateTyped(tokens.Verification, payloadFor(user))
	if err != nil {
		slog.Error("failed to issue verification token", "user_id", user.ID, "error", err)
		return
	}
	if err := s.notifier.SendVerification(ctx, user.Email, token); err != nil {
		slog.Error("failed to send verification", "user_id", user.ID, "error", err)
	}
}

// =============================================================================
// OAuth
// =============================================================================

// OAuthLogin signs in the owner of a provider identity. Unknown identities
// are linked to the account with the same verified email, or get a new
// password-less account.
func (s *AuthService) OAuthLogin(ctx context.Context, provider string, p oauth.Profile, client Client) (*AuthResult, error) {
	user, err := s.users.FindByLogin(ctx, provider, p.ID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		user, err = s.linkOAuthUser(ctx, provider, p)
		if err != nil {
			metrics.Auth("oauth", "failure")
			return nil, err
		}
	default:
		return nil, err
	}

	if user.IsLocked {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	now := s.now()
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	metrics.Auth("oauth", "success")
	return s.signIn(ctx, user, client)
}

func (s *AuthService) linkOAuthUser(ctx context.Context, provider string, p oauth.Profile) (*models.User, error) {
	email := normalizeEmail(p.Email)
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !p.EmailVerified {
			// an unverified provider email must not take over an account
			return nil, ErrEmailTaken
		}
	case errors.Is(err, repository.ErrNotFound):
		user = &models.User{Email: email, EmailConfirmed: p.EmailVerified, IsActive: true}
		profile := &models.UserProfile{DisplayName: p.Name, Picture: p.Picture}
		if err := s.users.Create(ctx, user, profile); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, ErrEmailTaken
			}
			return nil, err
		}
		s.assignDefaultRoles(ctx, user)
		slog.Info("user registered", "action", "register", "provider", provider, "user_id", user.ID)
	default:
		return nil, err
	}

	if err := s.users.AddLogin(ctx, &models.UserLogin{UserID: user.ID, Name: provider, Key: p.ID}); err != nil {
		return nil, err
	}
	return user, nil
}
