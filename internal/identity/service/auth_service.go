package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	identitydomain "resume-builder/backend/internal/identity/domain"
	"resume-builder/backend/internal/notification"
	"resume-builder/backend/internal/security"
	sessiondomain "resume-builder/backend/internal/session/domain"
	sessionservice "resume-builder/backend/internal/session/service"
	"resume-builder/backend/internal/telemetry"
	userdomain "resume-builder/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidOAuthIdentity   = errors.New("invalid external identity")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// AuthResult holds the outcome of Login and OAuthLogin. Register only sets UserID.
type AuthResult struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	SessionToken     string // plain opaque session token, returned once
	SessionExpiresAt time.Time
	NewUser          bool // OAuthLogin created the account
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	FindByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	SetVerified(ctx context.Context, id string) error
}

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	GetByProviderID(ctx context.Context, provider identitydomain.IdentityProvider, providerID string) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}

// SessionManager is the part of the session lifecycle the login surfaces drive.
type SessionManager interface {
	Redeem(ctx context.Context, rawRefreshToken string, client sessiondomain.Client) (*sessionservice.RedeemResult, error)
	RevokeOne(ctx context.Context, sessionID, requestingUserID string, actor sessiondomain.RevokedBy) (bool, error)
	RevokeAllExceptCurrent(ctx context.Context, userID, currentSessionID string, actor sessiondomain.RevokedBy) (int64, error)
}

// AuthService implements register, password and OAuth login, password change and logout.
// Every login issues a refresh token and redeems it at once, so the session row exists before the
// client sees any token.
type AuthService struct {
	users      UserRepo
	identities IdentityRepo
	sessions   SessionManager
	hasher     *security.Hasher
	tokens     *security.TokenCodec
	notifier   notification.Sender
	emitter    telemetry.EventEmitter
	log        *zap.Logger
	nowF       func() time.Time
}

// NewAuthService returns an AuthService. notifier and emitter may be nil.
func NewAuthService(
	users UserRepo,
	identities IdentityRepo,
	sessions SessionManager,
	hasher *security.Hasher,
	tokens *security.TokenCodec,
	notifier notification.Sender,
	emitter telemetry.EventEmitter,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		identities: identities,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		notifier:   notifier,
		emitter:    emitter,
		log:        log.Named("auth"),
		nowF:       time.Now,
	}
}

// WithClock replaces the time source. For tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.nowF = now
	}
	return s
}

func (s *AuthService) now() time.Time { return s.nowF().UTC() }

// Register creates a user and local identity with the given email and password.
// Returns AuthResult with UserID only; the caller logs in to get tokens.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userdomain.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	identity := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", user.ID))
	return &AuthResult{UserID: user.ID}, nil
}

// Login authenticates with email and password and opens a session for client.
// Unknown email, disabled account, missing local identity and wrong password all return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string, client sessiondomain.Client) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() {
		return nil, ErrInvalidCredentials
	}
	ident, err := s.identities.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.log.Warn("stored password hash unusable", zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, user, client)
}

// OAuthLogin signs in with an identity already verified by the OAuth handshake. The user and identity
// are created on first sight; an existing account with the same email is linked and marked verified.
func (s *AuthService) OAuthLogin(ctx context.Context, ext identitydomain.ExternalIdentity, client sessiondomain.Client) (*AuthResult, error) {
	provider, err := identitydomain.ParseProvider(string(ext.Provider))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOAuthIdentity, err)
	}
	email := userdomain.NormalizeEmail(ext.Email)
	if strings.TrimSpace(ext.ExternalID) == "" || validateEmail(email) != nil {
		return nil, ErrInvalidOAuthIdentity
	}

	user, created, err := s.resolveOAuthUser(ctx, provider, ext, email)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, ErrInvalidCredentials
	}
	res, err := s.openSession(ctx, user, client)
	if err != nil {
		return nil, err
	}
	res.NewUser = created
	return res, nil
}

func (s *AuthService) resolveOAuthUser(ctx context.Context, provider identitydomain.IdentityProvider, ext identitydomain.ExternalIdentity, email string) (*userdomain.User, bool, error) {
	ident, err := s.identities.GetByProviderID(ctx, provider, ext.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if ident != nil {
		return s.linkedUser(ctx, ident.UserID)
	}

	created := false
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	if user == nil {
		user = &userdomain.User{
			ID:         uuid.New().String(),
			Email:      email,
			Name:       strings.TrimSpace(ext.Profile.Name),
			IsVerified: true,
			Status:     userdomain.UserStatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if !errors.Is(err, userdomain.ErrEmailTaken) {
				return nil, false, err
			}
			// Lost a race with a concurrent sign-up for the same email.
			if user, err = s.users.GetByEmail(ctx, email); err != nil || user == nil {
				return nil, false, fmt.Errorf("reload user after conflict: %w", errors.Join(err, ErrInvalidCredentials))
			}
		} else {
			created = true
		}
	}
	if !user.IsVerified {
		if err := s.users.SetVerified(ctx, user.ID); err != nil {
			return nil, false, err
		}
		user.IsVerified = true
	}

	err = s.identities.Create(ctx, &identitydomain.Identity{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		Provider:   provider,
		ProviderID: ext.ExternalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if errors.Is(err, identitydomain.ErrIdentityExists) {
		winner, err := s.identities.GetByProviderID(ctx, provider, ext.ExternalID)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, ErrInvalidCredentials
		}
		u, _, err := s.linkedUser(ctx, winner.UserID)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	s.log.Info("identity linked",
		zap.String("user_id", user.ID),
		zap.String("provider", string(provider)),
		zap.Bool("new_user", created))
	return user, created, nil
}

func (s *AuthService) linkedUser(ctx context.Context, userID string) (*userdomain.User, bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, ErrInvalidCredentials
	}
	return user, false, nil
}

// openSession issues a refresh token and redeems it so the session row exists.
func (s *AuthService) openSession(ctx context.Context, user *userdomain.User, client sessiondomain.Client) (*AuthResult, error) {
	refresh, err := s.tokens.IssueRefreshToken(security.Principal{UserID: user.ID, IsVerified: user.IsVerified})
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	redeemed, err := s.sessions.Redeem(ctx, refresh.Token, client)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &AuthResult{
		UserID:           user.ID,
		AccessToken:      redeemed.AccessToken,
		AccessExpiresAt:  redeemed.AccessExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		SessionID:        redeemed.SessionID,
		SessionToken:     redeemed.SessionToken,
		SessionExpiresAt: redeemed.ExpiresAt,
	}, nil
}

// ChangePassword verifies oldPassword, stores newPassword and revokes every other session of the user.
// Returns how many sessions were revoked. The password-changed notice is best-effort.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) (int64, error) {
	if err := validatePassword(newPassword); err != nil {
		return 0, err
	}
	ident, err := s.identities.GetByUserAndProvider(ctx, userID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return 0, err
	}
	if ident == nil || ident.PasswordHash == "" {
		return 0, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, oldPassword); err != nil {
		return 0, ErrInvalidCredentials
	}
	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return 0, err
	}
	if err := s.identities.UpdatePasswordHash(ctx, ident.ID, hashed); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAllExceptCurrent(ctx, userID, currentSessionID, sessiondomain.RevokedBySystem)
	if err != nil {
		return 0, err
	}
	if s.notifier != nil {
		if err := s.notifier.SendPasswordChanged(ctx, userID); err != nil {
			s.log.Warn("password change notice failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	telemetry.EmitAsync(s.log, s.emitter, ctx, telemetry.NewEvent(telemetry.EventPasswordChanged, "auth", userID, currentSessionID,
		map[string]int64{"sessionsRevoked": n}))
	s.log.Info("password changed", zap.String("user_id", userID), zap.Int64("sessions_revoked", n))
	return n, nil
}

// Logout revokes the caller's current session. Logging out of a session that is already gone is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := s.sessions.RevokeOne(ctx, sessionID, userID, sessiondomain.RevokedByUser)
	if errors.Is(err, sessiondomain.ErrNotFound) {
		return nil
	}
	return err
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("%w: password must be at least 12 characters", ErrInvalidInput)
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidInput)
	case !hasLower:
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrInvalidInput)
	case !hasNumber:
		return fmt.Errorf("%w: password must contain at least one number", ErrInvalidInput)
	case !hasSymbol:
		return fmt.Errorf("%w: password must contain at least one symbol", ErrInvalidInput)
	}
	return nil
}
