// Package identity signs callers up, in and out and resolves the caller behind a session
// token. Sessions opened here carry the role cache used by the access gate.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"fixmyarea-be/access"
	"fixmyarea-be/mailer"
	"fixmyarea-be/models"
	"fixmyarea-be/repository"
	"fixmyarea-be/store"
	"fixmyarea-be/utils"

	"github.com/google/uuid"
)

var (
	ErrUnauthenticated    = access.ErrUnauthenticated
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	DefaultTokenTTL = 72 * time.Hour
	DefaultResetTTL = time.Hour
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	Delete(ctx context.Context, id string) error
}

type CredentialStore interface {
	Create(ctx context.Context, cred *models.Credential) error
	ByEmail(ctx context.Context, email string) (*models.Credential, error)
	UpdatePassword(ctx context.Context, userID, hash string) error
	Delete(ctx context.Context, userID string) error
}

type Config struct {
	Secret   string
	TokenTTL time.Duration
	ResetTTL time.Duration
	// ResetURL is the page that accepts a reset token as its "token" query parameter.
	ResetURL string
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	ID        string
	Email     string
	SessionID string
	ExpiresAt time.Time
	Session   *access.Session
}

type Service struct {
	users    UserStore
	creds    CredentialStore
	sessions *access.Sessions
	tokens   TokenStore
	mail     mailer.Mailer
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

type Deps struct {
	Users       UserStore
	Credentials CredentialStore
	Sessions    *access.Sessions
	Tokens      TokenStore
	Mailer      mailer.Mailer
	Logger      *slog.Logger
	Now         func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Tokens == nil {
		d.Tokens = NewMemoryTokenStore(d.Now)
	}
	if d.Mailer == nil {
		d.Mailer = mailer.NewLogMailer(d.Logger)
	}
	return &Service{
		users:    d.Users,
		creds:    d.Credentials,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		mail:     d.Mailer,
		cfg:      cfg,
		log:      d.Logger,
		now:      d.Now,
	}
}

// SignUpInput is the profile and password of a new account.
type SignUpInput struct {
	UserName string `json:"userName" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" validate:"max=30"`
	NID      string `json:"nid" validate:"max=30"`
}

// Register creates the credential and user record for in with the given role. It does
// not check who is asking; callers gate admin-created accounts themselves.
func (s *Service) Register(ctx context.Context, in SignUpInput, role models.Role) (*models.User, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, models.Invalid("role", "unknown role %q", role)
	}

	cred := &models.Credential{UserID: uuid.NewString(), Email: in.Email}
	if err := cred.SetPassword(in.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return nil, err
	}

	user := &models.User{
		UserID:    cred.UserID,
		UserName:  in.UserName,
		Email:     cred.Email,
		Phone:     in.Phone,
		NID:       in.NID,
		Role:      role,
		CreatedAt: models.Millis(s.now()),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if derr := s.creds.Delete(ctx, cred.UserID); derr != nil {
			s.log.Error("failed to remove credential after user create failed", "user_id", cred.UserID, "error", derr)
		}
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.UserID, "role", user.Role)
	return user, nil
}

// SignUp registers a plain user and signs them in.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.User, *Token, error) {
	user, err := s.Register(ctx, in, models.RoleUser)
	if err != nil {
		return nil, nil, err
	}
	token, err := s.openSession(user.UserID, user.Email)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*models.User, *Token, error) {
	cred, err := s.creds.ByEmail(ctx, repository.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !cred.ComparePassword(password) {
		return nil, nil, ErrInvalidCredentials
	}
	user, err := s.users.Get(ctx, cred.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	token, err := s.openSession(user.UserID, user.Email)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

func (s *Service) openSession(userID, email string) (*Token, error) {
	sid := uuid.NewString()
	token, err := generateToken([]byte(s.cfg.Secret), userID, email, sid, s.now(), s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	s.sessions.Open(sid, userID)
	return token, nil
}

// SignOut discards the caller's session and revokes its token until it would expire.
func (s *Service) SignOut(ctx context.Context, caller *Caller) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	s.sessions.Close(caller.SessionID)
	ttl := caller.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.tokens.RevokeSession(ctx, caller.SessionID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// EndSessions signs callerID out everywhere: live sessions close and existing tokens stop
// resolving.
func (s *Service) EndSessions(ctx context.Context, callerID string) error {
	s.sessions.CloseCaller(callerID)
	if err := s.tokens.RevokeCaller(ctx, callerID, s.now(), s.cfg.TokenTTL); err != nil {
		return fmt.Errorf("revoke tokens of %s: %w", callerID, err)
	}
	return nil
}

// Unregister removes the user and credential records of userID.
func (s *Service) Unregister(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	return s.creds.Delete(ctx, userID)
}

// CurrentCaller resolves rawToken to its caller. Missing, invalid, expired and revoked
// tokens all yield ErrUnauthenticated.
func (s *Service) CurrentCaller(ctx context.Context, rawToken string) (*Caller, error) {
	if rawToken == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := parseToken([]byte(s.cfg.Secret), rawToken)
	if err != nil {
		s.log.Debug("token rejected", "error", err)
		return nil, ErrUnauthenticated
	}

	revoked, err := s.tokens.SessionRevoked(ctx, claims.Id)
	if err != nil {
		return nil, fmt.Errorf("check session revocation: %w", err)
	}
	if revoked {
		return nil, ErrUnauthenticated
	}
	revokedAt, ok, err := s.tokens.CallerRevokedAt(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("check caller revocation: %w", err)
	}
	if ok && claims.IssuedAtMs <= revokedAt.UnixMilli() {
		return nil, ErrUnauthenticated
	}

	return &Caller{
		ID:        claims.UserID,
		Email:     claims.Email,
		SessionID: claims.Id,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
		Session:   s.sessions.Resume(claims.Id, claims.UserID),
	}, nil
}

// Me returns the user record of caller.
func (s *Service) Me(ctx context.Context, caller *Caller) (*models.User, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	return s.users.Get(ctx, caller.ID)
}

// ResetPassword mails a one-time reset link. Unknown addresses succeed without sending
// anything so the endpoint does not reveal which emails are registered.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if err := utils.ValidateStruct(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return err
	}
	cred, err := s.creds.ByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token := uuid.NewString()
	if err := s.tokens.PutReset(ctx, token, cred.UserID, s.cfg.ResetTTL); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	link := resetLink(s.cfg.ResetURL, token)
	msg := mailer.Message{
		To:      cred.Email,
		Subject: "Reset your FixMyArea password",
		Text:    fmt.Sprintf("Use this link to choose a new password: %s\nIt expires in %s.", link, s.cfg.ResetTTL),
		HTML:    fmt.Sprintf(`<p>Use <a href="%s">this link</a> to choose a new password. It expires in %s.</p>`, link, s.cfg.ResetTTL),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ConfirmReset sets a new password using a reset token and signs the user out everywhere.
func (s *Service) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if err := utils.ValidateStruct(struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=6,max=72"`
	}{token, newPassword}); err != nil {
		return err
	}
	userID, ok, err := s.tokens.TakeReset(ctx, token)
	if err != nil {
		return fmt.Errorf("read reset token: %w", err)
	}
	if !ok {
		return models.Invalid("token", "reset token is invalid or expired")
	}

	var cred models.Credential
	if err := cred.SetPassword(newPassword); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.creds.UpdatePassword(ctx, userID, cred.PasswordHash); err != nil {
		return err
	}
	return s.EndSessions(ctx, userID)
}

func resetLink(base, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

var (
	_ UserStore       = (*repository.UserRepository)(nil)
	_ CredentialStore = (*repository.CredentialRepository)(nil)
)
