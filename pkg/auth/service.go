package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/tendant/simple-authcore/pkg/domain"
)

// Operation names a state machine operation.
type Operation string

const (
	OpRegister           Operation = "register"
	OpLogin              Operation = "login"
	OpLoginFederated     Operation = "login_federated"
	OpLogout             Operation = "logout"
	OpAuthenticate       Operation = "authenticate"
	OpGetProfile         Operation = "get_profile"
	OpUpdateProfile      Operation = "update_profile"
	OpDeleteProfile      Operation = "delete_profile"
	OpSendRecoveryCode   Operation = "send_recovery_code"
	OpVerifyRecoveryCode Operation = "verify_recovery_code"
	OpResetPassword      Operation = "reset_password"
	OpIssueSession       Operation = "issue_session"
)

// Error codes attached to internal faults.
const (
	CodeStoreFailed   = "ACCOUNT_STORE_FAILED"
	CodeHashFailed    = "PASSWORD_HASH_FAILED"
	CodeTokenFailed   = "TOKEN_ISSUE_FAILED"
	CodeNotifyFailed  = "RECOVERY_NOTIFY_FAILED"
	CodeNotConfigured = "PROVIDER_NOT_CONFIGURED"
)

// RecoveryEmailTitle is the subject line of recovery code messages.
const RecoveryEmailTitle = "Your Password Reset OTP"

// RegisterInput is the payload for Register. Username is optional.
type RegisterInput struct {
	Name     string
	Email    string
	Username string
	Password string
}

// LoginInput is the payload for Login. Identifier is an email or a username.
type LoginInput struct {
	Identifier string
	Password   string
}

// ProfileUpdate carries the profile fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Avatar *string
}

// ServiceConfig holds the tunables of the state machine.
type ServiceConfig struct {
	Lifetimes        Lifetimes
	RecoveryCodeTTL  time.Duration
	GoogleAudience   string
	DefaultAvatarURL string
	Validator        *InputValidator
}

// Dependencies are the collaborators injected into the Service.
type Dependencies struct {
	Store    AccountStore
	Hasher   Hasher
	Tokens   *TokenIssuer
	Notifier Notifier
	Identity IdentityProvider // optional; federated login fails without it
	Observer Observer         // optional
	Logger   *slog.Logger     // optional
}

type rehasher interface {
	NeedsRehash(encoded string) bool
}

// Service implements the account authentication and recovery operations.
// It keeps no per-session state; every call is independent.
type Service struct {
	store      AccountStore
	hasher     Hasher
	tokens     *TokenIssuer
	notifier   Notifier
	identity   IdentityProvider
	observer   Observer
	logger     *slog.Logger
	codes      *CodeManager
	reconciler *IdentityReconciler
	validator  *InputValidator
	config     ServiceConfig
}

// NewService creates the auth service.
func NewService(cfg ServiceConfig, deps Dependencies) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("auth: account store is required")
	case deps.Hasher == nil:
		return nil, errors.New("auth: hasher is required")
	case deps.Tokens == nil:
		return nil, errors.New("auth: token issuer is required")
	case deps.Notifier == nil:
		return nil, errors.New("auth: notifier is required")
	}

	cfg.Lifetimes = cfg.Lifetimes.withDefaults()
	if cfg.RecoveryCodeTTL <= 0 {
		cfg.RecoveryCodeTTL = DefaultRecoveryCodeTTL
	}
	if cfg.Validator == nil {
		cfg.Validator = &InputValidator{Policy: DefaultPasswordPolicy()}
	}

	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:      deps.Store,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		notifier:   deps.Notifier,
		identity:   deps.Identity,
		observer:   observer,
		logger:     logger,
		codes:      NewCodeManager(deps.Store, deps.Hasher, cfg.RecoveryCodeTTL),
		reconciler: NewIdentityReconciler(deps.Store, deps.Tokens, cfg.Lifetimes.FederatedLogin),
		validator:  cfg.Validator,
		config:     cfg,
	}, nil
}

// Lifetimes returns the effective per-flow session lifetimes.
func (s *Service) Lifetimes() Lifetimes {
	return s.config.Lifetimes
}

// Register creates a password account. No session is issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validator.ValidateRegistration(in); err != nil {
		return nil, s.finish(OpRegister, domain.StateUnauthenticated, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.finish(OpRegister, domain.StateUnauthenticated, oops.Code(CodeHashFailed).Wrap(err))
	}

	account := &domain.Account{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         SanitizeName(in.Name),
		PasswordHash: &hash,
	}
	if in.Username != "" {
		username := in.Username
		account.Username = &username
	}
	if s.config.DefaultAvatarURL != "" {
		avatar := s.config.DefaultAvatarURL
		account.Avatar = &avatar
	}

	if err := s.store.Create(ctx, account); err != nil {
		return nil, s.finish(OpRegister, domain.StateUnauthenticated, err)
	}

	s.logger.Info("user registered", "account_id", account.ID)
	return account, s.finish(OpRegister, domain.StateUnauthenticated, nil)
}

// Login authenticates with an email or username and a password.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := s.validator.ValidateLogin(in); err != nil {
		return nil, s.finish(OpLogin, domain.StateUnauthenticated, err)
	}

	identifier := strings.TrimSpace(in.Identifier)
	if IsEmail(identifier) {
		identifier = NormalizeEmail(identifier)
	}

	account, err := s.store.FindByEmailOrUsername(ctx, identifier)
	if err != nil {
		return nil, s.finish(OpLogin, domain.StateUnauthenticated, err)
	}

	// Federated-only accounts have no password to match.
	if !account.HasPassword() || !s.hasher.Verify(in.Password, *account.PasswordHash) {
		return nil, s.finish(OpLogin, domain.StateUnauthenticated, domain.ErrInvalidCredentials)
	}

	s.rehash(ctx, account, in.Password)

	session, err := s.issue(account, s.config.Lifetimes.PasswordLogin)
	if err != nil {
		return nil, s.finish(OpLogin, domain.StateUnauthenticated, err)
	}

	s.logger.Info("user logged in", "account_id", account.ID, "method", "password")
	return session, s.finish(OpLogin, domain.StateAuthenticated, nil)
}

// rehash upgrades a stored hash produced with outdated parameters. Failures
// are logged and do not affect the login.
func (s *Service) rehash(ctx context.Context, account *domain.Account, password string) {
	r, ok := s.hasher.(rehasher)
	if !ok || !r.NeedsRehash(*account.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		_, err = s.store.UpdateByID(ctx, account.ID, domain.AccountUpdate{PasswordHash: &hash})
	}
	if err != nil {
		s.logger.Warn("failed to upgrade password hash", "error", err, "account_id", account.ID)
		return
	}
	account.PasswordHash = &hash
}

// LoginFederated verifies a provider ID token and signs the matching account
// in, creating it on first use. created reports whether an account was made.
func (s *Service) LoginFederated(ctx context.Context, idToken string) (session *Session, created bool, err error) {
	if s.identity == nil {
		err = oops.Code(CodeNotConfigured).Errorf("federated login is not configured")
		return nil, false, s.finish(OpLoginFederated, domain.StateUnauthenticated, err)
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, false, s.finish(OpLoginFederated, domain.StateUnauthenticated, domain.ErrInvalidToken)
	}

	identity, err := s.identity.Verify(ctx, idToken, s.config.GoogleAudience)
	if err != nil {
		s.logger.Debug("identity token rejected", "error", err)
		return nil, false, s.finish(OpLoginFederated, domain.StateUnauthenticated, domain.ErrInvalidToken)
	}
	if !identity.EmailVerified {
		return nil, false, s.finish(OpLoginFederated, domain.StateUnauthenticated,
			fmt.Errorf("%w: email not verified by provider", domain.ErrInvalidToken))
	}

	session, created, err = s.reconciler.Reconcile(ctx, identity)
	if err != nil {
		return nil, false, s.finish(OpLoginFederated, domain.StateUnauthenticated, err)
	}

	s.logger.Info("user logged in", "account_id", session.Account.ID, "method", domain.ProviderGoogle, "created", created)
	return session, created, s.finish(OpLoginFederated, domain.StateAuthenticated, nil)
}

// Logout ends a session. Tokens are stateless, so the client discarding the
// token is the whole effect; an already-invalid token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if id, err := s.tokens.Verify(token); err == nil {
		s.logger.Info("user logged out", "account_id", id)
	}
	return s.finish(OpLogout, domain.StateUnauthenticated, nil)
}

// Authenticate resolves a session token to an account ID.
func (s *Service) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return uuid.Nil, s.finish(OpAuthenticate, domain.StateUnauthenticated, err)
	}
	return id, s.finish(OpAuthenticate, domain.StateAuthenticated, nil)
}

// IssueSession signs a general session for an existing account using the
// default lifetime. Embedders use it after their own verification steps.
func (s *Service) IssueSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.finish(OpIssueSession, domain.StateUnauthenticated, err)
	}
	session, err := s.issue(account, 0)
	if err != nil {
		return nil, s.finish(OpIssueSession, domain.StateUnauthenticated, err)
	}
	return session, s.finish(OpIssueSession, domain.StateAuthenticated, nil)
}

// GetProfile returns the account behind an authenticated session.
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.finish(OpGetProfile, domain.StateAuthenticated, err)
	}
	return account, s.finish(OpGetProfile, domain.StateAuthenticated, nil)
}

// UpdateProfile changes name, email or avatar.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileUpdate) (*domain.Account, error) {
	if err := s.validator.ValidateProfileUpdate(in); err != nil {
		return nil, s.finish(OpUpdateProfile, domain.StateAuthenticated, err)
	}

	var update domain.AccountUpdate
	if in.Name != nil {
		name := SanitizeName(*in.Name)
		update.Name = &name
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		update.Email = &email
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		update.Avatar = &avatar
	}

	account, err := s.store.UpdateByID(ctx, id, update)
	if err != nil {
		return nil, s.finish(OpUpdateProfile, domain.StateAuthenticated, err)
	}

	s.logger.Info("profile updated", "account_id", id)
	return account, s.finish(OpUpdateProfile, domain.StateAuthenticated, nil)
}

// DeleteProfile permanently removes the account. Outstanding tokens stay
// verifiable until they expire but no longer resolve to a profile.
func (s *Service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return s.finish(OpDeleteProfile, domain.StateAuthenticated, err)
	}
	s.logger.Info("account deleted", "account_id", id)
	return s.finish(OpDeleteProfile, domain.StateUnauthenticated, nil)
}

// SendRecoveryCode issues a recovery code and mails it to the account. If
// delivery fails the code is still stored and valid.
func (s *Service) SendRecoveryCode(ctx context.Context, email string) error {
	if err := s.validator.ValidateRecovery(email, "", "", false, false); err != nil {
		return s.finish(OpSendRecoveryCode, domain.StateUnauthenticated, err)
	}

	account, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return s.finish(OpSendRecoveryCode, domain.StateUnauthenticated, err)
	}

	code, err := s.codes.Issue(ctx, account)
	if err != nil {
		return s.finish(OpSendRecoveryCode, domain.StateUnauthenticated, err)
	}

	subject, body := RecoveryEmail(code, s.codes.TTL())
	if err := s.notifier.Send(ctx, account.Email, subject, body); err != nil {
		err = oops.Code(CodeNotifyFailed).With("account_id", account.ID.String()).Wrap(err)
		return s.finish(OpSendRecoveryCode, domain.StateRecoveryInProgress, err)
	}

	s.logger.Info("recovery code sent", "account_id", account.ID)
	return s.finish(OpSendRecoveryCode, domain.StateRecoveryInProgress, nil)
}

// VerifyRecoveryCode checks a recovery code without consuming it.
func (s *Service) VerifyRecoveryCode(ctx context.Context, email, code string) error {
	if err := s.validator.ValidateRecovery(email, code, "", true, false); err != nil {
		return s.finish(OpVerifyRecoveryCode, domain.StateUnauthenticated, err)
	}

	account, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return s.finish(OpVerifyRecoveryCode, domain.StateUnauthenticated, err)
	}

	if !s.codes.Verify(account, code) {
		return s.finish(OpVerifyRecoveryCode, domain.StateUnauthenticated, domain.ErrInvalidOrExpiredCode)
	}
	return s.finish(OpVerifyRecoveryCode, domain.StateRecoveryInProgress, nil)
}

// ResetPassword consumes a recovery code and replaces the password. The
// caller must log in again afterwards.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.validator.ValidateRecovery(email, code, newPassword, true, true); err != nil {
		return s.finish(OpResetPassword, domain.StateUnauthenticated, err)
	}

	account, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return s.finish(OpResetPassword, domain.StateUnauthenticated, err)
	}

	if err := s.codes.Consume(ctx, account, code, newPassword); err != nil {
		return s.finish(OpResetPassword, domain.StateUnauthenticated, err)
	}

	s.logger.Info("password reset", "account_id", account.ID)
	return s.finish(OpResetPassword, domain.StateUnauthenticated, nil)
}

// RecoveryEmail renders the subject and body of a recovery code message.
func RecoveryEmail(code string, ttl time.Duration) (subject, body string) {
	return RecoveryEmailTitle, fmt.Sprintf("Your OTP for password reset is: %s. It expires in %d minutes.", code, int(ttl.Minutes()))
}

func (s *Service) issue(account *domain.Account, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = s.config.Lifetimes.Default
	}
	token, expiresAt, err := s.tokens.Issue(account.ID, ttl)
	if err != nil {
		return nil, oops.Code(CodeTokenFailed).Wrap(err)
	}
	return &Session{Account: account, Token: token, ExpiresAt: expiresAt, TTL: ttl}, nil
}

// finish reports the outcome to the observer and tags unclassified failures
// as internal store faults.
func (s *Service) finish(op Operation, state domain.AuthState, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		if _, ok := oops.AsOops(err); !ok {
			err = oops.Code(CodeStoreFailed).With("operation", string(op)).Wrap(err)
		}
	}
	s.observer.ObserveTransition(op, state, kind)
	return err
}
