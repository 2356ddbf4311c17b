package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"identity-sessions/internal/apperr"
	"identity-sessions/internal/mail"
	"identity-sessions/internal/security"
	userdomain "identity-sessions/internal/user/domain"
)

var (
	loginPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// UserRepo is the slice of the user repository the account service needs.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByConfirmationCode(ctx context.Context, code string) (*userdomain.User, error)
	GetByRecoveryCode(ctx context.Context, code string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	Save(ctx context.Context, u *userdomain.User) error
}

// Profile is the authenticated user's own view of their account.
type Profile struct {
	Email  string
	Login  string
	UserID string
}

// AccountService implements registration, email confirmation, and password
// recovery. Email delivery is best effort: failures are logged and the
// operation still succeeds.
type AccountService struct {
	users           UserRepo
	hasher          *security.Hasher
	mailer          mail.Sender
	log             zerolog.Logger
	confirmationTTL time.Duration
	recoveryTTL     time.Duration
	now             func() time.Time
}

func NewAccountService(
	users UserRepo,
	hasher *security.Hasher,
	mailer mail.Sender,
	log zerolog.Logger,
	confirmationTTL, recoveryTTL time.Duration,
) *AccountService {
	return &AccountService{
		users:           users,
		hasher:          hasher,
		mailer:          mailer,
		log:             log,
		confirmationTTL: confirmationTTL,
		recoveryTTL:     recoveryTTL,
		now:             time.Now,
	}
}

// Register creates an unconfirmed user and sends a confirmation email.
func (s *AccountService) Register(ctx context.Context, login, email, password string) error {
	login = strings.TrimSpace(login)
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateLogin(login); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}

	if existing, err := s.users.GetByLoginOrEmail(ctx, login); err != nil {
		return err
	} else if existing != nil {
		return apperr.BadRequest("Login is already taken", "login")
	}
	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return err
	} else if existing != nil {
		return apperr.BadRequest("Email is already registered", "email")
	}

	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return err
	}
	now := s.now().UTC()
	user := userdomain.NewUser(login, email, hashed, now)
	user.ResetEmailConfirmation(now, s.confirmationTTL)
	if err := user.Validate(); err != nil {
		return err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}
	s.sendConfirmation(ctx, user)
	return nil
}

// ConfirmRegistration marks the account confirmed when the code is valid,
// unexpired, and not yet consumed.
func (s *AccountService) ConfirmRegistration(ctx context.Context, code string) error {
	if code == "" {
		return apperr.ConfirmationCodeInvalid("Confirmation code is not valid", "code")
	}
	user, err := s.users.GetByConfirmationCode(ctx, code)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.ConfirmationCodeInvalid("Confirmation code is not valid", "code")
	}
	if user.IsEmailConfirmed {
		return apperr.AlreadyConfirmed("Email is already confirmed", "code")
	}
	if !user.EmailConfirmation.Valid(s.now().UTC()) {
		return apperr.ConfirmationCodeInvalid("Confirmation code is not valid", "code")
	}
	user.ConfirmEmail()
	return s.users.Save(ctx, user)
}

// ResendConfirmation issues a fresh confirmation code, replacing any prior
// one, and emails it.
func (s *AccountService) ResendConfirmation(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.IsEmailConfirmed {
		return apperr.AlreadyConfirmed("Email is already confirmed or does not exist", "email")
	}
	user.ResetEmailConfirmation(s.now().UTC(), s.confirmationTTL)
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}
	s.sendConfirmation(ctx, user)
	return nil
}

// RecoverPassword emails a recovery code. Unknown emails succeed silently so
// the endpoint does not reveal which addresses are registered.
func (s *AccountService) RecoverPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	user.ResetPasswordRecovery(s.now().UTC(), s.recoveryTTL)
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}
	if err := s.mailer.SendRecoveryEmail(ctx, user.Email, user.PasswordRecovery.Code); err != nil {
		s.log.Warn().Err(err).Str("email", user.Email).Msg("failed to send recovery email")
	}
	return nil
}

// SetNewPassword replaces the password when the recovery code is valid,
// unexpired, and not yet consumed.
func (s *AccountService) SetNewPassword(ctx context.Context, recoveryCode, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if recoveryCode == "" {
		return apperr.ConfirmationCodeInvalid("Recovery code is not valid", "recoveryCode")
	}
	user, err := s.users.GetByRecoveryCode(ctx, recoveryCode)
	if err != nil {
		return err
	}
	if user == nil || !user.PasswordRecovery.Valid(s.now().UTC()) {
		return apperr.ConfirmationCodeInvalid("Recovery code is not valid", "recoveryCode")
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	user.SetPassword(hashed)
	return s.users.Save(ctx, user)
}

// Me returns the profile of the user identified by userID.
func (s *AccountService) Me(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.Unauthorized("Unauthorized", "")
	}
	return &Profile{Email: user.Email, Login: user.Login, UserID: user.ID}, nil
}

func (s *AccountService) sendConfirmation(ctx context.Context, user *userdomain.User) {
	if err := s.mailer.SendConfirmationEmail(ctx, user.Email, user.EmailConfirmation.Code); err != nil {
		s.log.Warn().Err(err).Str("email", user.Email).Msg("failed to send confirmation email")
	}
}

func validateLogin(login string) error {
	if len(login) < 3 || len(login) > 10 {
		return apperr.BadRequest("Login must be 3-10 characters", "login")
	}
	if !loginPattern.MatchString(login) {
		return apperr.BadRequest("Login may only contain letters, digits, underscore and dash", "login")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" || !emailPattern.MatchString(email) {
		return apperr.BadRequest("Invalid email format", "email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 20 {
		return apperr.BadRequest("Password must be 6-20 characters", "password")
	}
	return nil
}
