package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/blocklist"
	"github.com/Skotchmaster/elibrary/internal/hash"
	"github.com/Skotchmaster/elibrary/internal/logging"
	"github.com/Skotchmaster/elibrary/internal/mail"
	"github.com/Skotchmaster/elibrary/internal/models"
	"github.com/Skotchmaster/elibrary/internal/mykafka"
	"github.com/Skotchmaster/elibrary/internal/tokens"
	"github.com/Skotchmaster/elibrary/internal/util"
)

type UserService struct {
	DB        *gorm.DB
	Codec     *tokens.Codec
	Blocklist *blocklist.Blocklist
	Mailer    *mail.Mailer
	Producer  *mykafka.Producer

	SuperadminEmails []string
	Domain           string
}

type SignupData struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type LoginResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

func (s *UserService) summary(u *models.User) tokens.UserSummary {
	return tokens.UserSummary{Email: u.Email, UID: u.UID, Role: u.Role}
}

func (s *UserService) isSuperadminEmail(email string) bool {
	for _, e := range s.SuperadminEmails {
		if e == email {
			return true
		}
	}
	return false
}

func (s *UserService) GetByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with email %s: %w", email, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

func (s *UserService) GetByUID(uid string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("uid = ?", uid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", uid, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

// Create registers a new account. Emails on the superadmin allowlist are
// promoted right away; everyone else starts as a plain user. A verification
// email task is dispatched fire-and-forget.
func (s *UserService) Create(ctx context.Context, data SignupData) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.create")

	if data.Email == "" || data.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", apperr.ErrValidation)
	}

	if _, err := s.GetByEmail(data.Email); err == nil {
		l.Warn("signup rejected", "reason", "email taken")
		return nil, fmt.Errorf("user with email already exists: %w", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	pwHash, err := hash.HashPassword(data.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     data.Username,
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		Email:        data.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if s.isSuperadminEmail(user.Email) {
		user.Role = models.RoleSuperadmin
	}

	if err := s.DB.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.sendVerificationEmail(ctx, &user)

	event := map[string]interface{}{"type": "user_registered", "user_uid": user.UID, "email": user.Email}
	if err := s.Producer.PublishEvent(ctx, "user_events", user.UID, event); err != nil {
		l.Warn("kafka publish error", "error", err)
	}

	l.Info("user created", "user_uid", user.UID, "role", user.Role)
	return &user, nil
}

func (s *UserService) sendVerificationEmail(ctx context.Context, user *models.User) {
	token, err := s.Codec.IssueVerification(s.summary(user))
	if err != nil {
		logging.FromContext(ctx).Warn("verification token not issued", "error", err)
		return
	}
	link := fmt.Sprintf("%s/api/v1/auth/verify?token=%s", s.Domain, token)
	if err := s.Mailer.Send(ctx, mail.Message{
		Recipients: []string{user.Email},
		Subject:    "Verify your email",
		Template:   "verify_email",
		Vars:       map[string]string{"first_name": user.FirstName, "link": link},
	}); err != nil {
		logging.FromContext(ctx).Warn("verification email not dispatched", "error", err)
	}
}

// Authenticate checks credentials only; role promotion is a separate,
// explicit step so the mutation is visible in the login flow.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("user does not exist, signup to login: %w", apperr.ErrNotFound)
		}
		return nil, err
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, fmt.Errorf("invalid password: %w", apperr.ErrAuthentication)
	}

	return user, nil
}

// PromoteIfAllowlisted elevates an allowlisted account to superadmin and
// persists the change immediately. Returns whether a promotion happened.
func (s *UserService) PromoteIfAllowlisted(ctx context.Context, user *models.User) (bool, error) {
	if user.Role == models.RoleSuperadmin || !s.isSuperadminEmail(user.Email) {
		return false, nil
	}
	user.Role = models.RoleSuperadmin
	if err := s.DB.Model(user).Update("role", models.RoleSuperadmin).Error; err != nil {
		return false, fmt.Errorf("promote user: %w", err)
	}
	logging.FromContext(ctx).Info("allowlist promotion", "user_uid", user.UID)
	return true, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "users.login", "email", email)

	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		l.Warn("login failed", "error", err)
		return nil, err
	}

	// Post-authentication allowlist check, persisted before tokens are cut
	// so the role claim matches the stored role.
	if _, err := s.PromoteIfAllowlisted(ctx, user); err != nil {
		return nil, err
	}

	accessToken, err := s.Codec.IssueAccess(s.summary(user))
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.Codec.IssueRefresh(s.summary(user))
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	event := map[string]interface{}{"type": "user_logged_in", "user_uid": user.UID}
	if err := s.Producer.PublishEvent(ctx, "user_events", user.UID, event); err != nil {
		l.Warn("kafka publish error", "error", err)
	}

	return &LoginResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// RevokeSession puts the access token's jti (and the refresh token's, when
// one is supplied and parseable) on the blocklist. Logout exists to
// guarantee revocation, so a registry outage here is surfaced as
// ServiceUnavailable instead of being swallowed like on the read path.
func (s *UserService) RevokeSession(ctx context.Context, access *tokens.Claims, refreshRaw string) error {
	now := time.Now()

	if err := s.Blocklist.Revoke(ctx, access.ID, access.RemainingTTL(now)); err != nil {
		return fmt.Errorf("revocation registry unreachable: %w", apperr.ErrServiceUnavailable)
	}

	if refreshRaw != "" {
		if refresh, err := s.Codec.Decode(refreshRaw); err == nil {
			if err := s.Blocklist.Revoke(ctx, refresh.ID, refresh.RemainingTTL(now)); err != nil {
				return fmt.Errorf("revocation registry unreachable: %w", apperr.ErrServiceUnavailable)
			}
		}
	}

	return nil
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.Codec.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("invalid or expired verification link: %w", apperr.ErrAuthentication)
	}
	if !claims.Verification {
		return nil, fmt.Errorf("not a verification token: %w", apperr.ErrAuthentication)
	}

	user, err := s.GetByEmail(claims.User.Email)
	if err != nil {
		return nil, err
	}

	if !user.IsVerified {
		if err := s.DB.Model(user).Update("is_verified", true).Error; err != nil {
			return nil, fmt.Errorf("verify user: %w", err)
		}
		user.IsVerified = true
	}
	return user, nil
}

// ForgotPassword always reports success to the caller; whether the email
// exists must not be observable from the outside.
func (s *UserService) ForgotPassword(ctx context.Context, email string) {
	user, err := s.GetByEmail(email)
	if err != nil {
		logging.FromContext(ctx).Info("password reset for unknown email", "email", email)
		return
	}

	token, err := s.Codec.IssuePasswordReset(s.summary(user))
	if err != nil {
		logging.FromContext(ctx).Warn("reset token not issued", "error", err)
		return
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.Domain, token)
	if err := s.Mailer.Send(ctx, mail.Message{
		Recipients: []string{user.Email},
		Subject:    "Reset your password",
		Template:   "password_reset",
		Vars:       map[string]string{"first_name": user.FirstName, "link": link},
	}); err != nil {
		logging.FromContext(ctx).Warn("reset email not dispatched", "error", err)
	}
}

func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password is required: %w", apperr.ErrValidation)
	}

	claims, err := s.Codec.Decode(token)
	if err != nil {
		return fmt.Errorf("invalid or expired reset link: %w", apperr.ErrAuthentication)
	}
	if claims.Refresh || claims.Verification {
		return fmt.Errorf("not a password reset token: %w", apperr.ErrAuthentication)
	}

	user, err := s.GetByEmail(claims.User.Email)
	if err != nil {
		return err
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.DB.Model(user).Update("password_hash", pwHash).Error
}

func (s *UserService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if !hash.CheckPassword(user.PasswordHash, oldPassword) {
		return fmt.Errorf("current password is wrong: %w", apperr.ErrAuthentication)
	}
	if newPassword == "" {
		return fmt.Errorf("new password is required: %w", apperr.ErrValidation)
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.DB.Model(user).Update("password_hash", pwHash).Error
}

type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, update ProfileUpdate) (*models.User, error) {
	fields := map[string]interface{}{}
	if update.Username != nil {
		fields["username"] = *update.Username
	}
	if update.FirstName != nil {
		fields["first_name"] = *update.FirstName
	}
	if update.LastName != nil {
		fields["last_name"] = *update.LastName
	}
	if len(fields) == 0 {
		return user, nil
	}
	if err := s.DB.Model(user).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.GetByUID(user.UID)
}

func (s *UserService) ListUsers(page, size int) ([]models.User, int64, error) {
	var total int64
	if err := s.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	from, limit := util.Calculate(page, size)
	if err := s.DB.Order("created_at DESC").Offset(from).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// MakeAdmin grants the admin role. Superadmin-only at the route level.
func (s *UserService) MakeAdmin(ctx context.Context, email string) (*models.User, error) {
	user, err := s.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return nil, fmt.Errorf("user already has admin access: %w", apperr.ErrConflict)
	}
	if user.Role == models.RoleSuperadmin {
		return nil, fmt.Errorf("cannot change a superadmin role: %w", apperr.ErrConflict)
	}

	if err := s.DB.Model(user).Update("role", models.RoleAdmin).Error; err != nil {
		return nil, fmt.Errorf("grant admin: %w", err)
	}
	user.Role = models.RoleAdmin
	logging.FromContext(ctx).Info("admin granted", "user_uid", user.UID)
	return user, nil
}

func (s *UserService) RevokeAdmin(ctx context.Context, email string) (*models.User, error) {
	user, err := s.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAdmin {
		return nil, fmt.Errorf("user does not have admin access: %w", apperr.ErrConflict)
	}

	if err := s.DB.Model(user).Update("role", models.RoleUser).Error; err != nil {
		return nil, fmt.Errorf("revoke admin: %w", err)
	}
	user.Role = models.RoleUser
	logging.FromContext(ctx).Info("admin revoked", "user_uid", user.UID)
	return user, nil
}
