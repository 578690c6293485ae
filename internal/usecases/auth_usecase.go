package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const (
	SessionTTL          = 24 * time.Hour
	SessionRefreshAfter = 15 * time.Minute
)

var errInvalidCredentials = &entities.Error{Code: entities.EUnauthorized, Msg: "invalid email or password"}

// SessionClaims is the payload of the session JWT.
type SessionClaims struct {
	UserID    int64  `json:"user_id"`
	AdminRole string `json:"admin_role"`
	jwt.RegisteredClaims
}

type AuthUsecase struct {
	users     interfaces.UserStore
	journey   *JourneyService
	jwtSecret []byte
	trialDays int
	clock     clock.Clock
	log       *zap.Logger
}

func NewAuthUsecase(users interfaces.UserStore, journey *JourneyService, secret string, trialDays int, clk clock.Clock, log *zap.Logger) *AuthUsecase {
	if trialDays < 1 {
		trialDays = entities.DefaultTrialDays
	}
	return &AuthUsecase{
		users:     users,
		journey:   journey,
		jwtSecret: []byte(secret),
		trialDays: trialDays,
		clock:     clk,
		log:       log,
	}
}

// Register creates a trial account and seeds its journey.
func (uc *AuthUsecase) Register(ctx context.Context, in entities.RegisterInput) (*entities.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = entities.RoleIndividual
	}
	user := &entities.User{
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash:  string(hashed),
		Name:          in.Name,
		Company:       in.Company,
		Role:          role,
		AdminRole:     entities.AdminRoleUser,
		Permissions:   []string{},
		AccountStatus: entities.StatusTrial,
		TrialEndsAt:   uc.clock.Now().AddDate(0, 0, uc.trialDays),
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := uc.journey.Initialize(ctx, user.ID); err != nil {
		uc.log.Warn("Failed to initialize journey", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	uc.log.Info("User registered", zap.Int64("user_id", user.ID), zap.Time("trial_ends_at", user.TrialEndsAt))
	return user, nil
}

func (uc *AuthUsecase) Login(ctx context.Context, email, password string) (*entities.User, error) {
	user, err := uc.users.GetByEmail(ctx, email)
	if errors.Is(err, entities.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}

	now := uc.clock.Now()
	if err := uc.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		uc.log.Warn("Failed to record last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now
	return user, nil
}

func (uc *AuthUsecase) Me(ctx context.Context, userID int64) (*entities.User, error) {
	return uc.users.GetByID(ctx, userID)
}

func (uc *AuthUsecase) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return &entities.Error{Code: entities.EInvalid, Msg: "current password is incorrect"}
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return uc.users.UpdatePassword(ctx, userID, string(hashed))
}

// EnsureMasterAdmin creates the master admin if the email is unknown, or promotes it.
func (uc *AuthUsecase) EnsureMasterAdmin(ctx context.Context, email, password string) error {
	user, err := uc.users.GetByEmail(ctx, email)
	if err == nil {
		if user.AdminRole == entities.AdminRoleMaster {
			return nil
		}
		if err := uc.users.UpdateAdminRole(ctx, user.ID, entities.AdminRoleMaster); err != nil {
			return err
		}
		if user.AccountStatus != entities.StatusActive {
			return uc.users.UpdateStatus(ctx, user.ID, entities.StatusActive)
		}
		return nil
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return err
	}
	if password == "" {
		return fmt.Errorf("master admin %s does not exist and no password is configured", email)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &entities.User{
		Email:         strings.ToLower(email),
		PasswordHash:  string(hashed),
		Name:          "Master Admin",
		Role:          entities.RoleIndividual,
		AdminRole:     entities.AdminRoleMaster,
		Permissions:   []string{},
		AccountStatus: entities.StatusActive,
		TrialEndsAt:   uc.clock.Now(),
	}
	if err := uc.users.Create(ctx, admin); err != nil {
		return err
	}
	if err := uc.journey.Initialize(ctx, admin.ID); err != nil {
		uc.log.Warn("Failed to initialize journey", zap.Int64("user_id", admin.ID), zap.Error(err))
	}
	uc.log.Info("Master admin created", zap.String("email", admin.Email))
	return nil
}

// IssueToken signs a session token for user valid for SessionTTL.
func (uc *AuthUsecase) IssueToken(user *entities.User) (string, error) {
	now := uc.clock.Now()
	claims := SessionClaims{
		UserID:    user.ID,
		AdminRole: user.AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a session token against the injected clock.
func (uc *AuthUsecase) ParseToken(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	keyFunc := func(*jwt.Token) (interface{}, error) { return uc.jwtSecret, nil }
	_, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(uc.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, &entities.Error{Code: entities.EUnauthorized, Msg: "invalid or expired session", Err: err}
	}
	return claims, nil
}

// NeedsRefresh reports whether the session should be re-issued to slide its expiry.
func (uc *AuthUsecase) NeedsRefresh(claims *SessionClaims) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return uc.clock.Now().Sub(claims.IssuedAt.Time) > SessionRefreshAfter
}
