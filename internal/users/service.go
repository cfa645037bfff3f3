// Package users implements account registration and login. Accounts are not
// kept in a table: each registration is a Register block on the ledger and
// the most recent one for a user id is authoritative.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// chain is the ledger surface consumed by UserService, satisfied by *ledger.Ledger.
type chain interface {
	Append(ctx context.Context, actionType, reportID, actor string, data map[string]any) (ledger.Block, error)
	ResolveUser(userID string) (map[string]any, error)
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	UserID     string
	Password   string
	Role       string
	DeviceHash string
}

// UserService implements business logic for user accounts.
type UserService struct {
	chain  chain
	cost   int
	logger *zap.Logger
}

// NewUserService creates a new UserService.
func NewUserService(c chain, logger *zap.Logger) *UserService {
	return &UserService{chain: c, cost: bcrypt.DefaultCost, logger: logger}
}

// SetHashCost overrides the bcrypt cost used for new registrations.
func (s *UserService) SetHashCost(cost int) {
	s.cost = cost
}

// Register appends a Register block for in.UserID. Registering an existing
// id again is allowed and supersedes the earlier password, role, and device.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.UserID == "" || in.Password == "" {
		return nil, ErrMissingCredentials
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		UserID:       in.UserID,
		PasswordHash: string(hash),
		Role:         role,
		DeviceHash:   in.DeviceHash,
	}
	if _, err := s.chain.Append(ctx, ledger.ActionRegister, "", "System", u.payload()); err != nil {
		return nil, fmt.Errorf("record registration: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.UserID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login checks password and device binding against the current registration.
func (s *UserService) Login(ctx context.Context, userID, password, deviceHash string) (*User, error) {
	u, err := s.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if u.DeviceHash != "" && deviceHash != u.DeviceHash {
		s.logger.Warn("login from unrecognized device", zap.String("user_id", userID))
		return nil, ErrUnrecognizedDevice
	}
	return u, nil
}

// Lookup returns the current registration of userID.
func (s *UserService) Lookup(_ context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	data, err := s.chain.ResolveUser(userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return userFromPayload(data), nil
}
