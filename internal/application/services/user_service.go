package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

// UserService handles user-related operations
type UserService struct {
	tx     ports.Transactor
	clock  entities.Clock
	ids    entities.IDGenerator
	logger *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(tx ports.Transactor, clock entities.Clock, ids entities.IDGenerator, logger *logger.Logger) *UserService {
	return &UserService{
		tx:     tx,
		clock:  clock,
		ids:    ids,
		logger: logger.WithComponent("users"),
	}
}

// CreateUser creates a user together with its root section
func (s *UserService) CreateUser(ctx context.Context, email, password string) (*entities.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		ID:           s.ids.NewID(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.clock.Now(),
	}

	var root *entities.Section
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		_, err := repos.Users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", entities.ErrEmailTaken, email)
		case !errors.Is(err, entities.ErrUserNotFound):
			return fmt.Errorf("failed to look up user: %w", err)
		}

		if err := repos.Users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		root, _, err = createRoot(ctx, repos, user.ID, s.clock, s.ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User created successfully", "user_id", user.ID, "email", user.Email, "root_section_id", root.ID)

	// Remove password hash from response
	user.PasswordHash = ""
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	var user *entities.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		user, err = repos.Users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// authenticate checks an email and password pair
func (s *UserService) authenticate(ctx context.Context, email, password string) (*entities.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user *entities.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		user, err = repos.Users.GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, entities.ErrUserNotFound) {
		s.logger.Warn("Login attempt with non-existent email", "email", email)
		return nil, entities.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Login attempt with invalid password", "email", email, "user_id", user.ID)
		return nil, entities.ErrInvalidCredentials
	}
	return user, nil
}
