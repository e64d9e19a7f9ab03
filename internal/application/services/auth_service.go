package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

// Token errors
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService handles authentication operations
type AuthService struct {
	users     *UserService
	tx        ports.Transactor
	jwtConfig config.JWTConfig
	clock     entities.Clock
	logger    *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(users *UserService, tx ports.Transactor, jwtConfig config.JWTConfig, clock entities.Clock, logger *logger.Logger) *AuthService {
	return &AuthService{
		users:     users,
		tx:        tx,
		jwtConfig: jwtConfig,
		clock:     clock,
		logger:    logger.WithComponent("auth"),
	}
}

// Register creates a new account with its root section and signs it in
func (s *AuthService) Register(ctx context.Context, req ports.RegisterRequest) (*ports.AuthResponse, error) {
	user, err := s.users.CreateUser(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return s.issue(ctx, user)
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, req ports.LoginRequest) (*ports.AuthResponse, error) {
	user, err := s.users.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID, "email", user.Email)
	return s.issue(ctx, user)
}

// RefreshToken exchanges a refresh token for a new token pair. The old
// refresh token is revoked.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*ports.AuthResponse, error) {
	tokenHash := hashToken(refreshToken)

	var user *entities.User
	var pair *ports.AuthResponse
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		storedToken, err := repos.Auth.GetRefreshToken(ctx, tokenHash)
		if err != nil {
			return ErrInvalidToken
		}
		if storedToken.IsExpired(s.clock.Now()) {
			return ErrRefreshTokenExpired
		}
		if storedToken.IsRevoked() {
			return ErrRefreshTokenRevoked
		}

		if user, err = repos.Users.GetByID(ctx, storedToken.UserID); err != nil {
			return fmt.Errorf("user not found: %w", err)
		}
		if err := repos.Auth.RevokeRefreshToken(ctx, tokenHash); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		pair, err = s.tokens(ctx, repos, user)
		return err
	})
	if err != nil {
		s.logger.LogSecurityEvent("refresh_rejected", "", "", map[string]interface{}{"reason": err.Error()})
		return nil, err
	}
	return pair, nil
}

// Logout revokes all refresh tokens for a user
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		return repos.Auth.RevokeAllUserTokens(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}

	s.logger.Info("User logged out successfully", "user_id", userID)
	return nil
}

// ValidateToken validates a JWT token and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*ports.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtConfig.Secret), nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithIssuer(s.jwtConfig.Issuer))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &ports.Claims{
		UserID: claims.UserID,
		Email:  claims.Email,
	}, nil
}

func (s *AuthService) issue(ctx context.Context, user *entities.User) (*ports.AuthResponse, error) {
	var pair *ports.AuthResponse
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		pair, err = s.tokens(ctx, repos, user)
		return err
	})
	return pair, err
}

func (s *AuthService) tokens(ctx context.Context, repos ports.Repositories, user *entities.User) (*ports.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, repos.Auth, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	// Remove password hash from response
	user.PasswordHash = ""

	return &ports.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtConfig.ExpiresIn.Seconds()),
		User:         user,
	}, nil
}

func (s *AuthService) generateAccessToken(user *entities.User) (string, error) {
	now := s.clock.Now()
	claims := &Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtConfig.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.jwtConfig.Issuer,
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtConfig.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (s *AuthService) generateRefreshToken(ctx context.Context, authRepo ports.AuthRepository, userID uuid.UUID) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)

	expiresAt := s.clock.Now().Add(s.jwtConfig.RefreshExpiresIn)
	if err := authRepo.CreateRefreshToken(ctx, userID, hashToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return token, nil
}

// hashToken hashes a refresh token for storage
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
