package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
}

// LoadOptions selects which child lists a section is loaded with. A list
// that is not requested, or that does not match the section's kind, is
// left unloaded.
type LoadOptions struct {
	Tasks       bool
	Subsections bool
}

var (
	LoadNone        = LoadOptions{}
	LoadTasks       = LoadOptions{Tasks: true}
	LoadSubsections = LoadOptions{Subsections: true}
	LoadAll         = LoadOptions{Tasks: true, Subsections: true}
)

// SectionRepository persists sections and the ordering of their children
type SectionRepository interface {
	// Create stores a new section row. Its position among siblings is
	// written when the parent is updated.
	Create(ctx context.Context, section *entities.Section) error
	GetByID(ctx context.Context, id uuid.UUID, opts LoadOptions) (*entities.Section, error)
	GetRoot(ctx context.Context, userID uuid.UUID) (*entities.Section, error)
	// ListByUser returns every section of a user with unloaded children,
	// ordered by parent then position.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Section, error)
	// Update writes the section row and the positions of its loaded
	// children.
	Update(ctx context.Context, section *entities.Section) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TaskRepository persists tasks with their attachments
type TaskRepository interface {
	// Save inserts or updates a task and syncs its attachment list. It
	// does not touch the task's position.
	Save(ctx context.Context, task *entities.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter TaskFilter) ([]*entities.Task, error)
}

// ErrRefreshTokenNotFound is returned for unknown refresh token hashes
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// AuthRepository defines the interface for refresh token storage
type AuthRepository interface {
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
}

// Repositories bundles the repositories bound to one unit of work
type Repositories struct {
	Users    UserRepository
	Sections SectionRepository
	Tasks    TaskRepository
	Auth     AuthRepository
}

// Transactor runs fn against repositories sharing one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// TaskFilter narrows task listings. Zero values do not filter.
type TaskFilter struct {
	UserID      uuid.UUID
	SectionID   *uuid.UUID
	IsArchived  *bool
	DueNotAfter *time.Time
	Search      *string
	Limit       int
	Offset      int
}

// RefreshToken represents a refresh token record
type RefreshToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"token_hash" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at" db:"revoked_at"`
}

// IsExpired checks if the refresh token is expired at now
func (rt *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(rt.ExpiresAt)
}

// IsRevoked checks if the refresh token is revoked
func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}
