package entities

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/dates"
)

// Common errors
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrSectionNotFound    = errors.New("section not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrForbidden          = errors.New("access denied")

	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrWrongOwner        = errors.New("child does not belong to this section")
	ErrHierarchyCycle    = errors.New("section cannot be moved into itself or its descendants")
	ErrMutualExclusion   = errors.New("section cannot hold both tasks and subsections")
	ErrRootProtected     = errors.New("root section cannot be moved or deleted")
	ErrChildrenNotLoaded = errors.New("section children are not loaded")
	ErrSectionNotEmpty   = errors.New("section is not empty")
	ErrDuplicateChild    = errors.New("child is already in this section")
	ErrEmptyTitle        = errors.New("title must not be empty")

	ErrRecurrenceRequiresDueDate = errors.New("recurrence requires a due date")
	ErrInvalidRecurrence         = errors.New("recurrence period must be positive with a known unit")
	ErrIncorrectDateInterval     = errors.New("incorrect date interval")

	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User represents an account owning one root section
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Today returns the clock's current calendar day
func Today(c Clock) time.Time {
	return dates.Day(c.Now())
}

// IDGenerator supplies identifiers for new aggregates
type IDGenerator interface {
	NewID() uuid.UUID
}

// RandomIDs generates random v4 UUIDs
type RandomIDs struct{}

func (RandomIDs) NewID() uuid.UUID { return uuid.New() }

// SequentialIDs hands out predictable UUIDs ending in 1, 2, 3, ...
type SequentialIDs struct {
	mu   sync.Mutex
	next uint64
}

func (g *SequentialIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	var id uuid.UUID
	n := g.next
	for i := len(id) - 1; i >= 0 && n > 0; i-- {
		id[i] = byte(n)
		n >>= 8
	}
	return id
}

// Change is a tri-state field update: untouched, set to a value, or cleared.
type Change[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a Change assigning v
func SetTo[T any](v T) Change[T] {
	return Change[T]{Set: true, Value: &v}
}

// Clear returns a Change resetting the field to null
func Clear[T any]() Change[T] {
	return Change[T]{Set: true}
}

func (c Change[T]) apply(dst **T) {
	if !c.Set {
		return
	}
	if c.Value == nil {
		*dst = nil
		return
	}
	v := *c.Value
	*dst = &v
}

// UnmarshalJSON marks the field as present; a JSON null clears it.
func (c *Change[T]) UnmarshalJSON(data []byte) error {
	c.Set = true
	if string(data) == "null" {
		c.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.Value = &v
	return nil
}
