package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/calendar"
	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
)

// AuthService interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ValidateToken(tokenString string) (*Claims, error)
}

// UserService interface for account operations
type UserService interface {
	CreateUser(ctx context.Context, email, password string) (*entities.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*entities.User, error)
}

// SectionService interface for hierarchy operations
type SectionService interface {
	CreateRootSection(ctx context.Context, userID uuid.UUID) (*entities.Section, error)
	CreateSection(ctx context.Context, userID uuid.UUID, req CreateSectionRequest) (*entities.Section, error)
	GetSection(ctx context.Context, userID, sectionID uuid.UUID) (*entities.Section, error)
	ListSections(ctx context.Context, userID uuid.UUID, leavesOnly, asTree bool) ([]*entities.Section, error)
	UpdateSection(ctx context.Context, userID, sectionID uuid.UUID, req UpdateSectionRequest) (*entities.Section, error)
	DeleteSection(ctx context.Context, userID, sectionID uuid.UUID) error
	MoveSection(ctx context.Context, userID uuid.UUID, req MoveSectionRequest) error
	ShuffleSection(ctx context.Context, userID, sectionID uuid.UUID) (*entities.Section, error)

	CreateTask(ctx context.Context, userID uuid.UUID, req CreateTaskRequest) (*entities.Task, error)
	CreateTasksBulk(ctx context.Context, userID uuid.UUID, reqs []CreateTaskRequest) ([]*entities.Task, error)
	RemoveTask(ctx context.Context, userID, taskID uuid.UUID) error
	MoveTask(ctx context.Context, userID uuid.UUID, req MoveTaskRequest) error
	ToggleTaskCompleted(ctx context.Context, userID, taskID uuid.UUID, autoArchive *bool) (*entities.Section, error)
	ToggleTaskArchived(ctx context.Context, userID, taskID uuid.UUID) (*entities.Section, error)
}

// TaskService interface for task reads and edits
type TaskService interface {
	GetTask(ctx context.Context, userID, taskID uuid.UUID) (*entities.Task, error)
	UpdateTask(ctx context.Context, userID, taskID uuid.UUID, req UpdateTaskRequest) (*entities.Task, error)
	GetTasksByDate(ctx context.Context, userID uuid.UUID, req TasksByDateRequest) (*calendar.Agenda, error)
	GetArchivedTasks(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error)
	Search(ctx context.Context, userID uuid.UUID, query string) ([]*entities.Task, error)
	RequestAttachmentUpload(ctx context.Context, userID uuid.UUID, req AttachmentUploadRequest) (*AttachmentUploadInfo, error)
	RemoveAttachment(ctx context.Context, userID, taskID, attachmentID uuid.UUID) error
	AttachmentURL(storageKey string) string
}

// AttachmentStorage issues upload capabilities for the attachment bucket
type AttachmentStorage interface {
	PresignUpload(ctx context.Context, key string) (*UploadTicket, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// UploadTicket is a presigned form POST
type UploadTicket struct {
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// SectionCache holds the flat section list of a user. Failures are
// swallowed by implementations; a miss falls back to the repository.
type SectionCache interface {
	GetSections(ctx context.Context, userID uuid.UUID) ([]*entities.Section, bool)
	SetSections(ctx context.Context, userID uuid.UUID, sections []*entities.Section)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// OperationRecorder counts domain operations by outcome
type OperationRecorder interface {
	Record(operation string, err error)
}

// Request/Response Types

// Auth related types
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	User         *entities.User `json:"user"`
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Section related types
type CreateSectionRequest struct {
	Title    string     `json:"title" validate:"required,max=255"`
	ParentID *uuid.UUID `json:"parent_id"`
}

type UpdateSectionRequest struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=255"`
}

type MoveSectionRequest struct {
	SectionID  uuid.UUID `json:"section_id" validate:"required"`
	ToParentID uuid.UUID `json:"to_parent_id" validate:"required"`
	Index      int       `json:"index" validate:"min=0"`
}

// Task related types
type RecurrenceRequest struct {
	Period       int    `json:"period" validate:"required,gt=0"`
	Type         string `json:"type" validate:"required,oneof=days weeks months years"`
	FlexibleMode bool   `json:"flexible_mode"`
}

// Rule converts the request into a validated rule
func (r RecurrenceRequest) Rule() (entities.RecurrenceRule, error) {
	return entities.NewRecurrenceRule(r.Period, dates.Unit(r.Type), r.FlexibleMode)
}

type CreateTaskRequest struct {
	SectionID   uuid.UUID          `json:"section_id" validate:"required"`
	Title       string             `json:"title" validate:"required,max=255"`
	Description *string            `json:"description" validate:"omitempty,max=2000"`
	Content     *string            `json:"content"`
	DueTo       *string            `json:"due_to" validate:"omitempty,datetime=2006-01-02"`
	Recurrence  *RecurrenceRequest `json:"recurrence"`
}

// Params converts the request into task construction parameters
func (r CreateTaskRequest) Params(userID uuid.UUID) (entities.TaskParams, error) {
	p := entities.TaskParams{
		UserID:      userID,
		SectionID:   r.SectionID,
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
	}
	if r.DueTo != nil {
		due, err := dates.Parse(*r.DueTo)
		if err != nil {
			return p, err
		}
		p.DueDate = &due
	}
	if r.Recurrence != nil {
		rule, err := r.Recurrence.Rule()
		if err != nil {
			return p, err
		}
		p.Recurrence = &rule
	}
	return p, nil
}

// UpdateTaskRequest is a partial update. Absent fields are untouched and
// null clears a field.
type UpdateTaskRequest struct {
	Title       entities.Change[string]            `json:"title"`
	Description entities.Change[string]            `json:"description"`
	Content     entities.Change[string]            `json:"content"`
	DueTo       entities.Change[string]            `json:"due_to"`
	Recurrence  entities.Change[RecurrenceRequest] `json:"recurrence"`
}

// Patch converts the request into a domain patch
func (r UpdateTaskRequest) Patch() (entities.TaskPatch, error) {
	p := entities.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
	}
	if r.DueTo.Set {
		p.DueDate = entities.Clear[time.Time]()
		if r.DueTo.Value != nil {
			due, err := dates.Parse(*r.DueTo.Value)
			if err != nil {
				return p, err
			}
			p.DueDate = entities.SetTo(due)
		}
	}
	if r.Recurrence.Set {
		p.Recurrence = entities.Clear[entities.RecurrenceRule]()
		if r.Recurrence.Value != nil {
			rule, err := r.Recurrence.Value.Rule()
			if err != nil {
				return p, err
			}
			p.Recurrence = entities.SetTo(rule)
		}
	}
	return p, nil
}

type MoveTaskRequest struct {
	TaskID      uuid.UUID `json:"task_id" validate:"required"`
	SectionToID uuid.UUID `json:"section_to_id" validate:"required"`
	Index       int       `json:"index" validate:"min=0"`
}

type TasksByDateRequest struct {
	NotBefore time.Time
	NotAfter  time.Time
	// Expand repeats recurring tasks on every occurrence in the window
	Expand bool
}

// Attachment related types
type AttachmentUploadRequest struct {
	TaskID    uuid.UUID `json:"task_id" validate:"required"`
	AESKeyB64 string    `json:"aes_key_b64" validate:"required,base64"`
	AESIVB64  string    `json:"aes_iv_b64" validate:"required,base64"`
}

type AttachmentUploadInfo struct {
	AttachmentID uuid.UUID         `json:"attachment_id"`
	PostURL      string            `json:"post_url"`
	PostFields   map[string]string `json:"post_fields"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
