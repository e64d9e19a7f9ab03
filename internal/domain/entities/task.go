package entities

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/dates"
)

// RecurrenceRule describes how a task's due date advances on completion
type RecurrenceRule struct {
	Period       int        `json:"period" db:"recurrence_period"`
	Unit         dates.Unit `json:"type" db:"recurrence_unit"`
	FlexibleMode bool       `json:"flexible_mode" db:"flexible_recurrence"`
}

// NewRecurrenceRule validates and builds a rule
func NewRecurrenceRule(period int, unit dates.Unit, flexible bool) (RecurrenceRule, error) {
	r := RecurrenceRule{Period: period, Unit: unit, FlexibleMode: flexible}
	if err := r.Validate(); err != nil {
		return RecurrenceRule{}, err
	}
	return r, nil
}

// Validate rejects non-positive periods and unknown units
func (r RecurrenceRule) Validate() error {
	if r.Period <= 0 || !r.Unit.IsValid() {
		return fmt.Errorf("%w: period=%d unit=%q", ErrInvalidRecurrence, r.Period, r.Unit)
	}
	return nil
}

// Next returns the due date following previousDue when completed today
func (r RecurrenceRule) Next(previousDue, today time.Time) time.Time {
	return dates.NextDue(previousDue, today, r.Period, r.Unit, r.FlexibleMode)
}

// Attachment is an encrypted file stored in the object store
type Attachment struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TaskID     uuid.UUID `json:"task_id" db:"task_id"`
	AESKey     string    `json:"aes_key_b64" db:"aes_key"`
	AESIV      string    `json:"aes_iv_b64" db:"aes_iv"`
	StorageKey string    `json:"s3_file_key" db:"storage_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewAttachment builds an attachment for a task
func NewAttachment(taskID uuid.UUID, aesKey, aesIV, storageKey string, clock Clock, ids IDGenerator) Attachment {
	return Attachment{
		ID:         ids.NewID(),
		TaskID:     taskID,
		AESKey:     aesKey,
		AESIV:      aesIV,
		StorageKey: storageKey,
		CreatedAt:  clock.Now(),
	}
}

// Task is a unit of work held by exactly one section
type Task struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	SectionID   uuid.UUID       `json:"section_id" db:"section_id"`
	Title       string          `json:"title" db:"title"`
	Description *string         `json:"description" db:"description"`
	Content     *string         `json:"content" db:"content"`
	IsCompleted bool            `json:"is_completed" db:"is_completed"`
	IsArchived  bool            `json:"is_archived" db:"is_archived"`
	DueDate     *time.Time      `json:"due_to" db:"due_date"`
	Recurrence  *RecurrenceRule `json:"recurrence"`
	Attachments []Attachment    `json:"attachments"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// TaskParams holds the caller-supplied fields of a new task
type TaskParams struct {
	UserID      uuid.UUID
	SectionID   uuid.UUID
	Title       string
	Description *string
	Content     *string
	DueDate     *time.Time
	Recurrence  *RecurrenceRule
}

// NewTask builds a valid, active, incomplete task
func NewTask(p TaskParams, clock Clock, ids IDGenerator) (*Task, error) {
	t := &Task{
		ID:          ids.NewID(),
		UserID:      p.UserID,
		SectionID:   p.SectionID,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Recurrence:  p.Recurrence,
		CreatedAt:   clock.Now(),
	}
	t.DueDate = dayPtr(p.DueDate)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the invariants every persisted task satisfies
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if t.Recurrence != nil {
		if t.DueDate == nil {
			return ErrRecurrenceRequiresDueDate
		}
		if err := t.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsRecurring reports whether completing the task advances its due date
func (t *Task) IsRecurring() bool {
	return t.Recurrence != nil
}

// Clone returns a deep copy
func (t *Task) Clone() *Task {
	c := *t
	c.Description = clonePtr(t.Description)
	c.Content = clonePtr(t.Content)
	c.DueDate = clonePtr(t.DueDate)
	c.Recurrence = clonePtr(t.Recurrence)
	c.Attachments = slices.Clone(t.Attachments)
	return &c
}

// TaskPatch is a partial update; untouched fields keep their value
type TaskPatch struct {
	Title       Change[string]
	Description Change[string]
	Content     Change[string]
	DueDate     Change[time.Time]
	Recurrence  Change[RecurrenceRule]
}

// Apply updates a copy of the task, validates it, then swaps it in. On
// error the task is left untouched.
func (t *Task) Apply(p TaskPatch) error {
	c := t.Clone()
	if p.Title.Set {
		if p.Title.Value == nil {
			return ErrEmptyTitle
		}
		c.Title = *p.Title.Value
	}
	p.Description.apply(&c.Description)
	p.Content.apply(&c.Content)
	p.DueDate.apply(&c.DueDate)
	p.Recurrence.apply(&c.Recurrence)
	c.DueDate = dayPtr(c.DueDate)
	if err := c.Validate(); err != nil {
		return err
	}
	*t = *c
	return nil
}

// Rename changes the title
func (t *Task) Rename(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	t.Title = title
	return nil
}

func (t *Task) SetDescription(description *string) {
	t.Description = clonePtr(description)
}

func (t *Task) SetContent(content *string) {
	t.Content = clonePtr(content)
}

// Reschedule replaces the due date and recurrence together
func (t *Task) Reschedule(due *time.Time, rule *RecurrenceRule) error {
	if rule != nil {
		if due == nil {
			return ErrRecurrenceRequiresDueDate
		}
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	t.DueDate = dayPtr(due)
	t.Recurrence = clonePtr(rule)
	return nil
}

// ToggleCompleted flips completion. Un-completing with autoArchive also
// unarchives; completing defers to MarkCompleted.
func (t *Task) ToggleCompleted(autoArchive bool, today time.Time) {
	if t.IsCompleted {
		t.IsCompleted = false
		if autoArchive {
			t.IsArchived = false
		}
		return
	}
	t.MarkCompleted(autoArchive, today)
}

// MarkCompleted completes the task. A recurring task is never marked
// completed; its due date advances to the next occurrence instead.
func (t *Task) MarkCompleted(autoArchive bool, today time.Time) {
	if t.Recurrence != nil {
		next := t.Recurrence.Next(*t.DueDate, today)
		t.DueDate = &next
		return
	}
	t.IsCompleted = true
	if autoArchive {
		t.IsArchived = true
	}
}

func (t *Task) Archive()        { t.IsArchived = true }
func (t *Task) Unarchive()      { t.IsArchived = false }
func (t *Task) ToggleArchived() { t.IsArchived = !t.IsArchived }

// AddAttachment appends an attachment and binds it to the task
func (t *Task) AddAttachment(a Attachment) {
	a.TaskID = t.ID
	t.Attachments = append(t.Attachments, a)
}

// FindAttachment looks up an attachment by ID
func (t *Task) FindAttachment(id uuid.UUID) (Attachment, bool) {
	for _, a := range t.Attachments {
		if a.ID == id {
			return a, true
		}
	}
	return Attachment{}, false
}

// RemoveAttachment removes and returns the attachment with the given ID
func (t *Task) RemoveAttachment(id uuid.UUID) (Attachment, error) {
	i := slices.IndexFunc(t.Attachments, func(a Attachment) bool { return a.ID == id })
	if i < 0 {
		return Attachment{}, ErrAttachmentNotFound
	}
	removed := t.Attachments[i]
	t.Attachments = slices.Delete(slices.Clone(t.Attachments), i, i+1)
	return removed, nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dates.Day(*t)
	return &d
}
