package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

// UserRepository implements ports.UserRepository
type UserRepository struct {
	d *data
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	for _, u := range r.d.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: %s", entities.ErrEmailTaken, user.Email)
		}
	}
	r.d.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	u, ok := r.d.users[id]
	if !ok {
		return nil, entities.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	for _, u := range r.d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, entities.ErrUserNotFound
}

// SectionRepository implements ports.SectionRepository. Child order lives
// in the parent's row.
type SectionRepository struct {
	d *data
}

func (r *SectionRepository) Create(ctx context.Context, section *entities.Section) error {
	if _, ok := r.d.sections[section.ID]; ok {
		return fmt.Errorf("section %s already exists", section.ID)
	}
	row := &sectionRow{section: *entities.RestoreSection(*section, entities.Children{})}
	r.d.sections[section.ID] = row
	r.writeChildren(row, section)
	return nil
}

func (r *SectionRepository) GetByID(ctx context.Context, id uuid.UUID, opts ports.LoadOptions) (*entities.Section, error) {
	row, ok := r.d.sections[id]
	if !ok {
		return nil, entities.ErrSectionNotFound
	}
	return r.hydrate(row, opts)
}

func (r *SectionRepository) GetRoot(ctx context.Context, userID uuid.UUID) (*entities.Section, error) {
	for _, row := range r.d.sections {
		if row.section.UserID == userID && row.section.ParentID == nil {
			return r.hydrate(row, ports.LoadNone)
		}
	}
	return nil, entities.ErrSectionNotFound
}

func (r *SectionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Section, error) {
	var out []*entities.Section
	var walk func(row *sectionRow) error
	walk = func(row *sectionRow) error {
		sec, err := r.hydrate(row, ports.LoadNone)
		if err != nil {
			return err
		}
		out = append(out, sec)
		for _, id := range row.subsections {
			if child, ok := r.d.sections[id]; ok {
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, row := range r.d.sections {
		if row.section.UserID == userID && row.section.ParentID == nil {
			if err := walk(row); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (r *SectionRepository) Update(ctx context.Context, section *entities.Section) error {
	row, ok := r.d.sections[section.ID]
	if !ok {
		return entities.ErrSectionNotFound
	}
	row.section = *entities.RestoreSection(*section, entities.Children{})
	r.writeChildren(row, section)
	return nil
}

func (r *SectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.d.sections[id]; !ok {
		return entities.ErrSectionNotFound
	}
	delete(r.d.sections, id)
	for taskID, t := range r.d.tasks {
		if t.SectionID == id {
			delete(r.d.tasks, taskID)
		}
	}
	return nil
}

// writeChildren stores the loaded ordering of section and reparents its
// children
func (r *SectionRepository) writeChildren(row *sectionRow, section *entities.Section) {
	if !section.ChildrenLoaded() {
		return
	}
	row.tasks, row.subsections = nil, nil
	for _, t := range section.Tasks() {
		row.tasks = append(row.tasks, t.ID)
		if stored, ok := r.d.tasks[t.ID]; ok {
			stored.SectionID = section.ID
		}
	}
	for _, sub := range section.Subsections() {
		row.subsections = append(row.subsections, sub.ID)
		if child, ok := r.d.sections[sub.ID]; ok {
			parent := section.ID
			child.section.ParentID = &parent
		}
	}
}

func (r *SectionRepository) hydrate(row *sectionRow, opts ports.LoadOptions) (*entities.Section, error) {
	hasTasks, hasSubsections := len(row.tasks) > 0, len(row.subsections) > 0

	var children entities.Children
	switch {
	case hasTasks && opts.Tasks:
		tasks := make([]*entities.Task, 0, len(row.tasks))
		for _, id := range row.tasks {
			if t, ok := r.d.tasks[id]; ok && !t.IsArchived {
				tasks = append(tasks, t.Clone())
			}
		}
		children = entities.TaskList(tasks)
	case hasSubsections && opts.Subsections:
		subs := make([]*entities.Section, 0, len(row.subsections))
		for _, id := range row.subsections {
			child, ok := r.d.sections[id]
			if !ok {
				continue
			}
			sub, err := r.hydrate(child, ports.LoadNone)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		children = entities.SubsectionList(subs)
	default:
		var err error
		if children, err = entities.UnloadedChildren(hasTasks, hasSubsections); err != nil {
			return nil, fmt.Errorf("section %s: %w", row.section.ID, err)
		}
	}
	return entities.RestoreSection(row.section, children), nil
}

// TaskRepository implements ports.TaskRepository
type TaskRepository struct {
	d *data
}

func (r *TaskRepository) Save(ctx context.Context, task *entities.Task) error {
	r.d.tasks[task.ID] = task.Clone()
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Task, error) {
	t, ok := r.d.tasks[id]
	if !ok {
		return nil, entities.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	t, ok := r.d.tasks[id]
	if !ok {
		return entities.ErrTaskNotFound
	}
	delete(r.d.tasks, id)
	if row, ok := r.d.sections[t.SectionID]; ok {
		row.tasks = slices.DeleteFunc(row.tasks, func(x uuid.UUID) bool { return x == id })
	}
	return nil
}

func (r *TaskRepository) List(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error) {
	var search string
	if filter.Search != nil {
		search = strings.ToLower(*filter.Search)
	}

	var out []*entities.Task
	for _, t := range r.d.tasks {
		if t.UserID != filter.UserID {
			continue
		}
		if filter.SectionID != nil && t.SectionID != *filter.SectionID {
			continue
		}
		if filter.IsArchived != nil && t.IsArchived != *filter.IsArchived {
			continue
		}
		if filter.DueNotAfter != nil && (t.DueDate == nil || t.DueDate.After(*filter.DueNotAfter)) {
			continue
		}
		if search != "" && !matches(t, search) {
			continue
		}
		out = append(out, t.Clone())
	}

	slices.SortFunc(out, func(a, b *entities.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	if filter.Offset > 0 {
		out = out[min(filter.Offset, len(out)):]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(t *entities.Task, search string) bool {
	if strings.Contains(strings.ToLower(t.Title), search) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), search)
}

// AuthRepository implements ports.AuthRepository
type AuthRepository struct {
	d *data
}

func (r *AuthRepository) CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.d.tokens[tokenHash] = ports.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (r *AuthRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*ports.RefreshToken, error) {
	t, ok := r.d.tokens[tokenHash]
	if !ok {
		return nil, ports.ErrRefreshTokenNotFound
	}
	return &t, nil
}

func (r *AuthRepository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	t, ok := r.d.tokens[tokenHash]
	if !ok {
		return ports.ErrRefreshTokenNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	r.d.tokens[tokenHash] = t
	return nil
}

func (r *AuthRepository) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	for hash, t := range r.d.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.d.tokens[hash] = t
		}
	}
	return nil
}
