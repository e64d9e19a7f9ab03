package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

type nopCache struct{}

func (nopCache) GetSections(context.Context, uuid.UUID) ([]*entities.Section, bool) { return nil, false }
func (nopCache) SetSections(context.Context, uuid.UUID, []*entities.Section)        {}
func (nopCache) Invalidate(context.Context, uuid.UUID)                              {}

type nopRecorder struct{}

func (nopRecorder) Record(string, error) {}

// loadSection fetches a section owned by userID
func loadSection(ctx context.Context, repos ports.Repositories, userID, sectionID uuid.UUID, opts ports.LoadOptions) (*entities.Section, error) {
	section, err := repos.Sections.GetByID(ctx, sectionID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load section %s: %w", sectionID, err)
	}
	if section.UserID != userID {
		return nil, fmt.Errorf("section %s: %w", sectionID, entities.ErrForbidden)
	}
	return section, nil
}

// loadTask fetches a task owned by userID
func loadTask(ctx context.Context, repos ports.Repositories, userID, taskID uuid.UUID) (*entities.Task, error) {
	task, err := repos.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	if task.UserID != userID {
		return nil, fmt.Errorf("task %s: %w", taskID, entities.ErrForbidden)
	}
	return task, nil
}

// loadTaskIn fetches a task together with its section's active ordering.
// The returned task is the section's own entry when the task is active.
func loadTaskIn(ctx context.Context, repos ports.Repositories, userID, taskID uuid.UUID) (*entities.Task, *entities.Section, error) {
	task, err := loadTask(ctx, repos, userID, taskID)
	if err != nil {
		return nil, nil, err
	}
	section, err := loadSection(ctx, repos, userID, task.SectionID, ports.LoadTasks)
	if err != nil {
		return nil, nil, err
	}
	if i := section.TaskIndex(task.ID); i >= 0 {
		task = section.Tasks()[i]
	}
	return task, section, nil
}

// createRoot stores the root section of userID unless one exists
func createRoot(ctx context.Context, repos ports.Repositories, userID uuid.UUID, clock entities.Clock, ids entities.IDGenerator) (*entities.Section, bool, error) {
	root, err := repos.Sections.GetRoot(ctx, userID)
	if err == nil {
		return root, false, nil
	}
	if !errors.Is(err, entities.ErrSectionNotFound) {
		return nil, false, fmt.Errorf("failed to look up root section: %w", err)
	}
	root = entities.NewRootSection(userID, clock, ids)
	if err := repos.Sections.Create(ctx, root); err != nil {
		return nil, false, fmt.Errorf("failed to create root section: %w", err)
	}
	return root, true, nil
}
