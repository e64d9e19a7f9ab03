package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/domain/hierarchy"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

// SectionService handles the section hierarchy and the ordering of tasks
// inside it
type SectionService struct {
	tx          ports.Transactor
	cache       ports.SectionCache
	recorder    ports.OperationRecorder
	storage     ports.AttachmentStorage
	clock       entities.Clock
	ids         entities.IDGenerator
	autoArchive bool
	logger      *logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// SectionServiceDeps lists the collaborators of a SectionService. Cache
// and Recorder may be nil.
type SectionServiceDeps struct {
	Tx       ports.Transactor
	Cache    ports.SectionCache
	Recorder ports.OperationRecorder
	Storage  ports.AttachmentStorage
	Clock    entities.Clock
	IDs      entities.IDGenerator
	Rand     *rand.Rand
}

// NewSectionService creates a new section service
func NewSectionService(deps SectionServiceDeps, tasksConfig config.TasksConfig, logger *logger.Logger) *SectionService {
	s := &SectionService{
		tx:          deps.Tx,
		cache:       deps.Cache,
		recorder:    deps.Recorder,
		storage:     deps.Storage,
		clock:       deps.Clock,
		ids:         deps.IDs,
		autoArchive: tasksConfig.AutoArchive,
		logger:      logger.WithComponent("sections"),
		rng:         deps.Rand,
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// finish records the outcome of a mutation and refreshes the cached
// section list of the user.
func (s *SectionService) finish(ctx context.Context, userID uuid.UUID, op string, err error) error {
	s.recorder.Record(op, err)
	if err != nil {
		s.logger.LogRejection(userID, op, err)
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// CreateRootSection creates the root section of a user if it is missing
func (s *SectionService) CreateRootSection(ctx context.Context, userID uuid.UUID) (*entities.Section, error) {
	var root *entities.Section
	var created bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		root, created, err = createRoot(ctx, repos, userID, s.clock, s.ids)
		return err
	})
	if err = s.finish(ctx, userID, "create_root_section", err); err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("Root section created successfully", "user_id", userID, "section_id", root.ID)
	}
	return root, nil
}

// CreateSection appends a new empty section to its parent, which defaults
// to the root section
func (s *SectionService) CreateSection(ctx context.Context, userID uuid.UUID, req ports.CreateSectionRequest) (*entities.Section, error) {
	var section *entities.Section
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var parent *entities.Section
		if req.ParentID != nil {
			var err error
			if parent, err = loadSection(ctx, repos, userID, *req.ParentID, ports.LoadSubsections); err != nil {
				return err
			}
		} else {
			root, err := repos.Sections.GetRoot(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to load root section: %w", err)
			}
			if parent, err = loadSection(ctx, repos, userID, root.ID, ports.LoadSubsections); err != nil {
				return err
			}
		}

		var err error
		section, err = entities.NewSection(userID, req.Title, parent.ID, s.clock, s.ids)
		if err != nil {
			return err
		}
		if err := parent.AppendSubsection(section); err != nil {
			return err
		}
		if err := repos.Sections.Create(ctx, section); err != nil {
			return fmt.Errorf("failed to create section: %w", err)
		}
		return repos.Sections.Update(ctx, parent)
	})
	if err = s.finish(ctx, userID, "create_section", err); err != nil {
		return nil, err
	}

	s.logger.Info("Section created successfully", "section_id", section.ID, "parent_id", *section.ParentID, "title", section.Title)
	return section, nil
}

// GetSection retrieves a section with its children
func (s *SectionService) GetSection(ctx context.Context, userID, sectionID uuid.UUID) (*entities.Section, error) {
	var section *entities.Section
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		section, err = loadSection(ctx, repos, userID, sectionID, ports.LoadAll)
		return err
	})
	if err != nil {
		return nil, err
	}
	return section, nil
}

// ListSections returns the sections of a user. leavesOnly keeps the
// sections able to receive tasks; asTree returns the roots with nested
// subsections instead of a flat list.
func (s *SectionService) ListSections(ctx context.Context, userID uuid.UUID, leavesOnly, asTree bool) ([]*entities.Section, error) {
	sections, ok := s.cache.GetSections(ctx, userID)
	if !ok {
		err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
			var err error
			sections, err = repos.Sections.ListByUser(ctx, userID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list sections: %w", err)
		}
		s.cache.SetSections(ctx, userID, sections)
	}

	switch {
	case leavesOnly:
		return hierarchy.Leaves(sections), nil
	case asTree:
		return hierarchy.BuildTree(sections)
	}
	return sections, nil
}

// UpdateSection renames a section. The root keeps its title.
func (s *SectionService) UpdateSection(ctx context.Context, userID, sectionID uuid.UUID, req ports.UpdateSectionRequest) (*entities.Section, error) {
	var section *entities.Section
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		if section, err = loadSection(ctx, repos, userID, sectionID, ports.LoadNone); err != nil {
			return err
		}
		if req.Title == nil {
			return nil
		}
		if section.IsRoot() {
			return entities.ErrRootProtected
		}
		if err := section.Rename(*req.Title); err != nil {
			return err
		}
		return repos.Sections.Update(ctx, section)
	})
	if err = s.finish(ctx, userID, "update_section", err); err != nil {
		return nil, err
	}

	s.logger.Info("Section updated successfully", "section_id", section.ID, "title", section.Title)
	return section, nil
}

// DeleteSection removes a section without active children. Archived tasks
// of the section are deleted with it.
func (s *SectionService) DeleteSection(ctx context.Context, userID, sectionID uuid.UUID) error {
	var orphaned []entities.Attachment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		section, err := loadSection(ctx, repos, userID, sectionID, ports.LoadNone)
		if err != nil {
			return err
		}
		if section.IsRoot() {
			return entities.ErrRootProtected
		}
		if section.Kind() != entities.KindEmpty {
			return entities.ErrSectionNotEmpty
		}

		parent, err := loadSection(ctx, repos, userID, *section.ParentID, ports.LoadSubsections)
		if err != nil {
			return err
		}
		if err := parent.RemoveSubsection(section); err != nil {
			return err
		}

		archived, err := repos.Tasks.List(ctx, ports.TaskFilter{UserID: userID, SectionID: &section.ID})
		if err != nil {
			return fmt.Errorf("failed to list tasks of section: %w", err)
		}
		for _, t := range archived {
			orphaned = append(orphaned, t.Attachments...)
			if err := repos.Tasks.Delete(ctx, t.ID); err != nil {
				return fmt.Errorf("failed to delete task %s: %w", t.ID, err)
			}
		}

		if err := repos.Sections.Update(ctx, parent); err != nil {
			return err
		}
		return repos.Sections.Delete(ctx, section.ID)
	})
	if err = s.finish(ctx, userID, "delete_section", err); err != nil {
		return err
	}

	s.deleteObjects(ctx, orphaned)
	s.logger.Info("Section deleted successfully", "section_id", sectionID)
	return nil
}

// MoveSection moves a section under a new parent at the given index
func (s *SectionService) MoveSection(ctx context.Context, userID uuid.UUID, req ports.MoveSectionRequest) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		all, err := repos.Sections.ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list sections: %w", err)
		}
		snapshot := hierarchy.NewSnapshot(all)
		if _, ok := snapshot.Get(req.SectionID); !ok {
			if _, err := loadSection(ctx, repos, userID, req.SectionID, ports.LoadNone); err != nil {
				return err
			}
		}
		if err := snapshot.ValidateMove(req.SectionID, req.ToParentID); err != nil {
			return err
		}

		sub, err := loadSection(ctx, repos, userID, req.SectionID, ports.LoadNone)
		if err != nil {
			return err
		}
		from, err := loadSection(ctx, repos, userID, *sub.ParentID, ports.LoadSubsections)
		if err != nil {
			return err
		}
		to := from
		if req.ToParentID != from.ID {
			if to, err = loadSection(ctx, repos, userID, req.ToParentID, ports.LoadSubsections); err != nil {
				return err
			}
		}

		if err := entities.MoveSection(sub, from, to, req.Index); err != nil {
			return err
		}

		if err := repos.Sections.Update(ctx, sub); err != nil {
			return err
		}
		if err := repos.Sections.Update(ctx, from); err != nil {
			return err
		}
		if to != from {
			return repos.Sections.Update(ctx, to)
		}
		return nil
	})
	if err = s.finish(ctx, userID, "move_section", err); err != nil {
		return err
	}

	s.logger.Info("Section moved successfully", "section_id", req.SectionID, "parent_id", req.ToParentID, "index", req.Index)
	return nil
}

// ShuffleSection randomly permutes the tasks of a section
func (s *SectionService) ShuffleSection(ctx context.Context, userID, sectionID uuid.UUID) (*entities.Section, error) {
	var section *entities.Section
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		if section, err = loadSection(ctx, repos, userID, sectionID, ports.LoadTasks); err != nil {
			return err
		}
		s.rngMu.Lock()
		err = section.ShuffleTasks(s.rng)
		s.rngMu.Unlock()
		if err != nil {
			return err
		}
		return repos.Sections.Update(ctx, section)
	})
	if err = s.finish(ctx, userID, "shuffle_section", err); err != nil {
		return nil, err
	}

	s.logger.Info("Section shuffled successfully", "section_id", sectionID, "tasks", len(section.Tasks()))
	return section, nil
}

// CreateTask appends a new task to a section
func (s *SectionService) CreateTask(ctx context.Context, userID uuid.UUID, req ports.CreateTaskRequest) (*entities.Task, error) {
	tasks, err := s.createTasks(ctx, userID, []ports.CreateTaskRequest{req}, "create_task")
	if err != nil {
		return nil, err
	}
	return tasks[0], nil
}

// CreateTasksBulk creates several tasks in one transaction. Either every
// task is created or none is.
func (s *SectionService) CreateTasksBulk(ctx context.Context, userID uuid.UUID, reqs []ports.CreateTaskRequest) ([]*entities.Task, error) {
	return s.createTasks(ctx, userID, reqs, "create_tasks_bulk")
}

func (s *SectionService) createTasks(ctx context.Context, userID uuid.UUID, reqs []ports.CreateTaskRequest, op string) ([]*entities.Task, error) {
	created := make([]*entities.Task, 0, len(reqs))
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		sections := make(map[uuid.UUID]*entities.Section)
		var touched []*entities.Section

		for _, req := range reqs {
			section, ok := sections[req.SectionID]
			if !ok {
				var err error
				if section, err = loadSection(ctx, repos, userID, req.SectionID, ports.LoadTasks); err != nil {
					return err
				}
				sections[section.ID] = section
				touched = append(touched, section)
			}

			params, err := req.Params(userID)
			if err != nil {
				return err
			}
			task, err := entities.NewTask(params, s.clock, s.ids)
			if err != nil {
				return err
			}
			if err := section.AppendTask(task); err != nil {
				return err
			}
			if err := repos.Tasks.Save(ctx, task); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}
			created = append(created, task)
		}

		for _, section := range touched {
			if err := repos.Sections.Update(ctx, section); err != nil {
				return err
			}
		}
		return nil
	})
	if err = s.finish(ctx, userID, op, err); err != nil {
		return nil, err
	}

	for _, t := range created {
		s.logger.Info("Task created successfully", "task_id", t.ID, "section_id", t.SectionID, "title", t.Title)
	}
	return created, nil
}

// RemoveTask deletes a task and the objects of its attachments
func (s *SectionService) RemoveTask(ctx context.Context, userID, taskID uuid.UUID) error {
	var removed *entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		task, section, err := loadTaskIn(ctx, repos, userID, taskID)
		if err != nil {
			return err
		}
		if err := section.RemoveTask(task); err != nil {
			return err
		}
		if err := repos.Sections.Update(ctx, section); err != nil {
			return err
		}
		if err := repos.Tasks.Delete(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		removed = task
		return nil
	})
	if err = s.finish(ctx, userID, "remove_task", err); err != nil {
		return err
	}

	s.deleteObjects(ctx, removed.Attachments)
	s.logger.Info("Task removed successfully", "task_id", taskID, "section_id", removed.SectionID)
	return nil
}

// MoveTask moves a task to the given index of a section, possibly its own
func (s *SectionService) MoveTask(ctx context.Context, userID uuid.UUID, req ports.MoveTaskRequest) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		task, from, err := loadTaskIn(ctx, repos, userID, req.TaskID)
		if err != nil {
			return err
		}
		to := from
		if req.SectionToID != from.ID {
			if to, err = loadSection(ctx, repos, userID, req.SectionToID, ports.LoadTasks); err != nil {
				return err
			}
		}

		if err := entities.MoveTask(task, from, to, req.Index); err != nil {
			return err
		}

		if err := repos.Tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		if err := repos.Sections.Update(ctx, from); err != nil {
			return err
		}
		if to != from {
			return repos.Sections.Update(ctx, to)
		}
		return nil
	})
	if err = s.finish(ctx, userID, "move_task", err); err != nil {
		return err
	}

	s.logger.Info("Task moved successfully", "task_id", req.TaskID, "section_id", req.SectionToID, "index", req.Index)
	return nil
}

// ToggleTaskCompleted flips the completion of a task. autoArchive falls
// back to the configured default when nil. The task's section is returned
// with its updated ordering.
func (s *SectionService) ToggleTaskCompleted(ctx context.Context, userID, taskID uuid.UUID, autoArchive *bool) (*entities.Section, error) {
	archive := s.autoArchive
	if autoArchive != nil {
		archive = *autoArchive
	}

	var section *entities.Section
	var task *entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		if task, section, err = loadTaskIn(ctx, repos, userID, taskID); err != nil {
			return err
		}
		if err := entities.ToggleTaskCompleted(section, task, archive, entities.Today(s.clock)); err != nil {
			return err
		}
		if err := repos.Tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		return repos.Sections.Update(ctx, section)
	})
	if err = s.finish(ctx, userID, "toggle_task_completed", err); err != nil {
		return nil, err
	}

	s.logger.LogUserAction(userID, "toggle_task_completed", map[string]interface{}{
		"task_id":      task.ID,
		"is_completed": task.IsCompleted,
		"is_archived":  task.IsArchived,
		"due_to":       task.DueDate,
	})
	return section, nil
}

// ToggleTaskArchived flips the archival of a task
func (s *SectionService) ToggleTaskArchived(ctx context.Context, userID, taskID uuid.UUID) (*entities.Section, error) {
	var section *entities.Section
	var task *entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		if task, section, err = loadTaskIn(ctx, repos, userID, taskID); err != nil {
			return err
		}
		if err := entities.ToggleTaskArchived(section, task); err != nil {
			return err
		}
		if err := repos.Tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		return repos.Sections.Update(ctx, section)
	})
	if err = s.finish(ctx, userID, "toggle_task_archived", err); err != nil {
		return nil, err
	}

	s.logger.LogUserAction(userID, "toggle_task_archived", map[string]interface{}{
		"task_id":     task.ID,
		"is_archived": task.IsArchived,
	})
	return section, nil
}

func (s *SectionService) deleteObjects(ctx context.Context, attachments []entities.Attachment) {
	if s.storage == nil {
		return
	}
	for _, a := range attachments {
		if err := s.storage.Delete(ctx, a.StorageKey); err != nil {
			s.logger.Warn("Failed to delete attachment object", "error", err, "key", a.StorageKey)
		}
	}
}
