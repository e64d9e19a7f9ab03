package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/calendar"
	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

// TaskService handles task reads, edits and attachments
type TaskService struct {
	tx       ports.Transactor
	storage  ports.AttachmentStorage
	recorder ports.OperationRecorder
	clock    entities.Clock
	ids      entities.IDGenerator
	logger   *logger.Logger
}

// NewTaskService creates a new task service. recorder may be nil.
func NewTaskService(tx ports.Transactor, storage ports.AttachmentStorage, recorder ports.OperationRecorder, clock entities.Clock, ids entities.IDGenerator, logger *logger.Logger) *TaskService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &TaskService{
		tx:       tx,
		storage:  storage,
		recorder: recorder,
		clock:    clock,
		ids:      ids,
		logger:   logger.WithComponent("tasks"),
	}
}

func (s *TaskService) finish(userID uuid.UUID, op string, err error) error {
	s.recorder.Record(op, err)
	if err != nil {
		s.logger.LogRejection(userID, op, err)
	}
	return err
}

// GetTask retrieves a task by ID
func (s *TaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*entities.Task, error) {
	var task *entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		task, err = loadTask(ctx, repos, userID, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask applies a partial update. The task is unchanged when the
// result would be invalid.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, req ports.UpdateTaskRequest) (*entities.Task, error) {
	patch, err := req.Patch()
	if err != nil {
		return nil, s.finish(userID, "update_task", err)
	}

	var task *entities.Task
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		if task, err = loadTask(ctx, repos, userID, taskID); err != nil {
			return err
		}
		if err := task.Apply(patch); err != nil {
			return err
		}
		if err := repos.Tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return nil
	})
	if err = s.finish(userID, "update_task", err); err != nil {
		return nil, err
	}

	s.logger.Info("Task updated successfully", "task_id", task.ID, "title", task.Title)
	return task, nil
}

// GetTasksByDate groups the active tasks of a user by due date between
// NotBefore and NotAfter, plus the overdue ones
func (s *TaskService) GetTasksByDate(ctx context.Context, userID uuid.UUID, req ports.TasksByDateRequest) (*calendar.Agenda, error) {
	if req.NotBefore.After(req.NotAfter) {
		return nil, entities.ErrIncorrectDateInterval
	}

	var tasks []*entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		active := false
		var err error
		tasks, err = repos.Tasks.List(ctx, ports.TaskFilter{
			UserID:      userID,
			IsArchived:  &active,
			DueNotAfter: &req.NotAfter,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	bucket := calendar.BucketByDate
	if req.Expand {
		bucket = calendar.ExpandOccurrences
	}
	agenda, err := bucket(tasks, req.NotBefore, req.NotAfter, entities.Today(s.clock))
	if err != nil {
		return nil, err
	}
	return &agenda, nil
}

// GetArchivedTasks lists the archived tasks of a user
func (s *TaskService) GetArchivedTasks(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error) {
	var tasks []*entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		archived := true
		var err error
		tasks, err = repos.Tasks.List(ctx, ports.TaskFilter{UserID: userID, IsArchived: &archived})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archived tasks: %w", err)
	}
	return tasks, nil
}

// Search finds tasks whose title or description contains query,
// case-insensitively
func (s *TaskService) Search(ctx context.Context, userID uuid.UUID, query string) ([]*entities.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*entities.Task{}, nil
	}

	var tasks []*entities.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		var err error
		tasks, err = repos.Tasks.List(ctx, ports.TaskFilter{UserID: userID, Search: &query})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}
	return tasks, nil
}

// RequestAttachmentUpload registers an attachment on a task and returns a
// presigned form the client posts the encrypted file to
func (s *TaskService) RequestAttachmentUpload(ctx context.Context, userID uuid.UUID, req ports.AttachmentUploadRequest) (*ports.AttachmentUploadInfo, error) {
	key := s.ids.NewID().String()
	var attachment entities.Attachment
	var ticket *ports.UploadTicket

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		task, err := loadTask(ctx, repos, userID, req.TaskID)
		if err != nil {
			return err
		}
		if ticket, err = s.storage.PresignUpload(ctx, key); err != nil {
			return fmt.Errorf("failed to presign upload: %w", err)
		}
		attachment = entities.NewAttachment(task.ID, req.AESKeyB64, req.AESIVB64, key, s.clock, s.ids)
		task.AddAttachment(attachment)
		if err := repos.Tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to save attachment: %w", err)
		}
		return nil
	})
	if err = s.finish(userID, "request_attachment_upload", err); err != nil {
		return nil, err
	}

	s.logger.Info("Attachment registered successfully", "task_id", req.TaskID, "attachment_id", attachment.ID, "key", key)
	return &ports.AttachmentUploadInfo{
		AttachmentID: attachment.ID,
		PostURL:      ticket.URL,
		PostFields:   ticket.Fields,
	}, nil
}

// RemoveAttachment deletes the stored object, then the attachment record
func (s *TaskService) RemoveAttachment(ctx context.Context, userID, taskID, attachmentID uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos ports.Repositories) error {
		task, err := loadTask(ctx, repos, userID, taskID)
		if err != nil {
			return err
		}
		attachment, err := task.RemoveAttachment(attachmentID)
		if err != nil {
			return err
		}
		if err := s.storage.Delete(ctx, attachment.StorageKey); err != nil {
			return fmt.Errorf("failed to delete attachment object: %w", err)
		}
		if err := repos.Tasks.Save(ctx, task); err != nil {
			return fmt.Errorf("failed to remove attachment: %w", err)
		}
		return nil
	})
	if err = s.finish(userID, "remove_attachment", err); err != nil {
		return err
	}

	s.logger.Info("Attachment removed successfully", "task_id", taskID, "attachment_id", attachmentID)
	return nil
}

// AttachmentURL returns where the object of an attachment can be fetched
func (s *TaskService) AttachmentURL(storageKey string) string {
	return s.storage.URL(storageKey)
}
