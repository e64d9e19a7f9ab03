package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

const taskColumns = `id, user_id, section_id, title, description, content, is_completed, is_archived,
	due_date, recurrence_period, recurrence_unit, flexible_recurrence, created_at`

type taskRow struct {
	ID                 uuid.UUID  `db:"id"`
	UserID             uuid.UUID  `db:"user_id"`
	SectionID          uuid.UUID  `db:"section_id"`
	Title              string     `db:"title"`
	Description        *string    `db:"description"`
	Content            *string    `db:"content"`
	IsCompleted        bool       `db:"is_completed"`
	IsArchived         bool       `db:"is_archived"`
	DueDate            *time.Time `db:"due_date"`
	RecurrencePeriod   *int       `db:"recurrence_period"`
	RecurrenceUnit     *string    `db:"recurrence_unit"`
	FlexibleRecurrence bool       `db:"flexible_recurrence"`
	CreatedAt          time.Time  `db:"created_at"`
}

func (row taskRow) task() *entities.Task {
	t := &entities.Task{
		ID:          row.ID,
		UserID:      row.UserID,
		SectionID:   row.SectionID,
		Title:       row.Title,
		Description: row.Description,
		Content:     row.Content,
		IsCompleted: row.IsCompleted,
		IsArchived:  row.IsArchived,
		CreatedAt:   row.CreatedAt,
		Attachments: []entities.Attachment{},
	}
	if row.DueDate != nil {
		due := dates.Day(*row.DueDate)
		t.DueDate = &due
	}
	if row.RecurrencePeriod != nil && row.RecurrenceUnit != nil {
		t.Recurrence = &entities.RecurrenceRule{
			Period:       *row.RecurrencePeriod,
			Unit:         dates.Unit(*row.RecurrenceUnit),
			FlexibleMode: row.FlexibleRecurrence,
		}
	}
	return t
}

// TaskRepositoryImpl implements the TaskRepository interface
type TaskRepositoryImpl struct {
	db sqlx.ExtContext
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db sqlx.ExtContext) ports.TaskRepository {
	return &TaskRepositoryImpl{db: db}
}

// Save upserts the task row, leaving its position alone, and syncs the
// attachment rows
func (r *TaskRepositoryImpl) Save(ctx context.Context, task *entities.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, section_id, title, description, content, is_completed, is_archived,
			due_date, recurrence_period, recurrence_unit, flexible_recurrence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			section_id = EXCLUDED.section_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			is_completed = EXCLUDED.is_completed,
			is_archived = EXCLUDED.is_archived,
			due_date = EXCLUDED.due_date,
			recurrence_period = EXCLUDED.recurrence_period,
			recurrence_unit = EXCLUDED.recurrence_unit,
			flexible_recurrence = EXCLUDED.flexible_recurrence`

	var due *string
	if task.DueDate != nil {
		d := dates.Format(*task.DueDate)
		due = &d
	}
	var period *int
	var unit *string
	flexible := false
	if task.Recurrence != nil {
		period = &task.Recurrence.Period
		u := string(task.Recurrence.Unit)
		unit = &u
		flexible = task.Recurrence.FlexibleMode
	}

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.SectionID, task.Title, task.Description, task.Content,
		task.IsCompleted, task.IsArchived, due, period, unit, flexible, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	return r.syncAttachments(ctx, task)
}

func (r *TaskRepositoryImpl) syncAttachments(ctx context.Context, task *entities.Task) error {
	keep := make([]string, 0, len(task.Attachments))
	for _, a := range task.Attachments {
		keep = append(keep, a.ID.String())
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM attachments WHERE task_id = $1 AND NOT (id = ANY($2::uuid[]))`,
		task.ID, pq.Array(keep),
	)
	if err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}

	for _, a := range task.Attachments {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO attachments (id, task_id, aes_key, aes_iv, storage_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			a.ID, task.ID, a.AESKey, a.AESIV, a.StorageKey, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return nil
}

func (r *TaskRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.Task, error) {
	tasks, err := r.query(ctx, `WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, entities.ErrTaskNotFound
	}
	return tasks[0], nil
}

func (r *TaskRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return entities.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepositoryImpl) List(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error) {
	where, args := filterClause(filter)
	query := where + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return r.query(ctx, query, args...)
}

func filterClause(filter ports.TaskFilter) (string, []interface{}) {
	args := []interface{}{filter.UserID}
	conds := []string{`user_id = $1`}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.SectionID != nil {
		add(`section_id = $%d`, *filter.SectionID)
	}
	if filter.IsArchived != nil {
		add(`is_archived = $%d`, *filter.IsArchived)
	}
	if filter.DueNotAfter != nil {
		add(`due_date <= $%d`, dates.Format(*filter.DueNotAfter))
	}
	if filter.Search != nil && *filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(*filter.Search) + "%"
		args = append(args, pattern)
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(title ILIKE $%d OR description ILIKE $%d)`, n, n))
	}
	return `WHERE ` + strings.Join(conds, ` AND `), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// query selects tasks matching the given clause with their attachments
func (r *TaskRepositoryImpl) query(ctx context.Context, clause string, args ...interface{}) ([]*entities.Task, error) {
	var rows []taskRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT `+taskColumns+` FROM tasks `+clause, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]*entities.Task, 0, len(rows))
	byID := make(map[uuid.UUID]*entities.Task, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		t := row.task()
		tasks = append(tasks, t)
		byID[t.ID] = t
		ids = append(ids, t.ID.String())
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	var attachments []entities.Attachment
	err := sqlx.SelectContext(ctx, r.db, &attachments, `
		SELECT id, task_id, aes_key, aes_iv, storage_key, created_at
		FROM attachments
		WHERE task_id = ANY($1::uuid[])
		ORDER BY created_at, id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	for _, a := range attachments {
		if t, ok := byID[a.TaskID]; ok {
			t.Attachments = append(t.Attachments, a)
		}
	}
	return tasks, nil
}
