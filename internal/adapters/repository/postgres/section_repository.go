package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

const sectionColumns = `id, user_id, title, parent_id, position, has_tasks, has_subsections, created_at`

type sectionRow struct {
	ID             uuid.UUID  `db:"id"`
	UserID         uuid.UUID  `db:"user_id"`
	Title          string     `db:"title"`
	ParentID       *uuid.UUID `db:"parent_id"`
	Position       int        `db:"position"`
	HasTasks       bool       `db:"has_tasks"`
	HasSubsections bool       `db:"has_subsections"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (row sectionRow) unloaded() (*entities.Section, error) {
	children, err := entities.UnloadedChildren(row.HasTasks, row.HasSubsections)
	if err != nil {
		return nil, fmt.Errorf("section %s: %w", row.ID, err)
	}
	return row.restore(children), nil
}

func (row sectionRow) restore(children entities.Children) *entities.Section {
	return entities.RestoreSection(entities.Section{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		ParentID:  row.ParentID,
		CreatedAt: row.CreatedAt,
	}, children)
}

// SectionRepositoryImpl implements the SectionRepository interface
type SectionRepositoryImpl struct {
	db    sqlx.ExtContext
	tasks *TaskRepositoryImpl
}

// NewSectionRepository creates a new section repository
func NewSectionRepository(db sqlx.ExtContext) ports.SectionRepository {
	return &SectionRepositoryImpl{db: db, tasks: &TaskRepositoryImpl{db: db}}
}

func (r *SectionRepositoryImpl) Create(ctx context.Context, section *entities.Section) error {
	query := `
		INSERT INTO sections (id, user_id, title, parent_id, has_tasks, has_subsections, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		section.ID, section.UserID, section.Title, section.ParentID,
		section.HasTasks(), section.HasSubsections(), section.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}

	return r.writeChildren(ctx, section)
}

// GetByID locks the section row for the rest of the transaction
func (r *SectionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID, opts ports.LoadOptions) (*entities.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1 FOR UPDATE`

	var row sectionRow
	err := sqlx.GetContext(ctx, r.db, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrSectionNotFound
		}
		return nil, fmt.Errorf("get section by id: %w", err)
	}

	switch {
	case row.HasTasks && opts.Tasks:
		tasks, err := r.tasks.query(ctx, `WHERE section_id = $1 AND NOT is_archived ORDER BY position, created_at`, id)
		if err != nil {
			return nil, err
		}
		return row.restore(entities.TaskList(tasks)), nil
	case row.HasSubsections && opts.Subsections:
		subs, err := r.list(ctx, `WHERE parent_id = $1 ORDER BY position, created_at`, id)
		if err != nil {
			return nil, err
		}
		return row.restore(entities.SubsectionList(subs)), nil
	}
	return row.unloaded()
}

func (r *SectionRepositoryImpl) GetRoot(ctx context.Context, userID uuid.UUID) (*entities.Section, error) {
	sections, err := r.list(ctx, `WHERE user_id = $1 AND parent_id IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, entities.ErrSectionNotFound
	}
	return sections[0], nil
}

// ListByUser walks the tree from the root so parents precede their
// children and siblings keep their order
func (r *SectionRepositoryImpl) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Section, error) {
	query := `
		WITH RECURSIVE tree AS (
			SELECT ` + sectionColumns + `, ARRAY[position] AS path
			FROM sections
			WHERE user_id = $1 AND parent_id IS NULL
			UNION ALL
			SELECT s.id, s.user_id, s.title, s.parent_id, s.position, s.has_tasks, s.has_subsections, s.created_at,
				tree.path || s.position
			FROM sections s
			JOIN tree ON s.parent_id = tree.id
		)
		SELECT ` + sectionColumns + ` FROM tree ORDER BY path`

	var rows []sectionRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return restoreAll(rows)
}

func (r *SectionRepositoryImpl) Update(ctx context.Context, section *entities.Section) error {
	query := `
		UPDATE sections
		SET title = $2, parent_id = $3, has_tasks = $4, has_subsections = $5
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		section.ID, section.Title, section.ParentID, section.HasTasks(), section.HasSubsections(),
	)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return entities.ErrSectionNotFound
	}

	return r.writeChildren(ctx, section)
}

func (r *SectionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return entities.ErrSectionNotFound
	}
	return nil
}

// writeChildren stores the positions of the loaded children
func (r *SectionRepositoryImpl) writeChildren(ctx context.Context, section *entities.Section) error {
	if !section.ChildrenLoaded() {
		return nil
	}
	for i, t := range section.Tasks() {
		_, err := r.db.ExecContext(ctx,
			`UPDATE tasks SET section_id = $1, position = $2 WHERE id = $3`,
			section.ID, i, t.ID,
		)
		if err != nil {
			return fmt.Errorf("update task position: %w", err)
		}
	}
	for i, sub := range section.Subsections() {
		_, err := r.db.ExecContext(ctx,
			`UPDATE sections SET parent_id = $1, position = $2 WHERE id = $3`,
			section.ID, i, sub.ID,
		)
		if err != nil {
			return fmt.Errorf("update section position: %w", err)
		}
	}
	return nil
}

func (r *SectionRepositoryImpl) list(ctx context.Context, where string, args ...interface{}) ([]*entities.Section, error) {
	var rows []sectionRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT `+sectionColumns+` FROM sections `+where, args...); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return restoreAll(rows)
}

func restoreAll(rows []sectionRow) ([]*entities.Section, error) {
	sections := make([]*entities.Section, 0, len(rows))
	for _, row := range rows {
		s, err := row.unloaded()
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, nil
}
