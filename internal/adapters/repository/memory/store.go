// Package memory keeps all data in process. Each transaction works on a
// copy of the data that replaces the committed state on success.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

type sectionRow struct {
	section     entities.Section
	tasks       []uuid.UUID
	subsections []uuid.UUID
}

type data struct {
	users    map[uuid.UUID]entities.User
	sections map[uuid.UUID]*sectionRow
	tasks    map[uuid.UUID]*entities.Task
	tokens   map[string]ports.RefreshToken
}

func newData() *data {
	return &data{
		users:    make(map[uuid.UUID]entities.User),
		sections: make(map[uuid.UUID]*sectionRow),
		tasks:    make(map[uuid.UUID]*entities.Task),
		tokens:   make(map[string]ports.RefreshToken),
	}
}

func (d *data) clone() *data {
	c := &data{
		users:    maps.Clone(d.users),
		sections: make(map[uuid.UUID]*sectionRow, len(d.sections)),
		tasks:    make(map[uuid.UUID]*entities.Task, len(d.tasks)),
		tokens:   maps.Clone(d.tokens),
	}
	for id, row := range d.sections {
		c.sections[id] = &sectionRow{
			section:     row.section,
			tasks:       slices.Clone(row.tasks),
			subsections: slices.Clone(row.subsections),
		}
	}
	for id, t := range d.tasks {
		c.tasks[id] = t.Clone()
	}
	return c
}

// Store is an in-memory ports.Transactor. Transactions are serialized.
type Store struct {
	mu   sync.Mutex
	data *data
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newData()}
}

// WithinTx runs fn on a private copy of the data and publishes the copy
// when fn succeeds
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(ctx, repositories(work)); err != nil {
		return err
	}
	s.data = work
	return nil
}

func repositories(d *data) ports.Repositories {
	return ports.Repositories{
		Users:    &UserRepository{d: d},
		Sections: &SectionRepository{d: d},
		Tasks:    &TaskRepository{d: d},
		Auth:     &AuthRepository{d: d},
	}
}
