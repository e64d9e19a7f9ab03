// Package hierarchy validates structural moves against a user's whole
// section tree, loaded as a flat list.
package hierarchy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
)

// Snapshot is a read-only view of one user's sections
type Snapshot struct {
	byID  map[uuid.UUID]*entities.Section
	order []*entities.Section
}

// NewSnapshot indexes sections by ID. Later duplicates win.
func NewSnapshot(sections []*entities.Section) *Snapshot {
	s := &Snapshot{
		byID:  make(map[uuid.UUID]*entities.Section, len(sections)),
		order: sections,
	}
	for _, sec := range sections {
		s.byID[sec.ID] = sec
	}
	return s
}

// Get returns the section with the given ID
func (s *Snapshot) Get(id uuid.UUID) (*entities.Section, bool) {
	sec, ok := s.byID[id]
	return sec, ok
}

// Len returns the number of sections
func (s *Snapshot) Len() int { return len(s.byID) }

// Ancestors returns the IDs from the section's parent up to the root.
func (s *Snapshot) Ancestors(id uuid.UUID) ([]uuid.UUID, error) {
	sec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entities.ErrSectionNotFound, id)
	}
	var chain []uuid.UUID
	seen := map[uuid.UUID]bool{id: true}
	for sec.ParentID != nil {
		parentID := *sec.ParentID
		if seen[parentID] {
			return nil, fmt.Errorf("%w: stored tree loops at %s", entities.ErrHierarchyCycle, parentID)
		}
		seen[parentID] = true
		parent, ok := s.byID[parentID]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", entities.ErrSectionNotFound, parentID, sec.ID)
		}
		chain = append(chain, parentID)
		sec = parent
	}
	return chain, nil
}

// IsDescendant reports whether id lies strictly below ancestor
func (s *Snapshot) IsDescendant(id, ancestor uuid.UUID) (bool, error) {
	chain, err := s.Ancestors(id)
	if err != nil {
		return false, err
	}
	for _, a := range chain {
		if a == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// ValidateMove checks that sectionID may become a child of toParentID:
// the root never moves, and a section cannot go into itself or below
// itself.
func (s *Snapshot) ValidateMove(sectionID, toParentID uuid.UUID) error {
	sec, ok := s.byID[sectionID]
	if !ok {
		return fmt.Errorf("%w: %s", entities.ErrSectionNotFound, sectionID)
	}
	if sec.IsRoot() {
		return entities.ErrRootProtected
	}
	if _, ok := s.byID[toParentID]; !ok {
		return fmt.Errorf("%w: %s", entities.ErrSectionNotFound, toParentID)
	}
	if sectionID == toParentID {
		return entities.ErrHierarchyCycle
	}
	below, err := s.IsDescendant(toParentID, sectionID)
	if err != nil {
		return err
	}
	if below {
		return entities.ErrHierarchyCycle
	}
	return nil
}

// BuildTree links sections into their parents' subsection lists, keeping
// the input order among siblings, and returns the roots. The sections are
// modified in place.
func BuildTree(sections []*entities.Section) ([]*entities.Section, error) {
	snap := NewSnapshot(sections)
	children := make(map[uuid.UUID][]*entities.Section)
	var roots []*entities.Section

	for _, sec := range snap.order {
		if _, err := snap.Ancestors(sec.ID); err != nil {
			return nil, err
		}
		if sec.IsRoot() {
			roots = append(roots, sec)
			continue
		}
		children[*sec.ParentID] = append(children[*sec.ParentID], sec)
	}

	for parentID, subs := range children {
		parent := snap.byID[parentID]
		if parent.HasTasks() {
			return nil, fmt.Errorf("%w: section %s", entities.ErrMutualExclusion, parentID)
		}
		parent.SetChildren(entities.SubsectionList(subs))
	}
	return roots, nil
}

// Leaves returns the sections that hold no subsections, in input order.
// Only these can receive tasks.
func Leaves(sections []*entities.Section) []*entities.Section {
	var out []*entities.Section
	for _, sec := range sections {
		if !sec.HasSubsections() {
			out = append(out, sec)
		}
	}
	return out
}
