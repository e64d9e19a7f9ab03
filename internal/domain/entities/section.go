package entities

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RootSectionTitle is the title of the section created with every account
const RootSectionTitle = "root"

// ChildrenKind tells what a section holds
type ChildrenKind int

const (
	KindEmpty ChildrenKind = iota
	KindTasks
	KindSubsections
)

func (k ChildrenKind) String() string {
	switch k {
	case KindTasks:
		return "tasks"
	case KindSubsections:
		return "subsections"
	}
	return "empty"
}

// Children is the content of a section: nothing, an ordered task list, or
// an ordered subsection list. The list may be left unloaded; the kind
// stays authoritative either way.
type Children struct {
	kind        ChildrenKind
	loaded      bool
	tasks       []*Task
	subsections []*Section
}

// EmptyChildren describes a section with no content
func EmptyChildren() Children {
	return Children{loaded: true}
}

// TaskList describes a section holding tasks in the given order
func TaskList(tasks []*Task) Children {
	if len(tasks) == 0 {
		return EmptyChildren()
	}
	return Children{kind: KindTasks, loaded: true, tasks: slices.Clone(tasks)}
}

// SubsectionList describes a section holding subsections in the given order
func SubsectionList(subsections []*Section) Children {
	if len(subsections) == 0 {
		return EmptyChildren()
	}
	return Children{kind: KindSubsections, loaded: true, subsections: slices.Clone(subsections)}
}

// UnloadedChildren describes a section whose lists were not fetched
func UnloadedChildren(hasTasks, hasSubsections bool) (Children, error) {
	switch {
	case hasTasks && hasSubsections:
		return Children{}, ErrMutualExclusion
	case hasTasks:
		return Children{kind: KindTasks}, nil
	case hasSubsections:
		return Children{kind: KindSubsections}, nil
	}
	return EmptyChildren(), nil
}

// Section is a node of a user's hierarchy. It holds tasks or subsections,
// never both, and keeps them densely ordered by slice position.
type Section struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Title     string     `json:"title" db:"title"`
	ParentID  *uuid.UUID `json:"parent_id" db:"parent_id"` // nil for the root
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	children Children
}

// NewSection builds an empty section under parentID
func NewSection(userID uuid.UUID, title string, parentID uuid.UUID, clock Clock, ids IDGenerator) (*Section, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	return &Section{
		ID:        ids.NewID(),
		UserID:    userID,
		Title:     title,
		ParentID:  &parentID,
		CreatedAt: clock.Now(),
		children:  EmptyChildren(),
	}, nil
}

// NewRootSection builds the root section of a new account
func NewRootSection(userID uuid.UUID, clock Clock, ids IDGenerator) *Section {
	return &Section{
		ID:        ids.NewID(),
		UserID:    userID,
		Title:     RootSectionTitle,
		CreatedAt: clock.Now(),
		children:  EmptyChildren(),
	}
}

// RestoreSection rebuilds a persisted section
func RestoreSection(s Section, children Children) *Section {
	s.children = children
	return &s
}

func (s *Section) IsRoot() bool { return s.ParentID == nil }

func (s *Section) Kind() ChildrenKind { return s.children.kind }

func (s *Section) HasTasks() bool { return s.children.kind == KindTasks }

func (s *Section) HasSubsections() bool { return s.children.kind == KindSubsections }

// ChildrenLoaded reports whether the list matching Kind was fetched
func (s *Section) ChildrenLoaded() bool { return s.children.loaded }

// Tasks returns the loaded task list in order
func (s *Section) Tasks() []*Task {
	return slices.Clone(s.children.tasks)
}

// Subsections returns the loaded subsection list in order
func (s *Section) Subsections() []*Section {
	return slices.Clone(s.children.subsections)
}

// SetChildren replaces the section's content, used when hydrating from storage
func (s *Section) SetChildren(c Children) {
	s.children = c
}

// Rename changes the title
func (s *Section) Rename(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	s.Title = title
	return nil
}

// TaskIndex returns the position of the task, or -1
func (s *Section) TaskIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.children.tasks, func(t *Task) bool { return t.ID == id })
}

// SubsectionIndex returns the position of the subsection, or -1
func (s *Section) SubsectionIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.children.subsections, func(c *Section) bool { return c.ID == id })
}

// InsertTask places t at index, shifting later tasks. index may equal the
// current length to append.
func (s *Section) InsertTask(t *Task, index int) error {
	n, err := s.taskCapacity()
	if err != nil {
		return err
	}
	if s.TaskIndex(t.ID) >= 0 {
		return ErrDuplicateChild
	}
	if err := checkIndex(index, n); err != nil {
		return err
	}
	s.insertTaskAt(t, index)
	return nil
}

// AppendTask places t after the last task
func (s *Section) AppendTask(t *Task) error {
	return s.InsertTask(t, len(s.children.tasks))
}

// RemoveTask takes t out of the ordering. A task owned by the section but
// absent from its active list, such as an archived one, is left alone.
func (s *Section) RemoveTask(t *Task) error {
	if t.SectionID != s.ID {
		return ErrWrongOwner
	}
	if s.children.kind != KindTasks {
		return nil
	}
	if !s.children.loaded {
		return ErrChildrenNotLoaded
	}
	if i := s.TaskIndex(t.ID); i >= 0 {
		s.removeTaskAt(i)
	}
	return nil
}

// InsertSubsection places sub at index and reparents it
func (s *Section) InsertSubsection(sub *Section, index int) error {
	if sub.ID == s.ID {
		return ErrHierarchyCycle
	}
	if sub.IsRoot() {
		return ErrRootProtected
	}
	n, err := s.subsectionCapacity()
	if err != nil {
		return err
	}
	if s.SubsectionIndex(sub.ID) >= 0 {
		return ErrDuplicateChild
	}
	if err := checkIndex(index, n); err != nil {
		return err
	}
	s.insertSubsectionAt(sub, index)
	return nil
}

// AppendSubsection places sub after the last subsection
func (s *Section) AppendSubsection(sub *Section) error {
	return s.InsertSubsection(sub, len(s.children.subsections))
}

// RemoveSubsection takes sub out of the ordering
func (s *Section) RemoveSubsection(sub *Section) error {
	if sub.IsRoot() {
		return ErrRootProtected
	}
	if *sub.ParentID != s.ID {
		return ErrWrongOwner
	}
	if s.children.kind != KindSubsections {
		return nil
	}
	if !s.children.loaded {
		return ErrChildrenNotLoaded
	}
	if i := s.SubsectionIndex(sub.ID); i >= 0 {
		s.removeSubsectionAt(i)
	}
	return nil
}

// ShuffleTasks permutes the task ordering uniformly at random
func (s *Section) ShuffleTasks(rng *rand.Rand) error {
	if s.children.kind != KindTasks {
		return nil
	}
	if !s.children.loaded {
		return ErrChildrenNotLoaded
	}
	tasks := s.children.tasks
	rng.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	return nil
}

// taskCapacity returns how many tasks are loaded, or why none can be added.
func (s *Section) taskCapacity() (int, error) {
	switch s.children.kind {
	case KindSubsections:
		return 0, ErrMutualExclusion
	case KindTasks:
		if !s.children.loaded {
			return 0, ErrChildrenNotLoaded
		}
		return len(s.children.tasks), nil
	}
	return 0, nil
}

func (s *Section) subsectionCapacity() (int, error) {
	switch s.children.kind {
	case KindTasks:
		return 0, ErrMutualExclusion
	case KindSubsections:
		if !s.children.loaded {
			return 0, ErrChildrenNotLoaded
		}
		return len(s.children.subsections), nil
	}
	return 0, nil
}

// locateTask finds t in the active ordering.
func (s *Section) locateTask(t *Task) (int, error) {
	if t.SectionID != s.ID || s.children.kind != KindTasks {
		return -1, ErrWrongOwner
	}
	if !s.children.loaded {
		return -1, ErrChildrenNotLoaded
	}
	i := s.TaskIndex(t.ID)
	if i < 0 {
		return -1, ErrWrongOwner
	}
	return i, nil
}

func (s *Section) locateSubsection(sub *Section) (int, error) {
	if sub.IsRoot() {
		return -1, ErrRootProtected
	}
	if *sub.ParentID != s.ID || s.children.kind != KindSubsections {
		return -1, ErrWrongOwner
	}
	if !s.children.loaded {
		return -1, ErrChildrenNotLoaded
	}
	i := s.SubsectionIndex(sub.ID)
	if i < 0 {
		return -1, ErrWrongOwner
	}
	return i, nil
}

func (s *Section) insertTaskAt(t *Task, index int) {
	s.children = Children{
		kind:   KindTasks,
		loaded: true,
		tasks:  slices.Insert(s.children.tasks, index, t),
	}
	t.SectionID = s.ID
}

func (s *Section) removeTaskAt(i int) {
	s.children.tasks = slices.Delete(s.children.tasks, i, i+1)
	if len(s.children.tasks) == 0 {
		s.children = EmptyChildren()
	}
}

func (s *Section) insertSubsectionAt(sub *Section, index int) {
	s.children = Children{
		kind:        KindSubsections,
		loaded:      true,
		subsections: slices.Insert(s.children.subsections, index, sub),
	}
	parent := s.ID
	sub.ParentID = &parent
}

func (s *Section) removeSubsectionAt(i int) {
	s.children.subsections = slices.Delete(s.children.subsections, i, i+1)
	if len(s.children.subsections) == 0 {
		s.children = EmptyChildren()
	}
}

func checkIndex(index, length int) error {
	if index < 0 || index > length {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrIndexOutOfRange, index, length)
	}
	return nil
}
