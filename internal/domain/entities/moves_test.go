package entities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
)

func TestMoveTask_BetweenSections(t *testing.T) {
	f := newFixture(t)
	root := f.root()
	from, tasks := f.sectionWithTasks(root, "a", "b", "c")
	to, _ := f.sectionWithTasks(root, "x", "y")

	require.NoError(t, entities.MoveTask(tasks[1], from, to, 1))

	assert.Equal(t, []string{"a", "c"}, titles(from.Tasks()))
	assert.Equal(t, []string{"x", "b", "y"}, titles(to.Tasks()))
	assert.Equal(t, to.ID, tasks[1].SectionID)
	assertConsistent(t, from)
	assertConsistent(t, to)
}

func TestMoveTask_LastTaskEmptiesSource(t *testing.T) {
	f := newFixture(t)
	root := f.root()
	from, tasks := f.sectionWithTasks(root, "a")
	to := f.section(root, "empty")

	require.NoError(t, entities.MoveTask(tasks[0], from, to, 0))
	assert.Equal(t, entities.KindEmpty, from.Kind())
	assert.True(t, to.HasTasks())
}

func TestMoveTask_Reorder(t *testing.T) {
	f := newFixture(t)
	s, tasks := f.sectionWithTasks(f.root(), "a", "b", "c", "d")

	require.NoError(t, entities.MoveTask(tasks[0], s, s, 3))
	assert.Equal(t, []string{"b", "c", "d", "a"}, titles(s.Tasks()))

	require.NoError(t, entities.MoveTask(tasks[3], s, s, 0))
	assert.Equal(t, []string{"d", "b", "c", "a"}, titles(s.Tasks()))
	assertConsistent(t, s)

	err := entities.MoveTask(tasks[0], s, s, 4)
	assert.ErrorIs(t, err, entities.ErrIndexOutOfRange)
	assert.Equal(t, []string{"d", "b", "c", "a"}, titles(s.Tasks()))
}

func TestMoveTask_Rejections(t *testing.T) {
	f := newFixture(t)
	root := f.root()

	t.Run("wrong source", func(t *testing.T) {
		from, tasks := f.sectionWithTasks(root, "a")
		other, _ := f.sectionWithTasks(root, "b")
		to := f.section(root, "to")
		assert.ErrorIs(t, entities.MoveTask(tasks[0], other, to, 0), entities.ErrWrongOwner)
		assert.Len(t, from.Tasks(), 1)
	})

	t.Run("target has subsections", func(t *testing.T) {
		from, tasks := f.sectionWithTasks(root, "a")
		to := f.section(root, "parent")
		require.NoError(t, to.AppendSubsection(f.section(to, "child")))

		err := entities.MoveTask(tasks[0], from, to, 0)
		assert.ErrorIs(t, err, entities.ErrMutualExclusion)
		assert.Equal(t, []string{"a"}, titles(from.Tasks()))
		assert.Equal(t, from.ID, tasks[0].SectionID)
	})

	t.Run("index past end", func(t *testing.T) {
		from, tasks := f.sectionWithTasks(root, "a")
		to, _ := f.sectionWithTasks(root, "x")
		err := entities.MoveTask(tasks[0], from, to, 2)
		assert.ErrorIs(t, err, entities.ErrIndexOutOfRange)
		assert.Len(t, from.Tasks(), 1)
		assert.Len(t, to.Tasks(), 1)
	})
}

func TestMoveSection(t *testing.T) {
	f := newFixture(t)
	root := f.root()
	a := f.section(root, "a")
	b := f.section(root, "b")
	require.NoError(t, root.AppendSubsection(a))
	require.NoError(t, root.AppendSubsection(b))
	child := f.section(a, "child")
	require.NoError(t, a.AppendSubsection(child))

	require.NoError(t, entities.MoveSection(child, a, b, 0))
	assert.Equal(t, b.ID, *child.ParentID)
	assert.Equal(t, entities.KindEmpty, a.Kind())
	assert.True(t, b.HasSubsections())
	assertConsistent(t, a)
	assertConsistent(t, b)

	require.NoError(t, entities.MoveSection(b, root, root, 0))
	assert.Equal(t, []string{"b", "a"}, []string{root.Subsections()[0].Title, root.Subsections()[1].Title})
}

func TestMoveSection_Rejections(t *testing.T) {
	f := newFixture(t)
	root := f.root()
	a := f.section(root, "a")
	require.NoError(t, root.AppendSubsection(a))
	withTasks, _ := f.sectionWithTasks(root, "t")
	require.NoError(t, root.AppendSubsection(withTasks))

	assert.ErrorIs(t, entities.MoveSection(root, root, a, 0), entities.ErrRootProtected)
	assert.ErrorIs(t, entities.MoveSection(a, root, a, 0), entities.ErrHierarchyCycle)
	assert.ErrorIs(t, entities.MoveSection(a, withTasks, root, 0), entities.ErrWrongOwner)
	assert.ErrorIs(t, entities.MoveSection(a, root, withTasks, 0), entities.ErrMutualExclusion)
	assert.ErrorIs(t, entities.MoveSection(a, root, root, 2), entities.ErrIndexOutOfRange)

	assert.Len(t, root.Subsections(), 2)
	assert.Equal(t, root.ID, *a.ParentID)
	assertConsistent(t, root)
}

func TestToggleTaskCompleted_AutoArchiveRemovesFromOrdering(t *testing.T) {
	f := newFixture(t)
	s, tasks := f.sectionWithTasks(f.root(), "a", "b", "c")

	require.NoError(t, entities.ToggleTaskCompleted(s, tasks[1], true, day("2024-03-10")))

	assert.True(t, tasks[1].IsCompleted)
	assert.True(t, tasks[1].IsArchived)
	assert.Equal(t, []string{"a", "c"}, titles(s.Tasks()))
	assertConsistent(t, s)

	require.NoError(t, entities.ToggleTaskCompleted(s, tasks[1], true, day("2024-03-10")))
	assert.False(t, tasks[1].IsCompleted)
	assert.False(t, tasks[1].IsArchived)
	assert.Equal(t, []string{"a", "c", "b"}, titles(s.Tasks()), "unarchived tasks are appended")
	assertConsistent(t, s)
}

func TestToggleTaskCompleted_RecurringStaysInPlace(t *testing.T) {
	f := newFixture(t)
	s, tasks := f.sectionWithTasks(f.root(), "a", "b")
	require.NoError(t, tasks[0].Reschedule(ptr(day("2024-03-01")), &entities.RecurrenceRule{Period: 1, Unit: dates.Weeks}))

	require.NoError(t, entities.ToggleTaskCompleted(s, tasks[0], true, day("2024-03-10")))
	assert.Equal(t, day("2024-03-08"), *tasks[0].DueDate)
	assert.False(t, tasks[0].IsArchived)
	assert.Equal(t, []string{"a", "b"}, titles(s.Tasks()))
}

func TestToggleTaskCompleted_NoAutoArchive(t *testing.T) {
	f := newFixture(t)
	s, tasks := f.sectionWithTasks(f.root(), "a")

	require.NoError(t, entities.ToggleTaskCompleted(s, tasks[0], false, day("2024-03-10")))
	assert.True(t, tasks[0].IsCompleted)
	assert.Equal(t, []string{"a"}, titles(s.Tasks()))
}

func TestToggleTaskCompleted_WrongOwner(t *testing.T) {
	f := newFixture(t)
	root := f.root()
	_, tasks := f.sectionWithTasks(root, "a")
	other := f.section(root, "other")

	err := entities.ToggleTaskCompleted(other, tasks[0], true, day("2024-03-10"))
	assert.ErrorIs(t, err, entities.ErrWrongOwner)
	assert.False(t, tasks[0].IsCompleted)
}

func TestToggleTaskArchived(t *testing.T) {
	f := newFixture(t)
	s, tasks := f.sectionWithTasks(f.root(), "a", "b")

	require.NoError(t, entities.ToggleTaskArchived(s, tasks[0]))
	assert.True(t, tasks[0].IsArchived)
	assert.False(t, tasks[0].IsCompleted)
	assert.Equal(t, []string{"b"}, titles(s.Tasks()))

	require.NoError(t, entities.ToggleTaskArchived(s, tasks[1]))
	assert.Equal(t, entities.KindEmpty, s.Kind())

	require.NoError(t, entities.ToggleTaskArchived(s, tasks[0]))
	assert.Equal(t, []string{"a"}, titles(s.Tasks()))
	assertConsistent(t, s)
}

func TestToggleTaskArchived_UnloadedSection(t *testing.T) {
	f := newFixture(t)
	s, tasks := f.sectionWithTasks(f.root(), "a")
	children, err := entities.UnloadedChildren(true, false)
	require.NoError(t, err)
	s.SetChildren(children)

	err = entities.ToggleTaskArchived(s, tasks[0])
	assert.ErrorIs(t, err, entities.ErrChildrenNotLoaded)
	assert.False(t, tasks[0].IsArchived)
}
