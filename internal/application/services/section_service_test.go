package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

func TestSectionService_CreateSectionDefaultsToRoot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, root := e.account(t, "ann@example.com")

	inbox := e.section(t, userID, "inbox", nil)
	require.NotNil(t, inbox.ParentID)
	assert.Equal(t, root.ID, *inbox.ParentID)

	work := e.section(t, userID, "work", &root.ID)
	nested := e.section(t, userID, "deep", &work.ID)
	assert.Equal(t, work.ID, *nested.ParentID)

	got, err := e.sections.GetSection(ctx, userID, root.ID)
	require.NoError(t, err)
	require.Len(t, got.Subsections(), 2)
	assert.Equal(t, "inbox", got.Subsections()[0].Title)
	assert.Equal(t, "work", got.Subsections()[1].Title)

	_, err = e.sections.CreateSection(ctx, userID, ports.CreateSectionRequest{Title: "  "})
	assert.ErrorIs(t, err, entities.ErrEmptyTitle)
}

func TestSectionService_MutualExclusion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	e.task(t, userID, inbox.ID, "a")

	_, err := e.sections.CreateSection(ctx, userID, ports.CreateSectionRequest{Title: "sub", ParentID: &inbox.ID})
	assert.ErrorIs(t, err, entities.ErrMutualExclusion)

	work := e.section(t, userID, "work", nil)
	e.section(t, userID, "sub", &work.ID)
	_, err = e.sections.CreateTask(ctx, userID, ports.CreateTaskRequest{SectionID: work.ID, Title: "x"})
	assert.ErrorIs(t, err, entities.ErrMutualExclusion)
}

func TestSectionService_Ownership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ann, _ := e.account(t, "ann@example.com")
	bob, _ := e.account(t, "bob@example.com")
	inbox := e.section(t, ann, "inbox", nil)
	task := e.task(t, ann, inbox.ID, "secret")

	_, err := e.sections.GetSection(ctx, bob, inbox.ID)
	assert.ErrorIs(t, err, entities.ErrForbidden)
	_, err = e.sections.CreateTask(ctx, bob, ports.CreateTaskRequest{SectionID: inbox.ID, Title: "x"})
	assert.ErrorIs(t, err, entities.ErrForbidden)
	_, err = e.sections.ToggleTaskCompleted(ctx, bob, task.ID, nil)
	assert.ErrorIs(t, err, entities.ErrForbidden)
	assert.ErrorIs(t, e.sections.RemoveTask(ctx, bob, task.ID), entities.ErrForbidden)

	assert.Equal(t, []string{"secret"}, e.titles(t, ann, inbox.ID))
}

func TestSectionService_MoveTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	later := e.section(t, userID, "later", nil)
	a := e.task(t, userID, inbox.ID, "a")
	e.task(t, userID, inbox.ID, "b")
	c := e.task(t, userID, inbox.ID, "c")

	require.NoError(t, e.sections.MoveTask(ctx, userID, ports.MoveTaskRequest{TaskID: c.ID, SectionToID: inbox.ID, Index: 0}))
	assert.Equal(t, []string{"c", "a", "b"}, e.titles(t, userID, inbox.ID))

	require.NoError(t, e.sections.MoveTask(ctx, userID, ports.MoveTaskRequest{TaskID: a.ID, SectionToID: later.ID, Index: 0}))
	assert.Equal(t, []string{"c", "b"}, e.titles(t, userID, inbox.ID))
	assert.Equal(t, []string{"a"}, e.titles(t, userID, later.ID))

	moved, err := e.tasks.GetTask(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, later.ID, moved.SectionID)

	err = e.sections.MoveTask(ctx, userID, ports.MoveTaskRequest{TaskID: c.ID, SectionToID: later.ID, Index: 5})
	assert.ErrorIs(t, err, entities.ErrIndexOutOfRange)
	assert.Equal(t, []string{"c", "b"}, e.titles(t, userID, inbox.ID))
	assert.Equal(t, 1, e.recorder.seen["move_task:error"])
}

func TestSectionService_MoveSection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, root := e.account(t, "ann@example.com")
	work := e.section(t, userID, "work", nil)
	home := e.section(t, userID, "home", nil)
	deep := e.section(t, userID, "deep", &work.ID)

	err := e.sections.MoveSection(ctx, userID, ports.MoveSectionRequest{SectionID: work.ID, ToParentID: deep.ID})
	assert.ErrorIs(t, err, entities.ErrHierarchyCycle)
	err = e.sections.MoveSection(ctx, userID, ports.MoveSectionRequest{SectionID: work.ID, ToParentID: work.ID})
	assert.ErrorIs(t, err, entities.ErrHierarchyCycle)
	err = e.sections.MoveSection(ctx, userID, ports.MoveSectionRequest{SectionID: root.ID, ToParentID: work.ID})
	assert.ErrorIs(t, err, entities.ErrRootProtected)

	require.NoError(t, e.sections.MoveSection(ctx, userID, ports.MoveSectionRequest{SectionID: home.ID, ToParentID: root.ID, Index: 0}))
	top, err := e.sections.GetSection(ctx, userID, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "work"}, sectionTitles(top.Subsections()))

	require.NoError(t, e.sections.MoveSection(ctx, userID, ports.MoveSectionRequest{SectionID: deep.ID, ToParentID: home.ID, Index: 0}))
	moved, err := e.sections.GetSection(ctx, userID, deep.ID)
	require.NoError(t, err)
	assert.Equal(t, home.ID, *moved.ParentID)

	old, err := e.sections.GetSection(ctx, userID, work.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.KindEmpty, old.Kind())
}

func TestSectionService_ToggleTaskCompleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	a := e.task(t, userID, inbox.ID, "a")
	e.task(t, userID, inbox.ID, "b")

	section, err := e.sections.ToggleTaskCompleted(ctx, userID, a.ID, nil)
	require.NoError(t, err)
	assert.Len(t, section.Tasks(), 1)
	assert.Equal(t, []string{"b"}, e.titles(t, userID, inbox.ID))

	archived, err := e.tasks.GetArchivedTasks(ctx, userID)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.True(t, archived[0].IsCompleted)

	section, err = e.sections.ToggleTaskCompleted(ctx, userID, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, sectionTaskTitles(section))
	assert.Equal(t, []string{"b", "a"}, e.titles(t, userID, inbox.ID))

	// without auto-archive the task stays in place
	_, err = e.sections.ToggleTaskCompleted(ctx, userID, a.ID, ptr(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, e.titles(t, userID, inbox.ID))
	got, err := e.tasks.GetTask(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.False(t, got.IsArchived)
}

func TestSectionService_ToggleRecurringTaskAdvancesDueDate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	task, err := e.sections.CreateTask(ctx, userID, ports.CreateTaskRequest{
		SectionID:  inbox.ID,
		Title:      "rent",
		DueTo:      ptr("2024-01-31"),
		Recurrence: &ports.RecurrenceRequest{Period: 1, Type: "months"},
	})
	require.NoError(t, err)

	section, err := e.sections.ToggleTaskCompleted(ctx, userID, task.ID, nil)
	require.NoError(t, err)
	require.Len(t, section.Tasks(), 1)
	got := section.Tasks()[0]
	assert.False(t, got.IsCompleted)
	assert.False(t, got.IsArchived)
	assert.Equal(t, "2024-02-29", got.DueDate.Format("2006-01-02"))
}

func TestSectionService_ToggleTaskArchived(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	a := e.task(t, userID, inbox.ID, "a")
	e.task(t, userID, inbox.ID, "b")

	_, err := e.sections.ToggleTaskArchived(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, e.titles(t, userID, inbox.ID))

	_, err = e.sections.ToggleTaskArchived(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, e.titles(t, userID, inbox.ID))
}

func TestSectionService_CreateTasksBulkIsAtomic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)

	_, err := e.sections.CreateTasksBulk(ctx, userID, []ports.CreateTaskRequest{
		{SectionID: inbox.ID, Title: "ok"},
		{SectionID: inbox.ID, Title: "bad", Recurrence: &ports.RecurrenceRequest{Period: 1, Type: "days"}},
	})
	assert.ErrorIs(t, err, entities.ErrRecurrenceRequiresDueDate)
	assert.Empty(t, e.titles(t, userID, inbox.ID))

	created, err := e.sections.CreateTasksBulk(ctx, userID, []ports.CreateTaskRequest{
		{SectionID: inbox.ID, Title: "one"},
		{SectionID: inbox.ID, Title: "two"},
	})
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Equal(t, []string{"one", "two"}, e.titles(t, userID, inbox.ID))
}

func TestSectionService_RemoveTaskDeletesAttachments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	a := e.task(t, userID, inbox.ID, "a")
	e.task(t, userID, inbox.ID, "b")

	info, err := e.tasks.RequestAttachmentUpload(ctx, userID, ports.AttachmentUploadRequest{TaskID: a.ID, AESKeyB64: "a2V5", AESIVB64: "aXY="})
	require.NoError(t, err)
	key := info.PostFields["key"]

	require.NoError(t, e.sections.RemoveTask(ctx, userID, a.ID))
	assert.Equal(t, []string{"b"}, e.titles(t, userID, inbox.ID))
	assert.Equal(t, []string{key}, e.storage.deleted)

	_, err = e.tasks.GetTask(ctx, userID, a.ID)
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)
}

func TestSectionService_DeleteSection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, root := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	a := e.task(t, userID, inbox.ID, "a")

	assert.ErrorIs(t, e.sections.DeleteSection(ctx, userID, root.ID), entities.ErrRootProtected)
	assert.ErrorIs(t, e.sections.DeleteSection(ctx, userID, inbox.ID), entities.ErrSectionNotEmpty)

	_, err := e.sections.ToggleTaskArchived(ctx, userID, a.ID)
	require.NoError(t, err)
	require.NoError(t, e.sections.DeleteSection(ctx, userID, inbox.ID))

	_, err = e.sections.GetSection(ctx, userID, inbox.ID)
	assert.ErrorIs(t, err, entities.ErrSectionNotFound)
	_, err = e.tasks.GetTask(ctx, userID, a.ID)
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)

	top, err := e.sections.GetSection(ctx, userID, root.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.KindEmpty, top.Kind())
}

func TestSectionService_UpdateSection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, root := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)

	got, err := e.sections.UpdateSection(ctx, userID, inbox.ID, ports.UpdateSectionRequest{Title: ptr("today")})
	require.NoError(t, err)
	assert.Equal(t, "today", got.Title)

	_, err = e.sections.UpdateSection(ctx, userID, root.ID, ports.UpdateSectionRequest{Title: ptr("top")})
	assert.ErrorIs(t, err, entities.ErrRootProtected)
}

func TestSectionService_ListSections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	work := e.section(t, userID, "work", nil)
	e.section(t, userID, "inbox", nil)
	e.section(t, userID, "deep", &work.ID)

	flat, err := e.sections.ListSections(ctx, userID, false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{entities.RootSectionTitle, "work", "deep", "inbox"}, sectionTitles(flat))

	leaves, err := e.sections.ListSections(ctx, userID, true, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep", "inbox"}, sectionTitles(leaves))

	roots, err := e.sections.ListSections(ctx, userID, false, true)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, []string{"work", "inbox"}, sectionTitles(roots[0].Subsections()))
}

func TestSectionService_ShuffleSectionKeepsTasks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	userID, _ := e.account(t, "ann@example.com")
	inbox := e.section(t, userID, "inbox", nil)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		e.task(t, userID, inbox.ID, title)
	}

	section, err := e.sections.ShuffleSection(ctx, userID, inbox.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, sectionTaskTitles(section))
	assert.Equal(t, sectionTaskTitles(section), e.titles(t, userID, inbox.ID))
}

func sectionTitles(sections []*entities.Section) []string {
	out := []string{}
	for _, s := range sections {
		out = append(out, s.Title)
	}
	return out
}

func sectionTaskTitles(s *entities.Section) []string {
	out := []string{}
	for _, t := range s.Tasks() {
		out = append(out, t.Title)
	}
	return out
}
