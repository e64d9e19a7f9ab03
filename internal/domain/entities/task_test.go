package entities_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
)

func ptr[T any](v T) *T { return &v }

func TestNewTask(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)
	rule, err := entities.NewRecurrenceRule(1, dates.Weeks, false)
	require.NoError(t, err)

	task, err := entities.NewTask(entities.TaskParams{
		UserID:     testUser,
		Title:      "water plants",
		DueDate:    &due,
		Recurrence: &rule,
	}, testClock, f.ids)
	require.NoError(t, err)

	assert.Equal(t, day("2024-03-12"), *task.DueDate)
	assert.False(t, task.IsCompleted)
	assert.False(t, task.IsArchived)
	assert.True(t, task.IsRecurring())
	assert.Equal(t, testNow, task.CreatedAt)
}

func TestNewTask_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		params entities.TaskParams
		want   error
	}{
		{
			name:   "empty title",
			params: entities.TaskParams{Title: ""},
			want:   entities.ErrEmptyTitle,
		},
		{
			name: "recurrence without due date",
			params: entities.TaskParams{
				Title:      "x",
				Recurrence: &entities.RecurrenceRule{Period: 1, Unit: dates.Days},
			},
			want: entities.ErrRecurrenceRequiresDueDate,
		},
		{
			name: "zero period",
			params: entities.TaskParams{
				Title:      "x",
				DueDate:    ptr(day("2024-01-01")),
				Recurrence: &entities.RecurrenceRule{Period: 0, Unit: dates.Days},
			},
			want: entities.ErrInvalidRecurrence,
		},
		{
			name: "unknown unit",
			params: entities.TaskParams{
				Title:      "x",
				DueDate:    ptr(day("2024-01-01")),
				Recurrence: &entities.RecurrenceRule{Period: 1, Unit: dates.Unit("hours")},
			},
			want: entities.ErrInvalidRecurrence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := entities.NewTask(tt.params, testClock, f.ids)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, task)
		})
	}
}

func TestToggleCompleted_Idempotence(t *testing.T) {
	f := newFixture(t)
	today := day("2024-03-10")

	for _, autoArchive := range []bool{false, true} {
		for _, archived := range []bool{false, true} {
			task := f.task("x")
			task.IsArchived = archived
			before := *task

			task.ToggleCompleted(autoArchive, today)
			task.ToggleCompleted(autoArchive, today)

			if autoArchive && archived {
				// completing archives, un-completing unarchives
				assert.False(t, task.IsArchived)
				continue
			}
			assert.Equal(t, before.IsCompleted, task.IsCompleted)
			assert.Equal(t, before.IsArchived, task.IsArchived)
		}
	}
}

func TestMarkCompleted(t *testing.T) {
	f := newFixture(t)
	today := day("2024-03-10")

	t.Run("plain task archives", func(t *testing.T) {
		task := f.task("x")
		task.MarkCompleted(true, today)
		assert.True(t, task.IsCompleted)
		assert.True(t, task.IsArchived)
	})

	t.Run("plain task without auto archive", func(t *testing.T) {
		task := f.task("x")
		task.MarkCompleted(false, today)
		assert.True(t, task.IsCompleted)
		assert.False(t, task.IsArchived)
	})

	t.Run("recurring task advances from due date", func(t *testing.T) {
		task := f.task("x")
		require.NoError(t, task.Reschedule(ptr(day("2024-01-31")), &entities.RecurrenceRule{Period: 1, Unit: dates.Months}))
		task.MarkCompleted(true, today)
		assert.False(t, task.IsCompleted)
		assert.False(t, task.IsArchived)
		assert.Equal(t, day("2024-02-29"), *task.DueDate)
	})

	t.Run("flexible recurring task advances from today", func(t *testing.T) {
		task := f.task("x")
		require.NoError(t, task.Reschedule(ptr(day("2024-01-01")), &entities.RecurrenceRule{Period: 3, Unit: dates.Days, FlexibleMode: true}))
		task.ToggleCompleted(false, today)
		assert.Equal(t, day("2024-03-13"), *task.DueDate)
		assert.False(t, task.IsCompleted)
	})
}

func TestArchiveTransitions(t *testing.T) {
	f := newFixture(t)
	task := f.task("x")
	task.Archive()
	assert.True(t, task.IsArchived)
	task.ToggleArchived()
	assert.False(t, task.IsArchived)
	task.ToggleArchived()
	task.Unarchive()
	assert.False(t, task.IsArchived)
}

func TestAttachments(t *testing.T) {
	f := newFixture(t)
	task := f.task("x")

	a := entities.NewAttachment(uuid.Nil, "key", "iv", "s3-key-1", testClock, f.ids)
	b := entities.NewAttachment(uuid.Nil, "key", "iv", "s3-key-2", testClock, f.ids)
	task.AddAttachment(a)
	task.AddAttachment(b)
	require.Len(t, task.Attachments, 2)
	assert.Equal(t, task.ID, task.Attachments[0].TaskID)

	found, ok := task.FindAttachment(b.ID)
	require.True(t, ok)
	assert.Equal(t, "s3-key-2", found.StorageKey)

	removed, err := task.RemoveAttachment(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3-key-1", removed.StorageKey)
	assert.Len(t, task.Attachments, 1)

	_, err = task.RemoveAttachment(a.ID)
	assert.ErrorIs(t, err, entities.ErrAttachmentNotFound)
	assert.Len(t, task.Attachments, 1)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	task := f.task("x")

	err := task.Reschedule(nil, &entities.RecurrenceRule{Period: 1, Unit: dates.Days})
	assert.ErrorIs(t, err, entities.ErrRecurrenceRequiresDueDate)
	assert.Nil(t, task.Recurrence)

	err = task.Reschedule(ptr(day("2024-05-01")), &entities.RecurrenceRule{Period: -2, Unit: dates.Days})
	assert.ErrorIs(t, err, entities.ErrInvalidRecurrence)
	assert.Nil(t, task.DueDate)

	require.NoError(t, task.Reschedule(ptr(day("2024-05-01")), nil))
	assert.Equal(t, day("2024-05-01"), *task.DueDate)
}

func TestApply(t *testing.T) {
	f := newFixture(t)
	task := f.task("x")
	require.NoError(t, task.Reschedule(ptr(day("2024-05-01")), &entities.RecurrenceRule{Period: 1, Unit: dates.Days}))

	t.Run("clearing due date alone is rejected", func(t *testing.T) {
		err := task.Apply(entities.TaskPatch{DueDate: entities.Clear[time.Time]()})
		assert.ErrorIs(t, err, entities.ErrRecurrenceRequiresDueDate)
		assert.NotNil(t, task.DueDate)
		assert.NotNil(t, task.Recurrence)
	})

	t.Run("clearing both at once succeeds", func(t *testing.T) {
		c := task.Clone()
		err := c.Apply(entities.TaskPatch{
			DueDate:    entities.Clear[time.Time](),
			Recurrence: entities.Clear[entities.RecurrenceRule](),
		})
		require.NoError(t, err)
		assert.Nil(t, c.DueDate)
		assert.Nil(t, c.Recurrence)
		assert.NotNil(t, task.DueDate, "clone must not share state")
	})

	t.Run("partial fields", func(t *testing.T) {
		err := task.Apply(entities.TaskPatch{
			Title:       entities.SetTo("renamed"),
			Description: entities.SetTo("notes"),
		})
		require.NoError(t, err)
		assert.Equal(t, "renamed", task.Title)
		assert.Equal(t, "notes", *task.Description)
		assert.Equal(t, day("2024-05-01"), *task.DueDate)
	})

	t.Run("null title rejected", func(t *testing.T) {
		err := task.Apply(entities.TaskPatch{Title: entities.Clear[string]()})
		assert.ErrorIs(t, err, entities.ErrEmptyTitle)
		assert.Equal(t, "renamed", task.Title)
	})
}

func TestChangeUnmarshalJSON(t *testing.T) {
	var body struct {
		Title       entities.Change[string] `json:"title"`
		Description entities.Change[string] `json:"description"`
		Content     entities.Change[string] `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","description":null}`), &body))

	assert.True(t, body.Title.Set)
	assert.Equal(t, "x", *body.Title.Value)
	assert.True(t, body.Description.Set)
	assert.Nil(t, body.Description.Value)
	assert.False(t, body.Content.Set)
}

func TestSequentialIDs(t *testing.T) {
	ids := &entities.SequentialIDs{}
	assert.Equal(t, uuid.MustParse("00000000-0000-0000-0000-000000000001"), ids.NewID())
	assert.Equal(t, uuid.MustParse("00000000-0000-0000-0000-000000000002"), ids.NewID())
}
