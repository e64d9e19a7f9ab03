package calendar

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
)

func d(s string) time.Time {
	t, err := dates.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func task(title string, due string, rule *entities.RecurrenceRule) *entities.Task {
	t := &entities.Task{ID: uuid.New(), Title: title, Recurrence: rule, CreatedAt: time.Unix(0, 0)}
	if due != "" {
		day := d(due)
		t.DueDate = &day
	}
	return t
}

func TestOccurrencesOf(t *testing.T) {
	every3Days := &entities.RecurrenceRule{Period: 3, Unit: dates.Days}

	tests := []struct {
		name      string
		task      *entities.Task
		notBefore string
		notAfter  string
		want      []time.Time
	}{
		{"no due date", task("x", "", nil), "2000-01-01", "2030-01-01", nil},
		{"due after window", task("x", "2031-01-01", nil), "2000-01-01", "2030-01-01", nil},
		{"single in window", task("x", "2024-05-05", nil), "2024-05-01", "2024-05-31", []time.Time{d("2024-05-05")}},
		{"single before window", task("x", "2024-04-05", nil), "2024-05-01", "2024-05-31", nil},
		{
			"recurring every three days",
			task("x", "2001-01-01", every3Days), "1997-12-31", "2001-01-10",
			[]time.Time{d("2001-01-01"), d("2001-01-04"), d("2001-01-07"), d("2001-01-10")},
		},
		{
			"recurring anchored before window",
			task("x", "2001-01-01", every3Days), "2001-01-05", "2001-01-10",
			[]time.Time{d("2001-01-07"), d("2001-01-10")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OccurrencesOf(tt.task, d(tt.notBefore), d(tt.notAfter)))
		})
	}
}

func TestBucketByDate(t *testing.T) {
	today := d("2024-03-10")
	overdueLate := task("overdue late", "2024-03-05", nil)
	overdueEarly := task("overdue early", "2024-03-01", nil)
	dueToday := task("today", "2024-03-10", nil)
	dueLater := task("later", "2024-03-12", &entities.RecurrenceRule{Period: 1, Unit: dates.Days})
	outside := task("outside", "2024-04-01", nil)
	undated := task("undated", "", nil)

	agenda, err := BucketByDate(
		[]*entities.Task{overdueLate, dueToday, dueLater, outside, undated, overdueEarly},
		d("2024-03-01"), d("2024-03-12"), today,
	)
	require.NoError(t, err)

	require.Len(t, agenda.Days, 3, "days before today are not materialized")
	assert.Equal(t, d("2024-03-10"), agenda.Days[0].Date)
	assert.Equal(t, []*entities.Task{dueToday}, agenda.Days[0].Tasks)
	assert.Empty(t, agenda.Days[1].Tasks)
	assert.Equal(t, []*entities.Task{dueLater}, agenda.Days[2].Tasks)
	assert.Equal(t, []*entities.Task{overdueEarly, overdueLate}, agenda.Overdue)
	assert.Equal(t, 2, agenda.Count())
}

func TestBucketByDate_OverdueTieBreaksOnCreation(t *testing.T) {
	older := task("older", "2024-03-01", nil)
	newer := task("newer", "2024-03-01", nil)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	agenda, err := BucketByDate([]*entities.Task{newer, older}, d("2024-03-10"), d("2024-03-10"), d("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, []*entities.Task{older, newer}, agenda.Overdue)
}

func TestBucketByDate_WindowBeforeToday(t *testing.T) {
	agenda, err := BucketByDate([]*entities.Task{task("x", "2024-01-02", nil)}, d("2024-01-01"), d("2024-01-31"), d("2024-03-10"))
	require.NoError(t, err)
	assert.Empty(t, agenda.Days)
	assert.Len(t, agenda.Overdue, 1)
}

func TestBucketByDate_IncorrectInterval(t *testing.T) {
	_, err := BucketByDate(nil, d("2002-12-31"), d("2001-01-01"), d("2001-01-01"))
	assert.ErrorIs(t, err, entities.ErrIncorrectDateInterval)
}

func TestExpandOccurrences(t *testing.T) {
	weekly := task("weekly", "2024-03-04", &entities.RecurrenceRule{Period: 1, Unit: dates.Weeks})
	once := task("once", "2024-03-12", nil)

	agenda, err := ExpandOccurrences([]*entities.Task{weekly, once}, d("2024-03-01"), d("2024-03-25"), d("2024-03-10"))
	require.NoError(t, err)

	var placed []string
	for _, day := range agenda.Days {
		for _, t := range day.Tasks {
			placed = append(placed, dates.Format(day.Date)+" "+t.Title)
		}
	}
	assert.Equal(t, []string{
		"2024-03-11 weekly",
		"2024-03-12 once",
		"2024-03-18 weekly",
		"2024-03-25 weekly",
	}, placed)
	assert.Equal(t, []*entities.Task{weekly}, agenda.Overdue)
}
