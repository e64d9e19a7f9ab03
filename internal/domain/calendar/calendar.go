// Package calendar projects tasks onto calendar days.
package calendar

import (
	"cmp"
	"slices"
	"time"

	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
)

// Day groups the tasks falling due on one date
type Day struct {
	Date  time.Time        `json:"date"`
	Tasks []*entities.Task `json:"tasks"`
}

// Agenda is a run of days plus everything already overdue
type Agenda struct {
	Days    []Day            `json:"by_dates"`
	Overdue []*entities.Task `json:"overdue"`
}

// Count returns the number of task placements across all days
func (a Agenda) Count() int {
	n := 0
	for _, d := range a.Days {
		n += len(d.Tasks)
	}
	return n
}

// OccurrencesOf lists the dates within [notBefore, notAfter] on which the
// task falls due, anchored at its current due date.
func OccurrencesOf(task *entities.Task, notBefore, notAfter time.Time) []time.Time {
	if task.DueDate == nil {
		return nil
	}
	due := dates.Day(*task.DueDate)
	if due.After(dates.Day(notAfter)) {
		return nil
	}
	if task.Recurrence == nil {
		if due.Before(dates.Day(notBefore)) {
			return nil
		}
		return []time.Time{due}
	}
	r := task.Recurrence
	return slices.Collect(dates.Sequence(due, r.Period, r.Unit, notBefore, notAfter))
}

// BucketByDate places every task on the day of its current due date. Days
// run from max(notBefore, today) through notAfter; tasks due before today
// go to Overdue ordered by due date then creation time.
func BucketByDate(tasks []*entities.Task, notBefore, notAfter, today time.Time) (Agenda, error) {
	return build(tasks, notBefore, notAfter, today, func(t *entities.Task, first, last time.Time) []time.Time {
		due := dates.Day(*t.DueDate)
		if due.Before(first) || due.After(last) {
			return nil
		}
		return []time.Time{due}
	})
}

// ExpandOccurrences is BucketByDate with recurring tasks repeated on every
// occurrence inside the window.
func ExpandOccurrences(tasks []*entities.Task, notBefore, notAfter, today time.Time) (Agenda, error) {
	return build(tasks, notBefore, notAfter, today, func(t *entities.Task, first, last time.Time) []time.Time {
		return OccurrencesOf(t, first, last)
	})
}

type placer func(t *entities.Task, first, last time.Time) []time.Time

func build(tasks []*entities.Task, notBefore, notAfter, today time.Time, place placer) (Agenda, error) {
	notBefore, notAfter, today = dates.Day(notBefore), dates.Day(notAfter), dates.Day(today)
	if notBefore.After(notAfter) {
		return Agenda{}, entities.ErrIncorrectDateInterval
	}
	first := dates.Max(notBefore, today)

	agenda := Agenda{Days: []Day{}, Overdue: []*entities.Task{}}
	index := make(map[time.Time]int)
	for d := range dates.Range(first, notAfter) {
		index[d] = len(agenda.Days)
		agenda.Days = append(agenda.Days, Day{Date: d, Tasks: []*entities.Task{}})
	}

	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		if dates.Day(*t.DueDate).Before(today) {
			agenda.Overdue = append(agenda.Overdue, t)
		}
		for _, d := range place(t, first, notAfter) {
			i := index[d]
			agenda.Days[i].Tasks = append(agenda.Days[i].Tasks, t)
		}
	}

	slices.SortStableFunc(agenda.Overdue, func(a, b *entities.Task) int {
		if c := a.DueDate.Compare(*b.DueDate); c != 0 {
			return c
		}
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	return agenda, nil
}
