package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/calendar"
	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/ports"
)

// AttachmentResponse is an attachment with its download URL
type AttachmentResponse struct {
	entities.Attachment
	URL string `json:"url"`
}

// TaskResponse renders due dates as calendar days
type TaskResponse struct {
	*entities.Task
	DueTo       *string              `json:"due_to"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// SectionResponse is a section with whatever children were loaded
type SectionResponse struct {
	ID             uuid.UUID         `json:"id"`
	Title          string            `json:"title"`
	ParentID       *uuid.UUID        `json:"parent_id"`
	Kind           string            `json:"kind"`
	HasTasks       bool              `json:"has_tasks"`
	HasSubsections bool              `json:"has_subsections"`
	CreatedAt      time.Time         `json:"created_at"`
	Tasks          []TaskResponse    `json:"tasks,omitempty"`
	Subsections    []SectionResponse `json:"subsections,omitempty"`
}

// DayResponse lists the tasks due on one day
type DayResponse struct {
	Date  string         `json:"date"`
	Tasks []TaskResponse `json:"tasks"`
}

// AgendaResponse is the result of a tasks-by-date query
type AgendaResponse struct {
	ByDates []DayResponse  `json:"by_dates"`
	Overdue []TaskResponse `json:"overdue"`
}

type BulkCreateTasksRequest struct {
	Tasks []ports.CreateTaskRequest `json:"tasks" validate:"required,min=1,dive"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// presenter builds responses, resolving attachment storage keys to URLs
type presenter struct {
	url func(storageKey string) string
}

func (p presenter) task(t *entities.Task) TaskResponse {
	resp := TaskResponse{Task: t, Attachments: make([]AttachmentResponse, 0, len(t.Attachments))}
	if t.DueDate != nil {
		due := dates.Format(*t.DueDate)
		resp.DueTo = &due
	}
	for _, a := range t.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentResponse{Attachment: a, URL: p.url(a.StorageKey)})
	}
	return resp
}

func (p presenter) tasks(tasks []*entities.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, p.task(t))
	}
	return out
}

func (p presenter) section(s *entities.Section) SectionResponse {
	resp := SectionResponse{
		ID:             s.ID,
		Title:          s.Title,
		ParentID:       s.ParentID,
		Kind:           s.Kind().String(),
		HasTasks:       s.HasTasks(),
		HasSubsections: s.HasSubsections(),
		CreatedAt:      s.CreatedAt,
	}
	if !s.ChildrenLoaded() {
		return resp
	}
	if tasks := s.Tasks(); len(tasks) > 0 {
		resp.Tasks = p.tasks(tasks)
	}
	if subs := s.Subsections(); len(subs) > 0 {
		resp.Subsections = p.sections(subs)
	}
	return resp
}

func (p presenter) sections(sections []*entities.Section) []SectionResponse {
	out := make([]SectionResponse, 0, len(sections))
	for _, s := range sections {
		out = append(out, p.section(s))
	}
	return out
}

func (p presenter) agenda(a *calendar.Agenda) AgendaResponse {
	resp := AgendaResponse{
		ByDates: make([]DayResponse, 0, len(a.Days)),
		Overdue: p.tasks(a.Overdue),
	}
	for _, d := range a.Days {
		resp.ByDates = append(resp.ByDates, DayResponse{Date: dates.Format(d.Date), Tasks: p.tasks(d.Tasks)})
	}
	return resp
}
