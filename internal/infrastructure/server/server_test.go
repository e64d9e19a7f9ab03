package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planty/core/internal/adapters/repository/memory"
	"github.com/planty/core/internal/application/services"
	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/infrastructure/metrics"
	"github.com/planty/core/internal/ports"
)

var now = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

type memoryStorage struct{}

func (memoryStorage) PresignUpload(ctx context.Context, key string) (*ports.UploadTicket, error) {
	return &ports.UploadTicket{URL: "http://storage.test/attachments", Fields: map[string]string{"key": key}}, nil
}

func (memoryStorage) Delete(ctx context.Context, key string) error { return nil }

func (memoryStorage) URL(key string) string { return "http://storage.test/attachments/" + key }

func newTestServer(t *testing.T, checks map[string]HealthCheck) *Server {
	t.Helper()
	cfg := &config.Config{
		App:      config.AppConfig{Name: "Planty", Version: "test"},
		Server:   config.ServerConfig{WriteTimeout: 5 * time.Second},
		Database: config.DatabaseConfig{Driver: "memory"},
		JWT: config.JWTConfig{
			Secret:           "test-secret",
			ExpiresIn:        time.Hour,
			RefreshExpiresIn: 24 * time.Hour,
			Issuer:           "planty-test",
		},
		Security: config.SecurityConfig{CORSAllowedOrigins: "*", RateLimitRequests: 1000, RateLimitWindow: time.Minute},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Tasks:    config.TasksConfig{AutoArchive: true},
	}

	store := memory.NewStore()
	clock := entities.FixedClock{T: now}
	ids := &entities.SequentialIDs{}
	log := logger.NewNop()
	m := metrics.New()

	users := services.NewUserService(store, clock, ids, log)
	svc := Services{
		Users: users,
		Auth:  services.NewAuthService(users, store, cfg.JWT, clock, log),
		Sections: services.NewSectionService(services.SectionServiceDeps{
			Tx:       store,
			Recorder: m,
			Storage:  memoryStorage{},
			Clock:    clock,
			IDs:      ids,
			Rand:     rand.New(rand.NewPCG(1, 2)),
		}, cfg.Tasks, log),
		Tasks: services.NewTaskService(store, memoryStorage{}, m, clock, ids, log),
	}

	srv, err := New(cfg, svc, m, checks, log)
	require.NoError(t, err)
	return srv
}

type client struct {
	t     *testing.T
	srv   *Server
	token string
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func register(t *testing.T, srv *Server, email string) *client {
	t.Helper()
	c := &client{t: t, srv: srv}
	rec := c.do(http.MethodPost, "/api/v1/auth/register", ports.RegisterRequest{Email: email, Password: "correct horse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c.token = decode[ports.AuthResponse](t, rec).AccessToken
	return c
}

type sectionBody struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Kind        string        `json:"kind"`
	Tasks       []taskBody    `json:"tasks"`
	Subsections []sectionBody `json:"subsections"`
}

type taskBody struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DueTo       string `json:"due_to"`
	IsCompleted bool   `json:"is_completed"`
	Attachments []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"attachments"`
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	c := register(t, srv, "Gardener@Example.com")

	rec := c.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gardener@example.com", decode[entities.User](t, rec).Email)

	anon := &client{t: t, srv: srv}
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/api/v1/sections", nil).Code)

	dup := anon.do(http.MethodPost, "/api/v1/auth/register", ports.RegisterRequest{Email: "gardener@example.com", Password: "another one"})
	assert.Equal(t, http.StatusConflict, dup.Code)

	bad := anon.do(http.MethodPost, "/api/v1/auth/login", ports.LoginRequest{Email: "gardener@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	ok := anon.do(http.MethodPost, "/api/v1/auth/login", ports.LoginRequest{Email: "gardener@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, ok.Code)
	pair := decode[ports.AuthResponse](t, ok)

	refreshed := anon.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, refreshed.Code)
	reused := anon.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, reused.Code)
}

func TestSectionsAndTasks(t *testing.T) {
	srv := newTestServer(t, nil)
	c := register(t, srv, "gardener@example.com")

	rec := c.do(http.MethodPost, "/api/v1/sections/root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[sectionBody](t, rec)
	assert.Equal(t, "empty", root.Kind)

	rec = c.do(http.MethodPost, "/api/v1/sections", ports.CreateSectionRequest{Title: "Garden"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	garden := decode[sectionBody](t, rec)

	rec = c.do(http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"section_id": garden.ID,
		"title":      "Water the tomatoes",
		"due_to":     "2024-05-12",
		"recurrence": map[string]interface{}{"period": 1, "type": "weeks"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	water := decode[taskBody](t, rec)
	assert.Equal(t, "2024-05-12", water.DueTo)

	rec = c.do(http.MethodPost, "/api/v1/tasks/bulk", map[string]interface{}{
		"tasks": []map[string]interface{}{
			{"section_id": garden.ID, "title": "Weed"},
			{"section_id": garden.ID, "title": "Mulch"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]taskBody](t, rec), 2)

	t.Run("section with tasks takes no subsections", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/sections", map[string]interface{}{"title": "Beds", "parent_id": garden.ID})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing title is a validation error", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/tasks", map[string]interface{}{"section_id": garden.ID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("move out of range", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/tasks/move", map[string]interface{}{
			"task_id": water.ID, "section_to_id": garden.ID, "index": 9,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("move within section", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/tasks/move", map[string]interface{}{
			"task_id": water.ID, "section_to_id": garden.ID, "index": 2,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = c.do(http.MethodGet, "/api/v1/sections/"+garden.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[sectionBody](t, rec)
		require.Len(t, got.Tasks, 3)
		assert.Equal(t, []string{"Weed", "Mulch", "Water the tomatoes"},
			[]string{got.Tasks[0].Title, got.Tasks[1].Title, got.Tasks[2].Title})
	})

	t.Run("calendar", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/v1/tasks/by-date?not_before=2024-05-10&not_after=2024-05-31&expand=true", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var agenda struct {
			ByDates []struct {
				Date  string     `json:"date"`
				Tasks []taskBody `json:"tasks"`
			} `json:"by_dates"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agenda))
		var days []string
		for _, d := range agenda.ByDates {
			if len(d.Tasks) > 0 {
				days = append(days, d.Date)
			}
		}
		assert.Equal(t, []string{"2024-05-12", "2024-05-19", "2024-05-26"}, days)

		rec = c.do(http.MethodGet, "/api/v1/tasks/by-date?not_before=2024-05-31&not_after=2024-05-10", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = c.do(http.MethodGet, "/api/v1/tasks/by-date?not_before=someday&not_after=2024-05-10", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("completing a recurring task advances it", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/tasks/"+water.ID+"/toggle-completed", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = c.do(http.MethodGet, "/api/v1/tasks/"+water.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[taskBody](t, rec)
		assert.Equal(t, "2024-05-19", got.DueTo)
		assert.False(t, got.IsCompleted)
	})

	t.Run("partial update clears the due date only with its recurrence", func(t *testing.T) {
		rec := c.do(http.MethodPatch, "/api/v1/tasks/"+water.ID, map[string]interface{}{"due_to": nil})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = c.do(http.MethodPatch, "/api/v1/tasks/"+water.ID, map[string]interface{}{"due_to": nil, "recurrence": nil, "title": "Water"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decode[taskBody](t, rec)
		assert.Equal(t, "Water", got.Title)
		assert.Empty(t, got.DueTo)
	})

	t.Run("search", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/v1/tasks/search?q=mul", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		found := decode[[]taskBody](t, rec)
		require.Len(t, found, 1)
		assert.Equal(t, "Mulch", found[0].Title)
	})

	t.Run("archive and list archived", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/tasks/"+water.ID+"/toggle-archived", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.do(http.MethodGet, "/api/v1/tasks/archived", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		archived := decode[[]taskBody](t, rec)
		require.Len(t, archived, 1)
		assert.Equal(t, water.ID, archived[0].ID)
	})

	t.Run("root is protected", func(t *testing.T) {
		rec := c.do(http.MethodDelete, "/api/v1/sections/"+root.ID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestSectionMoves(t *testing.T) {
	srv := newTestServer(t, nil)
	c := register(t, srv, "gardener@example.com")

	create := func(title string, parent string) sectionBody {
		body := map[string]interface{}{"title": title}
		if parent != "" {
			body["parent_id"] = parent
		}
		rec := c.do(http.MethodPost, "/api/v1/sections", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[sectionBody](t, rec)
	}
	house := create("House", "")
	kitchen := create("Kitchen", house.ID)
	garden := create("Garden", "")

	rec := c.do(http.MethodPost, "/api/v1/sections/move", map[string]interface{}{
		"section_id": house.ID, "to_parent_id": kitchen.ID, "index": 0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/sections/move", map[string]interface{}{
		"section_id": kitchen.ID, "to_parent_id": garden.ID, "index": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/v1/sections?tree=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[[]sectionBody](t, rec)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Subsections, 2)
	assert.Equal(t, "House", tree[0].Subsections[0].Title)
	assert.Equal(t, "Garden", tree[0].Subsections[1].Title)
	require.Len(t, tree[0].Subsections[1].Subsections, 1)
	assert.Equal(t, "Kitchen", tree[0].Subsections[1].Subsections[0].Title)

	rec = c.do(http.MethodGet, "/api/v1/sections?leaves=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var leaves []string
	for _, s := range decode[[]sectionBody](t, rec) {
		leaves = append(leaves, s.Title)
	}
	assert.ElementsMatch(t, []string{"House", "Kitchen"}, leaves)

	rec = c.do(http.MethodDelete, "/api/v1/sections/"+house.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	other := register(t, srv, "neighbour@example.com")
	rec = other.do(http.MethodGet, "/api/v1/sections/"+garden.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttachments(t *testing.T) {
	srv := newTestServer(t, nil)
	c := register(t, srv, "gardener@example.com")

	rec := c.do(http.MethodPost, "/api/v1/sections", ports.CreateSectionRequest{Title: "Garden"})
	require.Equal(t, http.StatusCreated, rec.Code)
	garden := decode[sectionBody](t, rec)
	rec = c.do(http.MethodPost, "/api/v1/tasks", map[string]interface{}{"section_id": garden.ID, "title": "Plan beds"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[taskBody](t, rec)

	rec = c.do(http.MethodPost, "/api/v1/tasks/"+task.ID+"/attachments", map[string]string{
		"aes_key_b64": "a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
		"aes_iv_b64":  "aXZpdml2aXZpdml2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := decode[ports.AttachmentUploadInfo](t, rec)
	assert.Equal(t, "http://storage.test/attachments", info.PostURL)

	rec = c.do(http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[taskBody](t, rec)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, info.AttachmentID.String(), got.Attachments[0].ID)
	assert.Equal(t, "http://storage.test/attachments/"+info.PostFields["key"], got.Attachments[0].URL)

	rec = c.do(http.MethodDelete, "/api/v1/tasks/"+task.ID+"/attachments/"+info.AttachmentID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = c.do(http.MethodDelete, "/api/v1/tasks/"+task.ID+"/attachments/"+info.AttachmentID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodPost, "/api/v1/tasks/"+task.ID+"/attachments", map[string]string{"aes_key_b64": "!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	})
	c := &client{t: t, srv: srv}

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health/detailed", nil).Code)

	user := register(t, srv, "gardener@example.com")
	require.Equal(t, http.StatusOK, user.do(http.MethodPost, "/api/v1/sections/root", nil).Code)

	rec := c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/api/v1/auth/register",status="201"} 1`)
	assert.Contains(t, rec.Body.String(), `planty_operations_total{operation="create_root_section",outcome="ok"}`)
}

func TestReadinessFailure(t *testing.T) {
	srv := newTestServer(t, map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	c := &client{t: t, srv: srv}

	rec := c.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis_not_ready")

	rec = c.do(http.MethodGet, "/health/detailed", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("%q", "connection refused"))
}
