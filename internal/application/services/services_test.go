package services_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/planty/core/internal/adapters/repository/memory"
	"github.com/planty/core/internal/application/services"
	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

var now = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
	failOn  string
}

func (f *fakeStorage) PresignUpload(ctx context.Context, key string) (*ports.UploadTicket, error) {
	return &ports.UploadTicket{
		URL:       "http://storage.test/attachments",
		Fields:    map[string]string{"key": key},
		ExpiresAt: now.Add(time.Hour),
	}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failOn {
		return fmt.Errorf("storage unavailable")
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) URL(key string) string {
	return "http://storage.test/attachments/" + key
}

type countingRecorder struct {
	mu   sync.Mutex
	seen map[string]int
}

func (r *countingRecorder) Record(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.seen[op+":"+outcome]++
}

type env struct {
	store    *memory.Store
	storage  *fakeStorage
	recorder *countingRecorder
	users    *services.UserService
	auth     *services.AuthService
	sections *services.SectionService
	tasks    *services.TaskService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := entities.FixedClock{T: now}
	ids := &entities.SequentialIDs{}
	log := logger.NewNop()

	e := &env{
		store:    memory.NewStore(),
		storage:  &fakeStorage{},
		recorder: &countingRecorder{seen: map[string]int{}},
	}
	e.users = services.NewUserService(e.store, clock, ids, log)
	e.auth = services.NewAuthService(e.users, e.store, config.JWTConfig{
		Secret:           "test-secret",
		ExpiresIn:        time.Hour,
		RefreshExpiresIn: 24 * time.Hour,
		Issuer:           "planty-test",
	}, clock, log)
	e.sections = services.NewSectionService(services.SectionServiceDeps{
		Tx:       e.store,
		Recorder: e.recorder,
		Storage:  e.storage,
		Clock:    clock,
		IDs:      ids,
		Rand:     rand.New(rand.NewPCG(1, 2)),
	}, config.TasksConfig{AutoArchive: true}, log)
	e.tasks = services.NewTaskService(e.store, e.storage, e.recorder, clock, ids, log)
	return e
}

// account registers a user and returns its ID and root section
func (e *env) account(t *testing.T, email string) (uuid.UUID, *entities.Section) {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), email, "correct horse")
	require.NoError(t, err)
	root, err := e.sections.CreateRootSection(context.Background(), user.ID)
	require.NoError(t, err)
	return user.ID, root
}

func (e *env) section(t *testing.T, userID uuid.UUID, title string, parent *uuid.UUID) *entities.Section {
	t.Helper()
	s, err := e.sections.CreateSection(context.Background(), userID, ports.CreateSectionRequest{Title: title, ParentID: parent})
	require.NoError(t, err)
	return s
}

func (e *env) task(t *testing.T, userID, sectionID uuid.UUID, title string) *entities.Task {
	t.Helper()
	task, err := e.sections.CreateTask(context.Background(), userID, ports.CreateTaskRequest{SectionID: sectionID, Title: title})
	require.NoError(t, err)
	return task
}

func (e *env) titles(t *testing.T, userID, sectionID uuid.UUID) []string {
	t.Helper()
	s, err := e.sections.GetSection(context.Background(), userID, sectionID)
	require.NoError(t, err)
	out := []string{}
	for _, task := range s.Tasks() {
		out = append(out, task.Title)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
