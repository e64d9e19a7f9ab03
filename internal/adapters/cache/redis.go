// Package cache keeps each user's flat section list in Redis
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/planty/core/internal/domain/entities"
	"github.com/planty/core/internal/infrastructure/config"
	"github.com/planty/core/internal/infrastructure/logger"
)

type cachedSection struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Title          string     `json:"title"`
	ParentID       *uuid.UUID `json:"parent_id"`
	HasTasks       bool       `json:"has_tasks"`
	HasSubsections bool       `json:"has_subsections"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SectionCache implements ports.SectionCache on Redis. Failures are
// logged and treated as misses.
type SectionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 3,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.GetAddr(), err)
	}
	return client, nil
}

// NewSectionCache creates a cache with the given entry lifetime
func NewSectionCache(client *redis.Client, ttl time.Duration, logger *logger.Logger) *SectionCache {
	return &SectionCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("section_cache"),
	}
}

func key(userID uuid.UUID) string {
	return fmt.Sprintf("sections:user:%s", userID)
}

func (c *SectionCache) GetSections(ctx context.Context, userID uuid.UUID) ([]*entities.Section, bool) {
	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Failed to read section cache", "error", err, "user_id", userID)
		return nil, false
	}

	sections, err := decode(raw)
	if err != nil {
		c.logger.Warn("Dropping unreadable section cache entry", "error", err, "user_id", userID)
		c.Invalidate(ctx, userID)
		return nil, false
	}
	return sections, true
}

func (c *SectionCache) SetSections(ctx context.Context, userID uuid.UUID, sections []*entities.Section) {
	raw, err := encode(sections)
	if err != nil {
		c.logger.Warn("Failed to encode section cache entry", "error", err, "user_id", userID)
		return
	}
	if err := c.client.Set(ctx, key(userID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write section cache", "error", err, "user_id", userID)
	}
}

func (c *SectionCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate section cache", "error", err, "user_id", userID)
	}
}

func encode(sections []*entities.Section) ([]byte, error) {
	out := make([]cachedSection, 0, len(sections))
	for _, s := range sections {
		out = append(out, cachedSection{
			ID:             s.ID,
			UserID:         s.UserID,
			Title:          s.Title,
			ParentID:       s.ParentID,
			HasTasks:       s.HasTasks(),
			HasSubsections: s.HasSubsections(),
			CreatedAt:      s.CreatedAt,
		})
	}
	return json.Marshal(out)
}

func decode(raw []byte) ([]*entities.Section, error) {
	var in []cachedSection
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	sections := make([]*entities.Section, 0, len(in))
	for _, c := range in {
		children, err := entities.UnloadedChildren(c.HasTasks, c.HasSubsections)
		if err != nil {
			return nil, err
		}
		sections = append(sections, entities.RestoreSection(entities.Section{
			ID:        c.ID,
			UserID:    c.UserID,
			Title:     c.Title,
			ParentID:  c.ParentID,
			CreatedAt: c.CreatedAt,
		}, children))
	}
	return sections, nil
}
