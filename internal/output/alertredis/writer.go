package alertredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"faultgate/pkg/models"
)

// Config configures the Redis alert sink.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Writer pushes alerts onto a Redis list for a downstream notifier.
type Writer struct {
	client *redis.Client
	key    string
}

// NewWriter creates a Redis alert writer and verifies connectivity.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("redis alert key is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis alert sink: %w", err)
	}

	return &Writer{client: client, key: cfg.Key}, nil
}

// WriteAlerts pushes a batch of alerts onto the list.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	ctx := context.Background()
	pipe := w.client.Pipeline()
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", alert.ID, err)
		}
		pipe.RPush(ctx, w.key, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push alerts to redis: %w", err)
	}
	return nil
}

// Close closes Redis resources.
func (w *Writer) Close() error {
	if w == nil || w.client == nil {
		return nil
	}
	return w.client.Close()
}
