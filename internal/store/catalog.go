package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog parses the embedded catalog shipped with the binary.
func DefaultCatalog() (*domain.Catalog, error) {
	var c domain.Catalog
	if err := yaml.Unmarshal(defaultCatalogYAML, &c); err != nil {
		return nil, fmt.Errorf("parse embedded catalog: %w", err)
	}
	return &c, nil
}

// Catalog returns the persisted item/enemy catalog, seeding the embedded
// defaults on first run. A corrupt stored catalog is replaced by the default,
// with a log line so the operator knows their edits were discarded.
func (s *Store) Catalog(ctx context.Context) (*domain.Catalog, error) {
	def, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}

	raw, err := s.rdb.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		if err := s.seedCatalog(ctx, def); err != nil {
			return nil, err
		}
		return def, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get catalog", Err: err}
	}

	var c domain.Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		s.logger.Warn("corrupt catalog, reseeding defaults", zap.Error(err))
		if err := s.seedCatalog(ctx, def); err != nil {
			return nil, err
		}
		return def, nil
	}
	return &c, nil
}

func (s *Store) seedCatalog(ctx context.Context, c *domain.Catalog) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return &domain.StorageError{Op: "encode catalog", Err: err}
	}
	if err := s.rdb.Set(ctx, catalogKey, raw, 0).Err(); err != nil {
		return &domain.StorageError{Op: "seed catalog", Err: err}
	}
	s.logger.Info("catalog seeded",
		zap.Int("items", len(c.Items)),
		zap.Int("enemies", len(c.Enemies)),
	)
	return nil
}
