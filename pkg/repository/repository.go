// Package repository provides a generic GORM-backed repository over any
// entity type, parameterized on struct-literal queries and the option
// package's QueryOption vocabulary. The aggregate, allocator and revenue
// packages use it for row CRUD; eventwindow, the unitbuilder streak lookback
// and some revenue queries talk to *gorm.DB directly.
package repository

import (
	"context"

	"integrity-core/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is implemented by the generic gorm-backed store and by test
// doubles substituting individual methods.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
	Count(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db       *gorm.DB
	idColumn string
}

// ProvideStore builds a Repository[T] backed by db. idColumn defaults to
// "id" and may be overridden with WithIDColumn for entities keyed
// differently.
func ProvideStore[T any](db *gorm.DB, opts ...StoreOption) Repository[T] {
	cfg := storeConfig{idColumn: "id"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &store[T]{db: db, idColumn: cfg.idColumn}
}

// StoreOption configures a store built by ProvideStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	idColumn string
}

// WithIDColumn overrides the primary-key column name used by Update.
func WithIDColumn(col string) StoreOption {
	return func(c *storeConfig) { c.idColumn = col }
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx, idColumn: s.idColumn}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var results []*T
	db := s.db.WithContext(ctx).Where(query)
	for _, opt := range opts {
		db = opt(db)
	}
	if err := db.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	db := s.db.WithContext(ctx).Where(query)
	for _, opt := range opts {
		db = opt(db)
	}
	if err := db.First(&result).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	var model T
	return s.db.WithContext(ctx).Model(&model).Where(s.idColumn+" = ?", resourceID).Updates(resource).Error
}

func (s *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(resources, 500).Error
}

func (s *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	for _, resource := range resources {
		if err := s.db.WithContext(ctx).Save(resource).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(new(T)).Where(query).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
