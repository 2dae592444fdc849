// Package jobstore provides implementations of the pipeline's job record
// store: a gorm/postgres one for real deployments and an in-memory one for
// tests and development.
package jobstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/web3dp/web3dpd/pipeline"
)

var ErrNotFound = errors.New("job not found")

// Gorm stores job records in postgres.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	if err := db.AutoMigrate(&pipeline.Job{}); err != nil {
		return nil, fmt.Errorf("migrate job store: %w", err)
	}
	return &Gorm{db: db}, nil
}

// Session returns an independent handle over the same connection pool, so
// background tasks don't share request-scoped session state.
func (g *Gorm) Session() pipeline.Store {
	return &Gorm{db: g.db.Session(&gorm.Session{NewDB: true})}
}

func (g *Gorm) Create(ctx context.Context, job *pipeline.Job) error {
	return g.db.WithContext(ctx).Create(job).Error
}

func (g *Gorm) Get(ctx context.Context, id int64) (*pipeline.Job, error) {
	var job pipeline.Job
	err := g.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (g *Gorm) List(ctx context.Context) ([]pipeline.Job, error) {
	var jobs []pipeline.Job
	err := g.db.WithContext(ctx).Order("created_at desc").Find(&jobs).Error
	return jobs, err
}

func (g *Gorm) Update(ctx context.Context, job *pipeline.Job) error {
	return g.db.WithContext(ctx).Save(job).Error
}

func (g *Gorm) Delete(ctx context.Context, id int64) error {
	return g.db.WithContext(ctx).Delete(&pipeline.Job{}, id).Error
}
