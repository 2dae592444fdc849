package pipeline

import (
	"context"

	"github.com/web3dp/web3dpd/estimate"
)

// Store is the external relational store holding job records. Every call is
// atomic. Session hands out an independent handle so background tasks never
// share one stateful session with the request that scheduled them.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	List(ctx context.Context) ([]Job, error)
	Update(ctx context.Context, job *Job) error
	Delete(ctx context.Context, id int64) error
	Session() Store
}

// Estimator computes volume, weight, time and dimensions for a model file.
type Estimator interface {
	Estimate(path, material string) (estimate.Result, error)
}

// Device is the physical fabrication endpoint. The ordering between
// UploadFile and StartPrint for the same file is enforced by the
// Orchestrator, not here.
type Device interface {
	UploadFile(localPath, remoteName string) error
	StartPrint(remoteName, projectID string, plate int) error
}
