package pipeline_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3dp/web3dpd/estimate"
	"github.com/web3dp/web3dpd/jobstore"
	"github.com/web3dp/web3dpd/pipeline"
	"github.com/web3dp/web3dpd/slicer"
	"github.com/web3dp/web3dpd/storage"
)

type fakeEstimator struct {
	res estimate.Result
	err error
}

func (f fakeEstimator) Estimate(path, material string) (estimate.Result, error) {
	return f.res, f.err
}

type fakeSlicer struct {
	res *slicer.Result
	err error
}

func (f *fakeSlicer) Slice(ctx context.Context, modelPath, outputPath string) (*slicer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(outputPath, []byte("sliced package"), 0644); err != nil {
		return nil, err
	}
	return f.res, nil
}

type fakeDevice struct {
	mu        sync.Mutex
	uploads   []string
	prints    []string
	uploadErr error
	printErr  error
}

func (d *fakeDevice) UploadFile(localPath, remoteName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadErr != nil {
		return d.uploadErr
	}
	d.uploads = append(d.uploads, remoteName)
	return nil
}

func (d *fakeDevice) StartPrint(remoteName, projectID string, plate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.printErr != nil {
		return d.printErr
	}
	d.prints = append(d.prints, remoteName)
	return nil
}

// flakyObjects rejects the next n uploads with a conflict before delegating
// to the in-memory store, emulating a backend without overwrite semantics.
type flakyObjects struct {
	*storage.Memory
	mu       sync.Mutex
	failNext int
}

func (f *flakyObjects) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	f.mu.Lock()
	fail := f.failNext > 0
	if fail {
		f.failNext--
	}
	f.mu.Unlock()
	if fail {
		return storage.ErrConflict
	}
	return f.Memory.Upload(ctx, path, data, contentType, upsert)
}

type env struct {
	store     pipeline.Store
	objects   *flakyObjects
	device    *fakeDevice
	sl        *fakeSlicer
	estimator fakeEstimator
	orch      *pipeline.Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   jobstore.NewMemory(),
		objects: &flakyObjects{Memory: storage.NewMemory()},
		device:  &fakeDevice{},
		sl:      &fakeSlicer{res: &slicer.Result{PrintTimeSeconds: 4200, WeightG: 2.5}},
		estimator: fakeEstimator{res: estimate.Result{
			VolumeCm3:        1.0,
			WeightG:          1.24,
			PrintTimeSeconds: 366,
		}},
	}
	e.orch = pipeline.NewOrchestrator(e.store, e.objects, e.estimator, e.sl, e.device, t.TempDir())
	return e
}

func submission() pipeline.Submission {
	return pipeline.Submission{
		Filename: "cube.stl",
		Data:     []byte("solid cube"),
		Material: "pla",
		Quantity: 2,
	}
}

func TestSubmit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatusPending, job.Status)
	assert.Equal(t, pipeline.SlicePending, job.SliceStatus)
	assert.Equal(t, "PLA", job.Material)
	assert.Equal(t, 1.24, job.WeightG)
	// unit price floored at 1.00, times two, plus the 5.00 setup fee
	assert.Equal(t, 7.00, job.Price)
	assert.Equal(t, "models/1_cube.stl", job.SourcePath)

	stored, err := e.objects.Download(ctx, job.SourcePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("solid cube"), stored)
}

func TestSubmitRejectsBadExtension(t *testing.T) {
	e := newEnv(t)
	sub := submission()
	sub.Filename = "cube.obj"

	_, err := e.orch.Submit(context.Background(), sub)
	assert.ErrorIs(t, err, pipeline.ErrBadFileType)

	jobs, err := e.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitEstimationErrorCreatesNothing(t *testing.T) {
	e := newEnv(t)
	e.estimator.err = errors.New("unreadable geometry")
	e.orch = pipeline.NewOrchestrator(e.store, e.objects, e.estimator, e.sl, e.device, t.TempDir())

	_, err := e.orch.Submit(context.Background(), submission())
	require.Error(t, err)

	jobs, _ := e.store.List(context.Background())
	assert.Empty(t, jobs)
}

func TestSubmitStorageFailureDeletesJob(t *testing.T) {
	e := newEnv(t)
	// Both the first upload and the retry after the forced delete fail.
	e.objects.failNext = 2

	_, err := e.orch.Submit(context.Background(), submission())
	require.Error(t, err)

	jobs, err := e.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs, "failed submission must not leave a job behind")
}

func TestSubmitRetriesAfterForcedDelete(t *testing.T) {
	e := newEnv(t)
	// Only the first upload fails; the upsert retry succeeds.
	e.objects.failNext = 1

	job, err := e.orch.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.NotEmpty(t, job.SourcePath)
}

func waitForSlice(t *testing.T, store pipeline.Store, id int64) *pipeline.Job {
	t.Helper()
	var job *pipeline.Job
	require.Eventually(t, func() bool {
		j, err := store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.SliceStatus == pipeline.SliceCompleted || j.SliceStatus == pipeline.SliceFailed
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestTriggerSlice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	done := waitForSlice(t, e.store, job.ID)

	assert.Equal(t, pipeline.SliceCompleted, done.SliceStatus)
	assert.Equal(t, pipeline.StatusSlicing, done.Status)
	assert.NotEmpty(t, done.SlicedPath)
	// slicer-reported figures override the submission estimates
	assert.Equal(t, 4200, done.PrintTimeSeconds)
	assert.Equal(t, 2.5, done.WeightG)

	_, err = e.objects.Download(ctx, done.SlicedPath)
	assert.NoError(t, err)
}

func TestTriggerSliceFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	e.sl.err = errors.New("slicer exploded")
	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	done := waitForSlice(t, e.store, job.ID)

	assert.Equal(t, pipeline.SliceFailed, done.SliceStatus)
	assert.Equal(t, pipeline.StatusFailed, done.Status)
	assert.Contains(t, done.SliceError, "slicer exploded")
}

func TestTriggerPrintRequiresCompletedSlice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	// Print before slicing must be rejected by the orchestrator, before
	// any device call happens.
	_, err = e.orch.TriggerPrint(ctx, job.ID)
	require.Error(t, err)
	assert.Empty(t, e.device.uploads)
	assert.Empty(t, e.device.prints)
}

func TestTriggerPrint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)
	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	waitForSlice(t, e.store, job.ID)

	remote, err := e.orch.TriggerPrint(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(remote, ".gcode.3mf"))

	// upload first, then print-start, same remote name
	require.Equal(t, []string{remote}, e.device.uploads)
	require.Equal(t, []string{remote}, e.device.prints)

	done, err := e.store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPrinting, done.Status)
}

func TestTriggerPrintUploadFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)
	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	waitForSlice(t, e.store, job.ID)

	e.device.uploadErr = errors.New("ftps handshake failed")
	_, err = e.orch.TriggerPrint(ctx, job.ID)
	require.Error(t, err)
	assert.Empty(t, e.device.prints, "print-start must not run after a failed upload")

	after, _ := e.store.Get(ctx, job.ID)
	assert.Equal(t, pipeline.StatusSlicing, after.Status, "status untouched, trigger is retryable")
}

func TestTriggerPrintStartFailureKeepsStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)
	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	waitForSlice(t, e.store, job.ID)

	e.device.printErr = errors.New("mqtt broker refused")
	_, err = e.orch.TriggerPrint(ctx, job.ID)
	require.Error(t, err)

	after, _ := e.store.Get(ctx, job.ID)
	assert.NotEqual(t, pipeline.StatusPrinting, after.Status)
	assert.NotEqual(t, pipeline.StatusFailed, after.Status)
	assert.Equal(t, pipeline.SliceCompleted, after.SliceStatus)

	// the operator retries and it goes through
	e.device.printErr = nil
	_, err = e.orch.TriggerPrint(ctx, job.ID)
	require.NoError(t, err)
	after, _ = e.store.Get(ctx, job.ID)
	assert.Equal(t, pipeline.StatusPrinting, after.Status)
}

func TestUpdateReprices(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	three := 3
	updated, err := e.orch.Update(ctx, job.ID, pipeline.Patch{Quantity: &three}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	// floored unit price of 1.00 times three plus the setup fee
	assert.Equal(t, 8.00, updated.Price)
}

func TestUpdateStatusGuardsPrinting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	// An update may not jump to PRINTING while the slice is still pending.
	printing := pipeline.StatusPrinting
	_, err = e.orch.Update(ctx, job.ID, pipeline.Patch{Status: &printing}, "")
	require.Error(t, err)

	after, err := e.store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, pipeline.StatusPrinting, after.Status)
	assert.Equal(t, pipeline.SlicePending, after.SliceStatus)

	// once slicing has completed the same update goes through
	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	waitForSlice(t, e.store, job.ID)
	updated, err := e.orch.Update(ctx, job.ID, pipeline.Patch{Status: &printing}, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPrinting, updated.Status)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	garbage := pipeline.Status("GARBAGE")
	_, err = e.orch.Update(ctx, job.ID, pipeline.Patch{Status: &garbage}, "")
	assert.ErrorIs(t, err, pipeline.ErrBadStatus)

	paid := pipeline.StatusPaid
	updated, err := e.orch.Update(ctx, job.ID, pipeline.Patch{Status: &paid}, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusPaid, updated.Status)
}

func TestUpdateOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sub := submission()
	sub.CustomerID = "customer-a"
	job, err := e.orch.Submit(ctx, sub)
	require.NoError(t, err)

	color := "red"
	_, err = e.orch.Update(ctx, job.ID, pipeline.Patch{Color: &color}, "customer-b")
	assert.ErrorIs(t, err, pipeline.ErrNotOwner)

	updated, err := e.orch.Update(ctx, job.ID, pipeline.Patch{Color: &color}, "customer-a")
	require.NoError(t, err)
	assert.Equal(t, "red", updated.Color)
}

func TestGetIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)

	first, err := e.orch.Get(ctx, job.ID)
	require.NoError(t, err)
	second, err := e.orch.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDetails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.sl.res.Metadata = map[string]map[string]string{
		"slice_info": {"layer_height": "0.2"},
	}
	job, err := e.orch.Submit(ctx, submission())
	require.NoError(t, err)
	require.NoError(t, e.orch.TriggerSlice(ctx, job.ID))
	waitForSlice(t, e.store, job.ID)

	details, err := e.orch.Details(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, details.SourceURL, job.SourcePath)
	assert.NotEmpty(t, details.SlicedURL)
	assert.Equal(t, 1.24, details.MaterialInfo.Density)
	assert.Equal(t, "0.2", details.SlicerMetadata["slice_info"]["layer_height"])
}
