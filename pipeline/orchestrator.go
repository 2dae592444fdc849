// Package pipeline owns the job entity and the orchestrator that carries a
// submission through estimation, pricing, slicing and device print-start.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/web3dp/web3dpd/pricing"
	"github.com/web3dp/web3dpd/slicer"
	"github.com/web3dp/web3dpd/storage"
)

var (
	ErrBadFileType = errors.New("only .stl uploads are accepted")
	ErrBadStatus   = errors.New("unknown status")
	ErrNotOwner    = errors.New("job belongs to another customer")
)

const (
	stlContentType     = "model/stl"
	packageContentType = "model/3mf"
)

// Orchestrator sequences the pipeline components. It is the only writer of
// Job fields; collaborators are injected so tests can substitute fakes.
type Orchestrator struct {
	store     Store
	objects   storage.ObjectStore
	estimator Estimator
	slicer    slicer.Slicer
	device    Device
	tmpDir    string
}

func NewOrchestrator(store Store, objects storage.ObjectStore, estimator Estimator, sl slicer.Slicer, device Device, tmpDir string) *Orchestrator {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Orchestrator{
		store:     store,
		objects:   objects,
		estimator: estimator,
		slicer:    sl,
		device:    device,
		tmpDir:    tmpDir,
	}
}

// Submission is one uploaded model plus its order parameters.
type Submission struct {
	Filename      string
	Data          []byte
	Material      string
	Color         string
	Quantity      int
	CustomerID    string
	CustomerEmail string
}

// Submit runs estimation and pricing synchronously, creates the job record
// and stores the source model. A failed storage write deletes the
// just-created record again so no job points at a missing file.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*Job, error) {
	if !strings.EqualFold(filepath.Ext(sub.Filename), ".stl") {
		return nil, fmt.Errorf("%w, got %q", ErrBadFileType, sub.Filename)
	}
	if sub.Quantity < 1 {
		sub.Quantity = 1
	}

	tmp := filepath.Join(o.tmpDir, fmt.Sprintf("upload_%s.stl", uuid.New().String()))
	if err := os.WriteFile(tmp, sub.Data, 0644); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	defer os.Remove(tmp)

	est, err := o.estimator.Estimate(tmp, sub.Material)
	if err != nil {
		return nil, fmt.Errorf("estimation: %w", err)
	}
	quote := pricing.Price(est.VolumeCm3, sub.Material, est.PrintTimeSeconds, sub.Quantity)

	job := &Job{
		Filename:         sub.Filename,
		Material:         strings.ToUpper(sub.Material),
		Color:            sub.Color,
		Quantity:         sub.Quantity,
		CustomerID:       sub.CustomerID,
		CustomerEmail:    sub.CustomerEmail,
		VolumeCm3:        est.VolumeCm3,
		WeightG:          est.WeightG,
		PrintTimeSeconds: est.PrintTimeSeconds,
		Price:            quote.Total,
		Status:           StatusPending,
		SliceStatus:      SlicePending,
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	sourcePath := fmt.Sprintf("models/%d_%s", job.ID, sub.Filename)
	if err := storage.Upsert(ctx, o.objects, sourcePath, sub.Data, stlContentType); err != nil {
		o.compensate(ctx, job.ID)
		return nil, fmt.Errorf("store model: %w", err)
	}
	job.SourcePath = sourcePath
	if err := o.store.Update(ctx, job); err != nil {
		if rmErr := o.objects.Remove(ctx, sourcePath); rmErr != nil {
			log.Errorf("can't remove %s while unwinding job %d: %v", sourcePath, job.ID, rmErr)
		}
		o.compensate(ctx, job.ID)
		return nil, fmt.Errorf("persist source path: %w", err)
	}

	log.Infof("Job %d submitted: %s, %s x%d, %.2f %s",
		job.ID, job.Filename, job.Material, job.Quantity, job.Price, quote.Currency)
	return job, nil
}

// compensate removes a partially created job so no record points at a
// missing source file.
func (o *Orchestrator) compensate(ctx context.Context, id int64) {
	if err := o.store.Delete(ctx, id); err != nil {
		log.Errorf("orphan job %d left behind: %v", id, err)
	}
}

// TriggerSlice marks the job as slicing and runs the slicer in the
// background. The task gets its own store session; its outcome is recorded
// on the job itself, since no caller is waiting.
func (o *Orchestrator) TriggerSlice(ctx context.Context, id int64) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Status = StatusSlicing
	job.SliceStatus = SliceAnalyzing
	job.SliceError = ""
	if err := o.store.Update(ctx, job); err != nil {
		return fmt.Errorf("mark slicing: %w", err)
	}

	go o.runSlice(id)
	return nil
}

func (o *Orchestrator) runSlice(id int64) {
	ctx := context.Background()
	store := o.store.Session()

	job, err := store.Get(ctx, id)
	if err != nil {
		log.Errorf("slicing job %d: %v", id, err)
		return
	}

	modelPath := filepath.Join(o.tmpDir, fmt.Sprintf("job_%d_%s", id, job.Filename))
	packagePath := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".gcode.3mf"
	defer func() {
		os.Remove(modelPath)
		os.Remove(packagePath)
	}()

	fail := func(err error) {
		log.Errorf("slicing job %d failed: %v", id, err)
		job.Status = StatusFailed
		job.SliceStatus = SliceFailed
		job.SliceError = err.Error()
		if uerr := store.Update(ctx, job); uerr != nil {
			log.Errorf("can't record slice failure for job %d: %v", id, uerr)
		}
	}

	data, err := o.objects.Download(ctx, job.SourcePath)
	if err != nil {
		fail(fmt.Errorf("download source: %w", err))
		return
	}
	if err := os.WriteFile(modelPath, data, 0644); err != nil {
		fail(fmt.Errorf("stage source: %w", err))
		return
	}

	job.SliceStatus = SliceSlicing
	if err := store.Update(ctx, job); err != nil {
		log.Warnf("can't mark job %d as slicing: %v", id, err)
	}

	res, err := o.slicer.Slice(ctx, modelPath, packagePath)
	if err != nil {
		fail(err)
		return
	}

	packaged, err := os.ReadFile(packagePath)
	if err != nil {
		fail(fmt.Errorf("read package: %w", err))
		return
	}
	slicedPath := fmt.Sprintf("sliced/%d_%s", id, filepath.Base(packagePath))
	if err := o.objects.Upload(ctx, slicedPath, packaged, packageContentType, true); err != nil {
		fail(fmt.Errorf("store package: %w", err))
		return
	}

	job.SlicedPath = slicedPath
	job.SliceStatus = SliceCompleted
	// Slicer-reported figures take precedence over the submission estimate;
	// they overwrite, never accumulate.
	if res.PrintTimeSeconds > 0 {
		job.PrintTimeSeconds = res.PrintTimeSeconds
	}
	if res.WeightG > 0 {
		job.WeightG = res.WeightG
	}
	if len(res.Metadata) > 0 {
		if b, err := json.Marshal(res.Metadata); err == nil {
			job.SlicerMetadata = string(b)
		}
	}
	if err := store.Update(ctx, job); err != nil {
		log.Errorf("can't record slice result for job %d: %v", id, err)
		return
	}
	log.Infof("Job %d sliced to %s", id, slicedPath)
}

// TriggerPrint uploads the sliced package to the device and issues the
// print-start command. Errors are returned to the caller without touching
// the business status, so the operator can simply retry.
func (o *Orchestrator) TriggerPrint(ctx context.Context, id int64) (string, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.SliceStatus != SliceCompleted || job.SlicedPath == "" {
		return "", fmt.Errorf("job %d has no sliced package to print (slice status %s)", id, job.SliceStatus)
	}

	data, err := o.objects.Download(ctx, job.SlicedPath)
	if err != nil {
		return "", fmt.Errorf("download package: %w", err)
	}
	localPath := filepath.Join(o.tmpDir, fmt.Sprintf("print_%d_%s", id, filepath.Base(job.SlicedPath)))
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return "", fmt.Errorf("stage package: %w", err)
	}
	defer os.Remove(localPath)

	remoteName := printRemoteName(job)
	if err := o.device.UploadFile(localPath, remoteName); err != nil {
		return "", fmt.Errorf("device upload: %w", err)
	}
	if err := o.device.StartPrint(remoteName, strconv.FormatInt(id, 10), 1); err != nil {
		return "", fmt.Errorf("print command: %w", err)
	}

	if err := job.MarkPrinting(); err != nil {
		return "", err
	}
	if err := o.store.Update(ctx, job); err != nil {
		return "", fmt.Errorf("persist printing status: %w", err)
	}
	log.Infof("Job %d printing as %s", id, remoteName)
	return remoteName, nil
}

// printRemoteName qualifies the package name with a timestamp so repeated
// prints of the same job never collide on the device.
func printRemoteName(job *Job) string {
	base := filepath.Base(job.SlicedPath)
	stem := strings.TrimSuffix(base, ".gcode.3mf")
	return fmt.Sprintf("%s_%s.gcode.3mf", stem, time.Now().Format("20060102_150405"))
}

// Patch is a partial customer-facing update. Nil fields are left untouched.
type Patch struct {
	Quantity *int    `json:"quantity,omitempty"`
	Material *string `json:"material,omitempty"`
	Color    *string `json:"color,omitempty"`
	Status   *Status `json:"status,omitempty"`
}

// Update mutates job fields on behalf of its owner. Quantity or material
// changes reprice the job from the stored volume and time.
func (o *Orchestrator) Update(ctx context.Context, id int64, patch Patch, callerID string) (*Job, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Editable(callerID) {
		return nil, ErrNotOwner
	}

	reprice := false
	if patch.Quantity != nil && *patch.Quantity >= 1 && *patch.Quantity != job.Quantity {
		job.Quantity = *patch.Quantity
		reprice = true
	}
	if patch.Material != nil && !strings.EqualFold(*patch.Material, job.Material) {
		job.Material = strings.ToUpper(*patch.Material)
		reprice = true
	}
	if patch.Color != nil {
		job.Color = *patch.Color
	}
	if patch.Status != nil {
		switch {
		case !patch.Status.Valid():
			return nil, fmt.Errorf("%w %q", ErrBadStatus, *patch.Status)
		case *patch.Status == StatusPrinting:
			// PRINTING is the one guarded cross-axis transition; an update
			// may not skip the completed-slice check.
			if err := job.MarkPrinting(); err != nil {
				return nil, err
			}
		default:
			job.Status = *patch.Status
		}
	}

	if reprice {
		quote := pricing.Price(job.VolumeCm3, job.Material, job.PrintTimeSeconds, job.Quantity)
		job.Price = quote.Total
		job.WeightG = quote.WeightG
	}

	if err := o.store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("persist update: %w", err)
	}
	return job, nil
}

// Get returns the current job snapshot.
func (o *Orchestrator) Get(ctx context.Context, id int64) (*Job, error) {
	return o.store.Get(ctx, id)
}

// List returns all jobs, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]Job, error) {
	return o.store.List(ctx)
}

// Details is the full snapshot including derived URLs and extracted slicer
// metadata.
type Details struct {
	Job
	SourceURL      string                       `json:"source_url,omitempty"`
	SlicedURL      string                       `json:"sliced_url,omitempty"`
	MaterialInfo   pricing.Material             `json:"material_info"`
	SlicerMetadata map[string]map[string]string `json:"slicer_metadata,omitempty"`
}

func (o *Orchestrator) Details(ctx context.Context, id int64) (*Details, error) {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Details{Job: *job, MaterialInfo: pricing.Lookup(job.Material)}
	if job.SourcePath != "" {
		d.SourceURL = o.objects.PublicURL(job.SourcePath)
	}
	if job.SlicedPath != "" {
		d.SlicedURL = o.objects.PublicURL(job.SlicedPath)
	}
	if job.SlicerMetadata != "" {
		if err := json.Unmarshal([]byte(job.SlicerMetadata), &d.SlicerMetadata); err != nil {
			log.Warnf("job %d carries unreadable slicer metadata: %v", id, err)
		}
	}
	return d, nil
}
