package pipeline

import (
	"fmt"
	"time"
)

// Status is the coarse business lifecycle of a job, driven by customers,
// payment and operators.
type Status string

const (
	StatusPending  = Status("PENDING")
	StatusPaid     = Status("PAID")
	StatusSlicing  = Status("SLICING")
	StatusPrinting = Status("PRINTING")
	StatusDone     = Status("DONE")
	StatusFailed   = Status("FAILED")
)

// SliceStatus tracks the slicing pipeline, independent of the business
// lifecycle. The two axes advance at different rates and are driven by
// different actors, so they stay separate fields.
type SliceStatus string

const (
	SlicePending   = SliceStatus("PENDING")
	SliceAnalyzing = SliceStatus("ANALYZING")
	SliceSlicing   = SliceStatus("SLICING")
	SliceCompleted = SliceStatus("COMPLETED")
	SliceFailed    = SliceStatus("FAILED")
)

// Valid reports whether s is one of the defined business statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusSlicing, StatusPrinting, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Job is one customer submission through the pipeline. Fields are mutated
// only by the Orchestrator; the job store is the durable system of record
// between pipeline runs.
type Job struct {
	ID               int64       `json:"id" gorm:"primaryKey"`
	Filename         string      `json:"file_name"`
	Material         string      `json:"material"`
	Color            string      `json:"color"`
	Quantity         int         `json:"quantity"`
	CustomerID       string      `json:"customer_id,omitempty"`
	CustomerEmail    string      `json:"customer_email,omitempty"`
	SourcePath       string      `json:"source_path,omitempty"`
	SlicedPath       string      `json:"sliced_path,omitempty"`
	VolumeCm3        float64     `json:"volume_cm3"`
	WeightG          float64     `json:"weight_g"`
	PrintTimeSeconds int         `json:"print_time_s"`
	Price            float64     `json:"price"`
	Status           Status      `json:"status"`
	SliceStatus      SliceStatus `json:"slice_status"`
	SliceError       string      `json:"slice_error,omitempty"`
	SlicerMetadata   string      `json:"-" gorm:"type:text"`
	CreatedAt        time.Time   `json:"created_at"`
}

// MarkPrinting advances the business status to PRINTING. It is the one
// guarded cross-axis transition: a job may only print once slicing has
// completed and the package location is known.
func (j *Job) MarkPrinting() error {
	if j.SliceStatus != SliceCompleted || j.SlicedPath == "" {
		return fmt.Errorf("job %d is not ready to print (slice status %s)", j.ID, j.SliceStatus)
	}
	j.Status = StatusPrinting
	return nil
}

// Editable reports whether the caller may modify this job. Anonymous jobs
// have no owner and are editable by anyone.
func (j *Job) Editable(callerID string) bool {
	return j.CustomerID == "" || j.CustomerID == callerID
}
