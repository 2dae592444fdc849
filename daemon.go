package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/web3dp/web3dpd/auth"
	"github.com/web3dp/web3dpd/pipeline"
	"github.com/web3dp/web3dpd/pricing"
)

// maxUploadBytes bounds a model upload.
const maxUploadBytes = 64 << 20

// Daemon exposes the orchestrator over a thin HTTP surface. Routing and
// request plumbing stay deliberately small; the pipeline package does the
// actual work.
type Daemon struct {
	orchestrator *pipeline.Orchestrator
	auth         *auth.Resolver
}

type response struct {
	Success bool        `json:"success"`
	Content interface{} `json:"content,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (daemon *Daemon) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs", daemon.SubmitHandler)
	mux.HandleFunc("GET /api/jobs", daemon.ListHandler)
	mux.HandleFunc("GET /api/jobs/{id}", daemon.StatusHandler)
	mux.HandleFunc("GET /api/jobs/{id}/details", daemon.DetailsHandler)
	mux.HandleFunc("POST /api/jobs/{id}", daemon.UpdateHandler)
	mux.HandleFunc("POST /api/jobs/{id}/slice", daemon.SliceHandler)
	mux.HandleFunc("POST /api/jobs/{id}/print", daemon.PrintHandler)
	mux.HandleFunc("GET /api/materials", daemon.MaterialsHandler)
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
	w.Header().Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	setHeaders(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Errorf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, response{Error: err.Error()})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func jobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// readLimited reads at most limit bytes and errors instead of truncating
// when the input is larger.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("upload larger than %d bytes", limit)
	}
	return data, nil
}

// SubmitHandler accepts a multipart model upload, quotes it and creates the
// job. Authentication is optional: anonymous submissions are allowed.
func (daemon *Daemon) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer file.Close()
	data, err := readLimited(file, maxUploadBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	quantity, _ := strconv.Atoi(r.FormValue("quantity"))
	sub := pipeline.Submission{
		Filename:      header.Filename,
		Data:          data,
		Material:      r.FormValue("material"),
		Color:         r.FormValue("color"),
		Quantity:      quantity,
		CustomerEmail: r.FormValue("email"),
		CustomerID:    daemon.auth.UserID(bearer(r)),
	}

	job, err := daemon.orchestrator.Submit(r.Context(), sub)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrBadFileType) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Success: true, Content: job})
}

func (daemon *Daemon) ListHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := daemon.orchestrator.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Content: jobs})
}

func (daemon *Daemon) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := daemon.orchestrator.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Content: job})
}

func (daemon *Daemon) DetailsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	details, err := daemon.orchestrator.Details(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Content: details})
}

// UpdateHandler applies a partial update on behalf of the job owner.
func (daemon *Daemon) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var patch pipeline.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := daemon.orchestrator.Update(r.Context(), id, patch, daemon.auth.UserID(bearer(r)))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrNotOwner):
			status = http.StatusForbidden
		case errors.Is(err, pipeline.ErrBadStatus):
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Content: job})
}

// SliceHandler schedules background slicing. Admin only.
func (daemon *Daemon) SliceHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := daemon.auth.Admin(bearer(r)); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := daemon.orchestrator.TriggerSlice(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, response{Success: true})
}

// PrintHandler uploads the sliced package to the printer and starts the
// print. Admin only; errors leave the job status untouched so the trigger
// can be retried.
func (daemon *Daemon) PrintHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := daemon.auth.Admin(bearer(r)); err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	remoteName, err := daemon.orchestrator.TriggerPrint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Content: map[string]string{"printer_filename": remoteName}})
}

func (daemon *Daemon) MaterialsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Success: true, Content: pricing.Materials()})
}
