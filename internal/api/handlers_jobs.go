package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docmark/internal/pipeline"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := s.parseConvertRequest(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	data, err := s.readUpload(file)
	if err != nil {
		writeConvertError(w, err)
		return
	}

	job := pipeline.NewJob(filename, data, pipeline.Request{Options: req.opts, Chunks: req.chunks})
	if err := s.orchestrator.Submit(job); err != nil {
		writeConvertError(w, err)
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"doc_id":   snap.DocID,
		"status":   snap.Status,
		"poll_url": jobURL(snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleJobMarkdown(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	switch {
	case snap.Status == pipeline.StatusFailed:
		jsonError(w, "job failed", http.StatusUnprocessableEntity)
		return
	case !snap.Status.Done():
		jsonError(w, "job not finished: "+string(snap.Status), http.StatusConflict)
		return
	}
	res := job.Result()
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = io.WriteString(w, res.Markdown)
}
