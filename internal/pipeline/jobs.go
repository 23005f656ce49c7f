package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docmark/internal/convert"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/warn"
)

// JobStatus represents the state of a conversion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusConverting JobStatus = "converting"
	StatusChunking   JobStatus = "chunking"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
)

// Done reports whether the job has reached a terminal state.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// Request is what a job converts.
type Request struct {
	Options convert.Options
	Chunks  bool
}

// Job tracks the state of a single document conversion.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`

	Status   JobStatus      `json:"status"`
	Phase    string         `json:"phase"`
	Filename string         `json:"filename"`
	Title    string         `json:"title"`
	Format   doctree.Format `json:"format"`

	Progress Progress `json:"progress"`

	Cached    bool      `json:"cached"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	request  Request
	result   *convert.Result
	chunks   []doctree.Chunk
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	Bytes    int      `json:"bytes"`
	Images   int      `json:"images"`
	Warnings int      `json:"warnings"`
	Chunks   int      `json:"chunks"`
	Errors   []string `json:"errors"`
}

// NewJob returns a queued job with a fresh id.
func NewJob(filename string, data []byte, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		DocID:     docID(data),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Progress:  Progress{Bytes: len(data)},
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
		request:   req,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs. Jobs still in flight are kept.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetResult stores the conversion output and the counts derived from it.
func (j *Job) SetResult(res *convert.Result, cached bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.Cached = cached
	j.Title = res.Title
	j.Format = res.Format
	j.Progress.Images = len(res.Images)
	j.Progress.Warnings = len(res.Warnings)
	j.UpdatedAt = time.Now()
}

// SetChunks stores the chunked output.
func (j *Job) SetChunks(chunks []doctree.Chunk) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunks = chunks
	j.Progress.Chunks = len(chunks)
	j.UpdatedAt = time.Now()
}

// Result returns the conversion output, nil until the job converts.
func (j *Job) Result() *convert.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseInput drops the upload once it has been converted.
func (j *Job) releaseInput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string          `json:"job_id"`
	DocID     string          `json:"doc_id"`
	Status    JobStatus       `json:"status"`
	Phase     string          `json:"phase"`
	Filename  string          `json:"filename"`
	Title     string          `json:"title"`
	Format    doctree.Format  `json:"format,omitempty"`
	Cached    bool            `json:"cached"`
	Progress  Progress        `json:"progress"`
	Warnings  []warn.Warning  `json:"warnings,omitempty"`
	Chunks    []doctree.Chunk `json:"chunks,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	snap := JobSnapshot{
		ID:        j.ID,
		DocID:     j.DocID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		Title:     j.Title,
		Format:    j.Format,
		Cached:    j.Cached,
		Progress:  j.Progress,
		Chunks:    j.chunks,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	snap.Progress.Errors = errs
	if j.result != nil {
		snap.Warnings = j.result.Warnings
	}
	return snap
}
