package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/docmark/internal/cache"
	"github.com/dgallion1/docmark/internal/chunker"
)

// Worker processes a single conversion job.
type Worker struct {
	cache    *cache.Cache
	log      *slog.Logger
	chunkCfg chunker.Config
}

func NewWorker(c *cache.Cache, log *slog.Logger, chunkCfg chunker.Config) *Worker {
	return &Worker{cache: c, log: log, chunkCfg: chunkCfg}
}

// Process converts the job's upload and, when requested, chunks the output.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)
	start := time.Now()

	job.SetStatus(StatusConverting, "converting")
	opts := job.request.Options
	if opts.Logger == nil {
		opts.Logger = log
	}
	res, cached, err := w.cache.Convert(ctx, job.FileData(), opts)
	job.releaseInput()
	if err != nil {
		log.Error("convert failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "converting")
		return
	}
	job.SetResult(res, cached)

	if job.request.Chunks {
		job.SetStatus(StatusChunking, "chunking")
		chunks := chunker.ChunkMarkdown(res.Markdown, res.Title, w.chunkCfg)
		job.SetChunks(chunks)
		log.Info("chunked document", "chunks", len(chunks))
	}

	status := StatusCompleted
	if len(res.Warnings) > 0 {
		status = StatusPartial
	}
	job.SetStatus(status, "done")
	log.Info("job finished", "status", status, "format", res.Format, "warnings", len(res.Warnings),
		"cached", cached, "duration_ms", time.Since(start).Milliseconds())
}

func docID(data []byte) string {
	return cache.ContentHashHex(data)[:16]
}
