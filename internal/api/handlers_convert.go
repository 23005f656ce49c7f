package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docmark/internal/chunker"
	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/convert"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/warn"
)

var errDescribeDisabled = errors.New("image descriptions are not configured")

// convertRequest is the parsed form of a conversion upload.
type convertRequest struct {
	opts     convert.Options
	chunks   bool
	chunkCfg chunker.Config
	raw      bool
}

type imageJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

type convertResponse struct {
	Filename string          `json:"filename"`
	Format   doctree.Format  `json:"format"`
	Title    string          `json:"title,omitempty"`
	Markdown string          `json:"markdown"`
	Warnings []warn.Warning  `json:"warnings"`
	Images   []imageJSON     `json:"images,omitempty"`
	Chunks   []doctree.Chunk `json:"chunks,omitempty"`
	Cached   bool            `json:"cached"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	// Limit total request size; extra 1MB for form overhead.
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

	resp, err := s.convert(r, filename, data, req)
	if err != nil {
		s.log.Info("convert rejected", "filename", filename, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		writeConvertError(w, err)
		return
	}
	if req.raw {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("X-Docmark-Warnings", strconv.Itoa(len(resp.Warnings)))
		_, _ = io.WriteString(w, resp.Markdown)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// batchItem is one file's outcome; exactly one of Result and Error is set.
type batchItem struct {
	Filename string           `json:"filename"`
	Result   *convertResponse `json:"result,omitempty"`
	Error    *errorBody       `json:"error,omitempty"`
}

func (s *Server) handleBatchConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeFormError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := s.parseConvertRequest(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.raw = false

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]batchItem, len(files))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrentConvert)
	for i, fh := range files {
		i, fh := i, fh
		g.Go(func() error {
			filename := sanitizeFilename(fh.Filename)
			results[i] = batchItem{Filename: filename}
			resp, err := s.convertFile(r, fh, filename, req)
			if err != nil {
				body, _ := describeError(err)
				results[i].Error = &body
				return nil
			}
			results[i].Result = resp
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) convertFile(r *http.Request, fh *multipart.FileHeader, filename string, req convertRequest) (*convertResponse, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()
	data, err := s.readUpload(f)
	if err != nil {
		return nil, err
	}
	return s.convert(r, filename, data, req)
}

func (s *Server) convert(r *http.Request, filename string, data []byte, req convertRequest) (*convertResponse, error) {
	opts := req.opts
	opts.Logger = s.log.With("request_id", middleware.GetReqID(r.Context()), "filename", filename)
	res, cached, err := s.cache.Convert(r.Context(), data, opts)
	if err != nil {
		return nil, err
	}
	resp := &convertResponse{
		Filename: filename,
		Format:   res.Format,
		Title:    res.Title,
		Markdown: res.Markdown,
		Warnings: res.Warnings,
		Cached:   cached,
	}
	if resp.Warnings == nil {
		resp.Warnings = []warn.Warning{}
	}
	for _, img := range res.Images {
		resp.Images = append(resp.Images, imageJSON{ID: img.ID, Name: img.Name, MIME: img.MIME, Data: img.Data})
	}
	if req.chunks {
		resp.Chunks = chunker.ChunkMarkdown(res.Markdown, res.Title, req.chunkCfg)
	}
	return resp, nil
}

func (s *Server) readUpload(f io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, errors.WithHintf(
			errors.Wrapf(container.ErrInputTooLarge, "file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes),
			"raise MAX_UPLOAD_BYTES")
	}
	return data, nil
}

// baseOptions are the server-wide conversion limits.
func (s *Server) baseOptions() convert.Options {
	return convert.Options{
		Limits: container.Limits{
			MaxInputBytes:        s.cfg.MaxUploadBytes,
			MaxUncompressedBytes: s.cfg.MaxUncompressedBytes,
			MaxEntries:           s.cfg.MaxZipEntries,
		},
		MaxTotalImageBytes: s.cfg.MaxImageBytes,
		MaxDepth:           s.cfg.MaxXMLDepth,
	}
}

// parseConvertRequest reads the option fields shared by every upload route.
func (s *Server) parseConvertRequest(r *http.Request) (convertRequest, error) {
	req := convertRequest{
		opts: s.baseOptions(),
		chunkCfg: chunker.Config{
			ChunkSize:    s.cfg.DefaultChunkSize,
			ChunkOverlap: s.cfg.DefaultChunkOverlap,
			MinChunk:     1,
		},
	}
	var err error
	flag := func(name string) bool {
		v := r.FormValue(name)
		if v == "" || err != nil {
			return false
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = errors.Newf("%s: expected a boolean, got %q", name, v)
		}
		return b
	}
	req.opts.ExtractImages = flag("extract_images")
	req.opts.Strict = flag("strict")
	req.chunks = flag("chunks")
	describeImages := flag("describe")
	concurrent := flag("concurrent")
	if err != nil {
		return req, err
	}
	req.raw = strings.Contains(r.Header.Get("Accept"), "text/markdown")

	if v := r.FormValue("chunk_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.chunkCfg.ChunkSize = n
		}
	}
	if v := r.FormValue("overlap"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.chunkCfg.ChunkOverlap = n
		}
	}

	if describeImages {
		if s.claude == nil {
			return req, errDescribeDisabled
		}
		if concurrent {
			req.opts.AsyncDescriber = s.claude
		} else {
			req.opts.Describer = s.claude
		}
		req.opts.Prompt = strings.TrimSpace(r.FormValue("prompt"))
	}
	return req, nil
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}

func jobURL(id string) string {
	return fmt.Sprintf("/api/jobs/%s", id)
}
