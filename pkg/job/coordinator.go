// Package job owns the lifecycle of a content entry: admission of an
// upload, the asynchronous transformation job, and the monotone state
// machine persisted in the entry's metadata record.
//
// Ownership: a content id belongs to the coordinator from admission until
// its job reaches a terminal state; nothing else writes to the entry in
// that window. Afterwards the entry is read-mostly and owned by the store.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/image"
	"github.com/speexx/guetzli-service/pkg/metrics"
	"github.com/speexx/guetzli-service/pkg/store"
)

// ErrTooLarge is returned when an upload declares more bytes than the
// admission limit allows.
var ErrTooLarge = errors.New("image too large")

// DefaultMaxUploadSize is the admission limit: 8 MiB.
const DefaultMaxUploadSize = 8 * 1024 * 1024

// DefaultParallelism is the process-wide number of transform slots.
const DefaultParallelism = 2

// Prober reports the JPEG quality level of the file at path.
type Prober interface {
	Quality(ctx context.Context, path string) (int, error)
}

// Transformer recompresses source into target.
type Transformer interface {
	Transform(ctx context.Context, source, target string) error
}

// pngQuality is recorded for PNG sources, which are never probed.
const pngQuality = 100

// Coordinator drives entries through
//
//	stored -> waiting -> transforming -> transformed | failed
//
// At most `parallelism` entries are in transforming at any instant,
// gated by a process-wide weighted semaphore.
type Coordinator struct {
	store       *store.Store
	prober      Prober
	transformer Transformer
	slots       *semaphore.Weighted
	maxUpload   int64

	// baseCtx scopes jobs to the process lifetime rather than to the
	// originating HTTP request: an abandoned client connection must not
	// cancel an admitted job.
	baseCtx context.Context
	jobs    sync.WaitGroup
}

// New creates a Coordinator. Zero parallelism or maxUpload select the
// defaults. baseCtx bounds the lifetime of asynchronous jobs; pass the
// process context, not a request context.
func New(baseCtx context.Context, st *store.Store, prober Prober, transformer Transformer, parallelism int64, maxUpload int64) *Coordinator {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	return &Coordinator{
		store:       st,
		prober:      prober,
		transformer: transformer,
		slots:       semaphore.NewWeighted(parallelism),
		maxUpload:   maxUpload,
		baseCtx:     baseCtx,
	}
}

// MaxUploadSize returns the admission byte limit.
func (c *Coordinator) MaxUploadSize() int64 {
	return c.maxUpload
}

// Submit admits a new upload and fires its job.
//
// declaredSize above the admission limit is rejected with ErrTooLarge
// before any disk access; a media type other than image/jpeg or image/png
// with image.ErrUnsupportedType. On success the metadata record exists on
// disk in state stored before Submit returns, and the returned content id
// is final. The transformation itself runs asynchronously; clients poll
// the metadata for progress.
func (c *Coordinator) Submit(ctx context.Context, body io.Reader, declaredSize int64, mime, name string) (string, error) {
	if declaredSize > c.maxUpload {
		metrics.UploadsRejectedTotal.WithLabelValues("too_large").Inc()
		return "", fmt.Errorf("%w: %d bytes declared, limit %d", ErrTooLarge, declaredSize, c.maxUpload)
	}
	typ, err := image.TypeFromMIME(mime)
	if err != nil {
		metrics.UploadsRejectedTotal.WithLabelValues("unsupported_type").Inc()
		return "", err
	}

	id, size, err := c.store.Admit(io.LimitReader(body, c.maxUpload+1), typ)
	if err != nil {
		return "", err
	}
	if size > c.maxUpload {
		c.discard(id)
		metrics.UploadsRejectedTotal.WithLabelValues("too_large").Inc()
		return "", fmt.Errorf("%w: body exceeds limit %d", ErrTooLarge, c.maxUpload)
	}
	logger.Info("received new image", "content_id", id, "type", typ, "size", size)

	quality := pngQuality
	if typ == image.TypeJPG {
		quality, err = c.prober.Quality(ctx, c.store.SourcePath(id, typ))
		if err != nil {
			c.discard(id)
			return "", fmt.Errorf("probe source quality: %w", err)
		}
	}

	meta := &image.Metadata{
		ContentID:     id,
		Status:        image.StatusStored,
		StoredAt:      time.Now(),
		SourceName:    strings.TrimSpace(name),
		SourceType:    typ,
		SourceQuality: quality,
		SourceSize:    size,
	}
	if err := c.store.WriteMeta(meta); err != nil {
		c.discard(id)
		return "", err
	}
	metrics.UploadsTotal.WithLabelValues(string(typ)).Inc()

	c.enqueue(id)
	return id, nil
}

// discard removes a half-admitted entry so that no directory without a
// metadata record survives.
func (c *Coordinator) discard(id string) {
	if err := c.store.Delete(id); err != nil {
		logger.Warn("discard failed admission", "content_id", id, "error", err)
	}
}

func (c *Coordinator) enqueue(id string) {
	c.jobs.Add(1)
	go func() {
		defer c.jobs.Done()
		c.runJob(id)
	}()
}

// runJob drives one entry to a terminal state. Any failure along the way
// (slot wait aborted by shutdown excepted) ends in status failed; the
// client discovers failures by polling the metadata.
func (c *Coordinator) runJob(id string) {
	meta, err := c.store.ReadMeta(id)
	if err != nil {
		logger.Error("job cannot read metadata", "content_id", id, "error", err)
		return
	}
	if meta.Status != image.StatusStored {
		// Already picked up once; never start the same job twice.
		return
	}

	if err := c.advance(meta, image.StatusWaiting); err != nil {
		logger.Error("job cannot enqueue", "content_id", id, "error", err)
		return
	}

	if err := c.slots.Acquire(c.baseCtx, 1); err != nil {
		// Shutdown while waiting for a slot. The entry stays in waiting;
		// the recovery sweep on next start deals with it.
		logger.Warn("slot wait aborted", "content_id", id, "error", err)
		return
	}

	start := time.Now()
	metrics.Transforming.Inc()
	err = func() error {
		defer func() {
			c.slots.Release(1)
			metrics.Transforming.Dec()
		}()

		if err := c.advance(meta, image.StatusTransforming); err != nil {
			return err
		}
		source := c.store.SourcePath(id, meta.SourceType)
		target := c.store.TargetPath(id)
		return c.transformer.Transform(c.baseCtx, source, target)
	}()
	if err != nil {
		c.fail(meta, err)
		return
	}

	quality, err := c.prober.Quality(c.baseCtx, c.store.TargetPath(id))
	if err != nil {
		c.fail(meta, err)
		return
	}
	size, err := c.store.TargetSize(id)
	if err != nil {
		c.fail(meta, err)
		return
	}

	meta.TargetQuality = quality
	meta.TargetSize = size
	if err := c.advance(meta, image.StatusTransformed); err != nil {
		c.fail(meta, err)
		return
	}

	metrics.TransformsTotal.WithLabelValues(string(image.StatusTransformed)).Inc()
	metrics.TransformDuration.Observe(time.Since(start).Seconds())
	logger.Info("finished transformation",
		"content_id", id,
		"target_quality", quality,
		"target_size", size,
		"duration", time.Since(start).String(),
	)
}

// advance persists a forward state transition.
func (c *Coordinator) advance(meta *image.Metadata, next image.Status) error {
	if !meta.Status.CanAdvanceTo(next) {
		return fmt.Errorf("illegal transition %s -> %s for %s", meta.Status, next, meta.ContentID)
	}
	meta.Status = next
	return c.store.WriteMeta(meta)
}

// fail records the terminal failed state, best effort: a secondary
// failure while persisting it is logged and swallowed.
func (c *Coordinator) fail(meta *image.Metadata, cause error) {
	logger.Warn("transformation failed", "content_id", meta.ContentID, "error", cause)
	metrics.TransformsTotal.WithLabelValues(string(image.StatusFailed)).Inc()

	meta.Status = image.StatusFailed
	meta.TargetQuality = 0
	meta.TargetSize = 0
	if err := c.store.WriteMeta(meta); err != nil {
		logger.Error("cannot record failure state", "content_id", meta.ContentID, "error", err)
	}
}

// Recover scans the store once at startup and deals with entries left in
// a non-terminal state by a previous process: stored entries are
// re-enqueued, waiting and transforming entries are marked failed (their
// slot, and possibly their child process, died with the old process).
func (c *Coordinator) Recover() {
	ids, err := c.store.List()
	if err != nil {
		logger.Error("recovery scan failed", "error", err)
		return
	}

	var requeued, failed int
	for _, id := range ids {
		meta, err := c.store.ReadMeta(id)
		if err != nil {
			logger.Warn("recovery skips entry", "content_id", id, "error", err)
			continue
		}
		switch meta.Status {
		case image.StatusStored:
			c.enqueue(id)
			requeued++
		case image.StatusWaiting, image.StatusTransforming:
			c.fail(meta, errors.New("interrupted by restart"))
			failed++
		}
	}
	if requeued > 0 || failed > 0 {
		logger.Info("recovery sweep done", "requeued", requeued, "failed", failed)
	}
}

// GetMeta returns the metadata record for id.
func (c *Coordinator) GetMeta(id string) (*image.Metadata, error) {
	return c.store.ReadMeta(id)
}

// Source opens the stored source image. The returned metadata carries the
// media type and upload filename for response headers.
func (c *Coordinator) Source(id string) (io.ReadCloser, *image.Metadata, error) {
	meta, err := c.store.ReadMeta(id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := c.store.ReadSource(id, meta.SourceType)
	if err != nil {
		return nil, nil, err
	}
	return rc, meta, nil
}

// Target opens the transformed image. Entries that are not yet
// transformed surface store.ErrNotFound.
func (c *Coordinator) Target(id string) (io.ReadCloser, *image.Metadata, error) {
	meta, err := c.store.ReadMeta(id)
	if err != nil {
		return nil, nil, err
	}
	if meta.Status != image.StatusTransformed {
		return nil, nil, fmt.Errorf("%w: %s not transformed yet", store.ErrNotFound, id)
	}
	rc, err := c.store.ReadTarget(id)
	if err != nil {
		return nil, nil, err
	}
	return rc, meta, nil
}

// List returns all known content ids.
func (c *Coordinator) List() ([]string, error) {
	return c.store.List()
}

// Wait blocks until all in-flight jobs have finished. Used by graceful
// shutdown after the base context has been cancelled.
func (c *Coordinator) Wait() {
	c.jobs.Wait()
}
