package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/speexx/guetzli-service/internal/logger"
	"github.com/speexx/guetzli-service/pkg/image"
	"github.com/speexx/guetzli-service/pkg/job"
	"github.com/speexx/guetzli-service/pkg/store"
)

// nameHeader carries the client's original filename on upload.
const nameHeader = "X-Guetzli-Img-Name"

// ImageHandler handles the /image endpoints: upload, listing, metadata
// and source/target downloads.
type ImageHandler struct {
	jobs *job.Coordinator
}

// NewImageHandler creates a new image handler on top of the job
// coordinator.
func NewImageHandler(jobs *job.Coordinator) *ImageHandler {
	return &ImageHandler{jobs: jobs}
}

// Upload handles POST /image.
//
// The raw image bytes are the request body; Content-Type declares the
// media type and the optional X-Guetzli-Img-Name header the original
// filename. On success the response is 201 Created with a Location
// header pointing at the stored source. The transformation itself runs
// asynchronously; clients poll the metadata endpoint.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, err := h.jobs.Submit(r.Context(), r.Body,
		r.ContentLength, r.Header.Get("Content-Type"), r.Header.Get(nameHeader))
	switch {
	case errors.Is(err, job.ErrTooLarge):
		writeText(w, http.StatusBadRequest, "image is larger than 8MB")
		return
	case errors.Is(err, image.ErrUnsupportedType):
		writeText(w, http.StatusBadRequest,
			"unsupported media type %q, expected image/jpeg or image/png",
			r.Header.Get("Content-Type"))
		return
	case err != nil:
		logger.Error("upload failed", "error", err)
		writeText(w, http.StatusInternalServerError, "cannot store image")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/image/%s/source", id))
	w.WriteHeader(http.StatusCreated)
}

// List handles GET /image and returns all known content ids.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.jobs.List()
	if err != nil {
		logger.Error("cannot list images", "error", err)
		writeText(w, http.StatusInternalServerError, "cannot list images")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

// metaSource is the source half of the metadata JSON body. Quality and
// size are emitted only when strictly positive, the name only when the
// client provided one.
type metaSource struct {
	Name         string `json:"name,omitempty"`
	MIME         string `json:"mime"`
	QualityLevel int    `json:"qualitylevel,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// metaTarget is the target half, present only for transformed entries.
type metaTarget struct {
	QualityLevel int   `json:"qualitylevel,omitempty"`
	Size         int64 `json:"size,omitempty"`
}

type metaResponse struct {
	ContentID string      `json:"contentId"`
	Status    string      `json:"status"`
	Source    metaSource  `json:"source"`
	Target    *metaTarget `json:"target,omitempty"`
}

// Meta handles GET /image/{contentID}/meta.
func (h *ImageHandler) Meta(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	meta, err := h.jobs.GetMeta(id)
	if err != nil {
		h.readError(w, id, err)
		return
	}

	resp := metaResponse{
		ContentID: meta.ContentID,
		Status:    string(meta.Status),
		Source: metaSource{
			Name:         meta.SourceName,
			MIME:         meta.SourceType.MIME(),
			QualityLevel: meta.SourceQuality,
			Size:         meta.SourceSize,
		},
	}
	if meta.Status == image.StatusTransformed {
		resp.Target = &metaTarget{
			QualityLevel: meta.TargetQuality,
			Size:         meta.TargetSize,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Source handles GET /image/{contentID}/source. The body is the stored
// source image with its original media type.
func (h *ImageHandler) Source(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	rc, meta, err := h.jobs.Source(id)
	if err != nil {
		h.readError(w, id, err)
		return
	}
	defer rc.Close()

	name := meta.SourceName
	if name == "" {
		name = id + "." + meta.SourceType.Ext()
	}
	h.serve(w, r, rc, meta.SourceType.MIME(), name, id)
}

// Target handles GET /image/{contentID}/target. Entries that have not
// reached the transformed state answer 404.
func (h *ImageHandler) Target(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contentID(w, r)
	if !ok {
		return
	}

	rc, meta, err := h.jobs.Target(id)
	if err != nil {
		h.readError(w, id, err)
		return
	}
	defer rc.Close()

	name := meta.SourceName
	if name == "" {
		name = id + ".jpg"
	}
	h.serve(w, r, rc, image.TypeJPG.MIME(), name, id)
}

// serve streams an image body, honoring the download query parameter.
func (h *ImageHandler) serve(w http.ResponseWriter, r *http.Request, body io.Reader, mime, name, id string) {
	w.Header().Set("Content-Type", mime)
	if downloadRequested(r) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	if _, err := io.Copy(w, body); err != nil {
		// Headers are out; nothing to do but log.
		logger.Warn("aborted image download", "content_id", id, "error", err)
	}
}

// contentID extracts and validates the content id path parameter.
// Malformed ids answer 404 without touching the store.
func (h *ImageHandler) contentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "contentID")
	if !image.ValidContentID(id) {
		writeText(w, http.StatusNotFound, "no image with id %s", id)
		return "", false
	}
	return id, true
}

// readError maps store read failures onto the HTTP surface: unknown
// entries are 404, everything else 500. Both carry the affected id in a
// plain-text body.
func (h *ImageHandler) readError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeText(w, http.StatusNotFound, "no image with id %s", id)
		return
	}
	logger.Error("cannot read image entry", "content_id", id, "error", err)
	writeText(w, http.StatusInternalServerError, "cannot read image with id %s", id)
}

// downloadRequested reports whether the download query parameter asks
// for an attachment. Accepted values are yes, true, y and t in any
// case.
func downloadRequested(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("download")) {
	case "yes", "true", "y", "t":
		return true
	default:
		return false
	}
}
