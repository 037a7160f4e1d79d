package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speexx/guetzli-service/pkg/api"
	"github.com/speexx/guetzli-service/pkg/image"
	"github.com/speexx/guetzli-service/pkg/job"
	"github.com/speexx/guetzli-service/pkg/store"
)

type fixedProber struct{ quality int }

func (p *fixedProber) Quality(ctx context.Context, path string) (int, error) {
	return p.quality, nil
}

type copyTransformer struct{}

func (copyTransformer) Transform(ctx context.Context, source, target string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// newTestAPI wires a router over a real store in a temp dir.
func newTestAPI(t *testing.T) (http.Handler, *job.Coordinator, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	jobs := job.New(context.Background(), st, &fixedProber{quality: 85}, copyTransformer{}, 2, 0)
	return api.NewRouter(jobs, st), jobs, st
}

func upload(t *testing.T, router http.Handler, body, mime, name string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/image", strings.NewReader(body))
	req.Header.Set("Content-Type", mime)
	if name != "" {
		req.Header.Set("X-Guetzli-Img-Name", name)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func idFromLocation(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/image/"), "Location %q", loc)
	require.True(t, strings.HasSuffix(loc, "/source"), "Location %q", loc)
	return strings.TrimSuffix(strings.TrimPrefix(loc, "/image/"), "/source")
}

func awaitStatus(t *testing.T, router http.Handler, id, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := get(router, "/image/"+id+"/meta")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		if body["status"] == want {
			return body
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("entry %s never reached %s", id, want)
	return nil
}

func TestUploadJPEG(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rec := upload(t, router, "jpeg bytes", "image/jpeg", "photo.jpg")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := idFromLocation(t, rec)

	body := awaitStatus(t, router, id, "transformed")
	assert.Equal(t, id, body["contentId"])

	source := body["source"].(map[string]any)
	assert.Equal(t, "photo.jpg", source["name"])
	assert.Equal(t, "image/jpeg", source["mime"])
	assert.Equal(t, float64(85), source["qualitylevel"])
	assert.Equal(t, float64(len("jpeg bytes")), source["size"])

	target := body["target"].(map[string]any)
	assert.Equal(t, float64(85), target["qualitylevel"])
	assert.Positive(t, target["size"])
}

func TestUploadPNG(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rec := upload(t, router, "png bytes", "image/png", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := idFromLocation(t, rec)

	body := awaitStatus(t, router, id, "transformed")
	source := body["source"].(map[string]any)
	assert.Equal(t, "image/png", source["mime"])
	assert.Equal(t, float64(100), source["qualitylevel"])
	assert.NotContains(t, source, "name")
}

func TestUploadTooLarge(t *testing.T) {
	router, _, st := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/image", strings.NewReader("x"))
	req.Header.Set("Content-Type", "image/jpeg")
	req.ContentLength = 9_000_000
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "larger than 8MB")

	// No directory was created.
	ids, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUploadUnsupportedType(t *testing.T) {
	router, _, st := newTestAPI(t)

	rec := upload(t, router, "gif bytes", "image/gif", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ids, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListImages(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rec := get(router, "/image")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ids":[]}`, rec.Body.String())

	first := idFromLocation(t, upload(t, router, "a", "image/jpeg", ""))
	second := idFromLocation(t, upload(t, router, "b", "image/png", ""))

	rec = get(router, "/image")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.ElementsMatch(t, []string{first, second}, body.IDs)
}

func TestMetaUnknownID(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rec := get(router, "/image/00000000000000000000000000000000/meta")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "00000000000000000000000000000000")
}

func TestMetaMalformedID(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rec := get(router, "/image/not-a-content-id/meta")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSourceDownload(t *testing.T) {
	router, _, _ := newTestAPI(t)

	id := idFromLocation(t, upload(t, router, "jpeg bytes", "image/jpeg", "photo.jpg"))

	rec := get(router, "/image/"+id+"/source")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg bytes", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestSourceDownloadAttachment(t *testing.T) {
	router, _, _ := newTestAPI(t)

	id := idFromLocation(t, upload(t, router, "jpeg bytes", "image/jpeg", "photo.jpg"))

	for _, flag := range []string{"yes", "true", "y", "t", "YES", "True"} {
		rec := get(router, "/image/"+id+"/source?download="+flag)
		require.Equal(t, http.StatusOK, rec.Code, "download=%s", flag)
		assert.Equal(t, `attachment; filename="photo.jpg"`,
			rec.Header().Get("Content-Disposition"), "download=%s", flag)
	}

	rec := get(router, "/image/"+id+"/source?download=no")
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestTargetBeforeTransform(t *testing.T) {
	router, _, st := newTestAPI(t)

	// Seed an entry directly in stored state, bypassing the job.
	id, _, err := st.Admit(strings.NewReader("jpeg"), image.TypeJPG)
	require.NoError(t, err)
	require.NoError(t, st.WriteMeta(&image.Metadata{
		ContentID:     id,
		Status:        image.StatusStored,
		StoredAt:      time.Now(),
		SourceType:    image.TypeJPG,
		SourceQuality: 80,
		SourceSize:    4,
	}))

	rec := get(router, "/image/"+id+"/target")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTargetAfterTransform(t *testing.T) {
	router, jobs, _ := newTestAPI(t)

	id := idFromLocation(t, upload(t, router, "jpeg bytes", "image/jpeg", "photo.jpg"))
	jobs.Wait()

	rec := get(router, "/image/"+id+"/target")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestHealthEndpoints(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rec := get(router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(router, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}
