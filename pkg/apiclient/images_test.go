package apiclient

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/image", r.URL.Path)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		assert.Equal(t, "photo.jpg", r.Header.Get("X-Guetzli-Img-Name"))

		w.Header().Set("Location", "/image/0123456789abcdef0123456789abcdef/source")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	id, err := New(srv.URL).Upload(strings.NewReader("jpeg"), 4, "image/jpeg", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", id)
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "image is larger than 8MB", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Upload(strings.NewReader("x"), 1, "image/jpeg", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "larger than 8MB")
}

func TestListAndMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/image":
			_, _ = w.Write([]byte(`{"ids":["aa","bb"]}`))
		case "/image/aa/meta":
			_, _ = w.Write([]byte(`{"contentId":"aa","status":"transformed",` +
				`"source":{"mime":"image/jpeg","qualitylevel":90,"size":100},` +
				`"target":{"qualitylevel":90,"size":60}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)

	ids, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, ids)

	meta, err := c.GetMeta("aa")
	require.NoError(t, err)
	assert.Equal(t, "transformed", meta.Status)
	require.NotNil(t, meta.Target)
	assert.Equal(t, int64(60), meta.Target.Size)

	_, err = c.GetMeta("zz")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestDownloadTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/image/aa/target", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	require.NoError(t, New(srv.URL).DownloadTarget("aa", &buf))
	assert.Equal(t, "jpeg bytes", buf.String())
}
