package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speexx/guetzli-service/pkg/image"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestAdmitCreatesEntry(t *testing.T) {
	s := newTestStore(t)
	body := []byte("not really a jpeg")

	id, n, err := s.Admit(bytes.NewReader(body), image.TypeJPG)
	require.NoError(t, err)
	assert.True(t, image.ValidContentID(id), "content id %q", id)
	assert.Equal(t, int64(len(body)), n)

	stored, err := os.ReadFile(filepath.Join(s.Base(), id, "source.jpg"))
	require.NoError(t, err)
	assert.Equal(t, body, stored)
}

func TestAdmitDistinctIDs(t *testing.T) {
	s := newTestStore(t)

	a, _, err := s.Admit(bytes.NewReader([]byte("a")), image.TypeJPG)
	require.NoError(t, err)
	b, _, err := s.Admit(bytes.NewReader([]byte("b")), image.TypePNG)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = os.Stat(filepath.Join(s.Base(), b, "source.png"))
	assert.NoError(t, err)
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Admit(bytes.NewReader([]byte("x")), image.TypeJPG)
	require.NoError(t, err)

	meta := &image.Metadata{
		ContentID:     id,
		Status:        image.StatusStored,
		StoredAt:      time.Date(2017, 5, 12, 9, 0, 0, 0, time.Local),
		SourceType:    image.TypeJPG,
		SourceQuality: 90,
		SourceSize:    1,
	}
	require.NoError(t, s.WriteMeta(meta))

	got, err := s.ReadMeta(id)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestReadMetaNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadMeta("0f8fad5bd9cb469fa165708867fc4a5e")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadMetaCorrupt(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Admit(bytes.NewReader([]byte("x")), image.TypeJPG)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.Base(), id, "meta"),
		[]byte("process.status = nonsense\n"), 0o644))

	_, err = s.ReadMeta(id)
	assert.ErrorIs(t, err, image.ErrCorruptMetadata)
}

func TestReadTargetBeforeTransform(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Admit(bytes.NewReader([]byte("x")), image.TypeJPG)
	require.NoError(t, err)

	_, err = s.ReadTarget(id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.TargetSize(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadSource(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Admit(bytes.NewReader([]byte("payload")), image.TypePNG)
	require.NoError(t, err)

	r, err := s.ReadSource(id, image.TypePNG)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestListAndDelete(t *testing.T) {
	s := newTestStore(t)

	a, _, err := s.Admit(bytes.NewReader([]byte("a")), image.TypeJPG)
	require.NoError(t, err)
	b, _, err := s.Admit(bytes.NewReader([]byte("b")), image.TypeJPG)
	require.NoError(t, err)

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, ids)

	require.NoError(t, s.Delete(a))

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{b}, ids)

	// Deleting an absent entry is a no-op.
	assert.NoError(t, s.Delete(a))
}

func TestDefaultBaseInHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultBaseDirName), s.Base())

	_, err = os.Stat(s.Base())
	assert.NoError(t, err)
}
