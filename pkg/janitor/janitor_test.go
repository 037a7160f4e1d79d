package janitor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speexx/guetzli-service/pkg/image"
	"github.com/speexx/guetzli-service/pkg/store"
)

func seedEntry(t *testing.T, st *store.Store, storedAt time.Time) string {
	t.Helper()
	id, _, err := st.Admit(bytes.NewReader([]byte("jpeg")), image.TypeJPG)
	require.NoError(t, err)
	require.NoError(t, st.WriteMeta(&image.Metadata{
		ContentID:     id,
		Status:        image.StatusTransformed,
		StoredAt:      storedAt,
		SourceType:    image.TypeJPG,
		SourceQuality: 80,
		SourceSize:    4,
	}))
	return id
}

func TestNextRun(t *testing.T) {
	j := New(nil, 0, 0)

	cases := []struct {
		now  string
		want string
	}{
		{"2026-08-26T10:00:00Z", "2026-08-26T10:00:11Z"},
		{"2026-08-26T10:00:10Z", "2026-08-26T10:00:11Z"},
		{"2026-08-26T10:00:11Z", "2026-08-26T10:30:11Z"},
		{"2026-08-26T10:15:42Z", "2026-08-26T10:30:11Z"},
		{"2026-08-26T10:30:11Z", "2026-08-26T11:00:11Z"},
		{"2026-08-26T10:59:59Z", "2026-08-26T11:00:11Z"},
	}
	for _, tc := range cases {
		now, err := time.Parse(time.RFC3339, tc.now)
		require.NoError(t, err)
		want, err := time.Parse(time.RFC3339, tc.want)
		require.NoError(t, err)
		assert.Equal(t, want, j.nextRun(now), "now=%s", tc.now)
	}
}

func TestSweepDeletesExpired(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	expired := seedEntry(t, st, time.Now().Add(-25*time.Hour))
	fresh := seedEntry(t, st, time.Now().Add(-1*time.Hour))

	New(st, 0, 0).Sweep()

	ids, err := st.List()
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, ids)

	_, err = st.ReadMeta(expired)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSweepKeepsEntryAtBoundary(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	// Just inside the retention window.
	id := seedEntry(t, st, time.Now().Add(-24*time.Hour+time.Minute))

	New(st, 0, 0).Sweep()

	ids, err := st.List()
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestSweepSkipsUnreadableMetadata(t *testing.T) {
	base := t.TempDir()
	st, err := store.New(base)
	require.NoError(t, err)

	broken := seedEntry(t, st, time.Now().Add(-48*time.Hour))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, broken, "meta"),
		[]byte("process.status = no-such-status\n"), 0o644))

	New(st, 0, 0).Sweep()

	// The damaged entry survives the sweep.
	ids, err := st.List()
	require.NoError(t, err)
	assert.Equal(t, []string{broken}, ids)
}

func TestSweepRespectsConfiguredAge(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	id := seedEntry(t, st, time.Now().Add(-2*time.Hour))

	New(st, time.Hour, 0).Sweep()

	_, err = st.ReadMeta(id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
