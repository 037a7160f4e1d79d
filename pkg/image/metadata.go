package image

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/magiconair/properties"
)

// Metadata is the per-entry record persisted as a properties file named
// "meta" inside the entry directory. The record is written once at
// admission and rewritten on every state transition; StoredAt is assigned
// at admission and never changes afterwards.
type Metadata struct {
	ContentID     string
	Status        Status
	StoredAt      time.Time
	SourceName    string // optional upload filename
	SourceType    Type
	SourceQuality int   // 1..100, 100 for PNG sources
	SourceSize    int64 // bytes
	TargetQuality int   // set only after a successful transform
	TargetSize    int64 // set only after a successful transform
}

// Property keys of the metadata record.
const (
	keyContentID     = "contentId"
	keyStatus        = "process.status"
	keyStoredAt      = "stored.datetime"
	keySourceName    = "source.name"
	keySourceType    = "source.type"
	keySourceQuality = "source.quality"
	keySourceSize    = "source.size"
	keyTargetQuality = "target.quality"
	keyTargetSize    = "target.size"
)

// storedAtLayout is an ISO-8601 local date-time without zone offset.
// The fractional second part is optional on parse and trimmed on format.
const storedAtLayout = "2006-01-02T15:04:05.999999999"

// contentIDPattern matches a UUID with the hyphens stripped.
var contentIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ValidContentID reports whether id is a well-formed content id.
func ValidContentID(id string) bool {
	return contentIDPattern.MatchString(id)
}

// WriteTo serialises the record in properties format with ISO-8859-1-safe
// escaping. Target fields are emitted only when set, which by invariant
// means only for transformed entries.
func (m *Metadata) WriteTo(w io.Writer) (int64, error) {
	p := properties.NewProperties()

	set := func(key, value string) error {
		if _, _, err := p.Set(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	}

	pairs := []struct{ key, value string }{
		{keyContentID, m.ContentID},
		{keyStatus, string(m.Status)},
		{keyStoredAt, m.StoredAt.Format(storedAtLayout)},
		{keySourceType, string(m.SourceType)},
		{keySourceQuality, strconv.Itoa(m.SourceQuality)},
		{keySourceSize, strconv.FormatInt(m.SourceSize, 10)},
	}
	for _, kv := range pairs {
		if err := set(kv.key, kv.value); err != nil {
			return 0, err
		}
	}
	if m.SourceName != "" {
		if err := set(keySourceName, m.SourceName); err != nil {
			return 0, err
		}
	}
	if m.TargetQuality > 0 {
		if err := set(keyTargetQuality, strconv.Itoa(m.TargetQuality)); err != nil {
			return 0, err
		}
	}
	if m.TargetSize > 0 {
		if err := set(keyTargetSize, strconv.FormatInt(m.TargetSize, 10)); err != nil {
			return 0, err
		}
	}

	n, err := p.Write(w, properties.ISO_8859_1)
	return int64(n), err
}

// Marshal returns the serialised record.
func (m *Metadata) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseMetadata parses a properties-format record. A syntactically broken
// file, a missing mandatory key, or an out-of-range value yields
// ErrCorruptMetadata (wrapped with detail).
func ParseMetadata(data []byte) (*Metadata, error) {
	p, err := properties.Load(data, properties.ISO_8859_1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}

	m := &Metadata{}

	id, ok := p.Get(keyContentID)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMetadata, keyContentID)
	}
	m.ContentID = id

	if s, ok := p.Get(keyStatus); ok {
		status, err := ParseStatus(s)
		if err != nil {
			return nil, err
		}
		m.Status = status
	}

	if s, ok := p.Get(keyStoredAt); ok {
		t, err := time.ParseInLocation(storedAtLayout, s, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptMetadata, keyStoredAt, err)
		}
		m.StoredAt = t
	}

	if s, ok := p.Get(keySourceName); ok {
		m.SourceName = s
	}

	if s, ok := p.Get(keySourceType); ok {
		typ, err := ParseType(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q", ErrCorruptMetadata, keySourceType, s)
		}
		m.SourceType = typ
	}

	for _, f := range []struct {
		key string
		dst *int64
	}{
		{keySourceSize, &m.SourceSize},
		{keyTargetSize, &m.TargetSize},
	} {
		if s, ok := p.Get(f.key); ok {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("%w: %s: %q", ErrCorruptMetadata, f.key, s)
			}
			*f.dst = v
		}
	}

	for _, f := range []struct {
		key string
		dst *int
	}{
		{keySourceQuality, &m.SourceQuality},
		{keyTargetQuality, &m.TargetQuality},
	} {
		if s, ok := p.Get(f.key); ok {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 || v > 100 {
				return nil, fmt.Errorf("%w: %s: %q", ErrCorruptMetadata, f.key, s)
			}
			*f.dst = v
		}
	}

	return m, nil
}
