package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently so
// log aggregation can query across the HTTP layer, the transform jobs
// and the janitor.
const (
	// HTTP request handling
	KeyRequestID  = "request_id"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyClientIP   = "client_ip"
	KeyStatusCode = "status_code"

	// Content entries
	KeyContentID = "content_id"
	KeyType      = "type"    // source media type: JPG, PNG
	KeySize      = "size"    // byte count
	KeyQuality   = "quality" // JPEG quality level 1..100
	KeyStatus    = "status"  // entry lifecycle state

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Field constructors for the hot paths.

// ContentID returns a slog.Attr for a content identifier.
func ContentID(id string) slog.Attr {
	return slog.String(KeyContentID, id)
}

// RequestID returns a slog.Attr for an HTTP request identifier.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ClientIP returns a slog.Attr for the client address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Size returns a slog.Attr for a byte count.
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// Quality returns a slog.Attr for a JPEG quality level.
func Quality(q int) slog.Attr {
	return slog.Int(KeyQuality, q)
}

// Status returns a slog.Attr for an entry lifecycle state.
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
