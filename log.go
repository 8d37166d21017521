package rwlock

import (
	"log/slog"

	"github.com/sharedlock/rwlock/internal/rtlog"
)

// SetLogger replaces the package-level logger used by every internal
// component (acquire/release/GC debug logging). The provided logger is used
// as given and should already carry any desired attributes; rwlock adds none
// of its own to it.
//
// If l is nil, the logger resets to the default: slog.Default() with a
// "component" attribute, re-derived on the next log call and then cached.
//
// Safe to call concurrently with any other rwlock operation.
func SetLogger(l *slog.Logger) {
	rtlog.SetLogger(l)
}
