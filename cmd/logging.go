package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
)

const (
	HandleKey string = "handle"
	RawKey    string = "raw"
)

func logReplacements(groups []string, a slog.Attr) slog.Attr {
	// Remove time.
	if a.Key == slog.TimeKey && len(groups) == 0 && !logTimeFlag {
		return slog.Attr{}
	}

	// Remove the directory from the source's filename.
	if a.Key == slog.SourceKey {
		source, ok := a.Value.Any().(*slog.Source)
		if ok {
			source.File = filepath.Base(source.File)
		}
	}

	// Association handles are opaque: they read better in hex.
	if a.Key == HandleKey && a.Value.Kind() == slog.KindUint64 {
		return slog.String(a.Key, fmt.Sprintf("%#016x", a.Value.Uint64()))
	}

	// Raw messages are dumped as a hex string.
	if a.Key == RawKey {
		if b, ok := a.Value.Any().([]byte); ok {
			return slog.String(a.Key, hex.EncodeToString(b))
		}
	}

	return a
}
