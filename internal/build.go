package internal

import (
	"log/slog"
	"runtime/debug"
	"time"
)

// BuildInfo describes the VCS state the binary was built from.
type BuildInfo struct {
	Revision      string
	RevisionTime  time.Time
	LocalModified bool
}

// Version returns the revision, marked dirty when built from a modified tree.
func (b BuildInfo) Version() string {
	if b.LocalModified {
		return b.Revision + "-dirty"
	}
	return b.Revision
}

func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("revision", b.Revision),
		slog.Time("revisionTime", b.RevisionTime),
		slog.Bool("localModified", b.LocalModified),
	)
}

// Build is read once from the embedded build info.
var Build = readBuildInfo()

func readBuildInfo() BuildInfo {
	b := BuildInfo{Revision: "unknown"}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
		case "vcs.time":
			// a malformed time is not worth failing startup over.
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err == nil {
				b.RevisionTime = t
			}
		case "vcs.modified":
			b.LocalModified = setting.Value == "true"
		}
	}

	return b
}
