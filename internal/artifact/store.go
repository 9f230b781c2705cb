// Package artifact keeps the raw observations of each flow as a CSV file so a
// reprocess can replay exactly what the source returned.
package artifact

import (
	"context"
	"io"
	"strings"

	"dtfcapture/internal/flow"
	"dtfcapture/internal/series"
)

type Store interface {
	// Create starts a new artifact. Nothing is visible to Exists or Read until
	// the writer is committed.
	Create(ctx context.Context, fc flow.Context) (Writer, error)
	Exists(ctx context.Context, fc flow.Context) (bool, error)
	Read(ctx context.Context, fc flow.Context, fn func(series.Observation) error) error
	Open(ctx context.Context, fc flow.Context) (io.ReadCloser, error)
}

type Writer interface {
	Append(o series.Observation) error
	Commit() error
	Abort() error
}

// Uploader copies a committed artifact to external storage.
type Uploader interface {
	Upload(ctx context.Context, fc flow.Context, content io.Reader) error
}

func ObjectKey(environment string, fc flow.Context) string {
	name := FileName(fc)
	if environment == "" {
		return "dtf/" + fc.CaptureDate.Format(dirLayout) + "/" + name
	}
	return environment + "/dtf/" + fc.CaptureDate.Format(dirLayout) + "/" + name
}

const dirLayout = "20060102"

// FileName is the flow id without dashes plus the csv extension.
func FileName(fc flow.Context) string {
	return strings.ReplaceAll(fc.ID.String(), "-", "") + ".csv"
}
