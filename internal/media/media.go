// Package media is the external media-splitting capability: probing a
// container for its time/frame metadata and cutting time-bounded slices out
// of it. The ingestion pipeline only depends on the interfaces here.
package media

import "context"

// Info describes a probed media container.
type Info struct {
	// Duration is the total playable length in seconds.
	Duration float64
	// FPS is the average video frame rate.
	FPS float64
	// FrameCount is the total number of video frames.
	FrameCount int
}

// Prober extracts container metadata from a local media file.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// Cutter writes the [start, end) slice of a local media file to outPath.
// Times are in seconds from the beginning of the file.
type Cutter interface {
	Cut(ctx context.Context, path string, start, end float64, outPath string) error
}
