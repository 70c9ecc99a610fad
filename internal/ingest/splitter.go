package ingest

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/svrlab/video-archiver/internal/media"
	"github.com/svrlab/video-archiver/internal/service"
)

// chunkSpan is one planned slice of a source's timeline.
type chunkSpan struct {
	Start  float64
	End    float64
	Frames int
}

// planChunks computes deterministic chunk boundaries for a probed container:
// fixed-duration spans from zero with a short tail. Frame counts are derived
// from the cumulative frame position at each boundary so they always sum to
// the container's total. Spans that would hold zero frames are dropped.
//
// Determinism matters: a crashed worker re-planning the same input must
// produce the same file paths so already-indexed chunks dedupe on insert.
func planChunks(info media.Info, chunkSeconds float64) []chunkSpan {
	if info.Duration <= 0 || chunkSeconds <= 0 {
		return nil
	}

	var spans []chunkSpan
	prevFrames := 0
	for start := 0.0; start < info.Duration; start += chunkSeconds {
		end := math.Min(start+chunkSeconds, info.Duration)
		cumFrames := int(math.Round(end / info.Duration * float64(info.FrameCount)))
		frames := cumFrames - prevFrames
		prevFrames = cumFrames
		if frames == 0 {
			continue
		}
		spans = append(spans, chunkSpan{Start: start, End: end, Frames: frames})
	}
	return spans
}

// chunkFilePath returns the canonical path for a chunk file. Zero-padded
// fixed-width timestamps keep lexical and chronological order identical.
func chunkFilePath(chunksDir string, sourceID uint, span chunkSpan) string {
	name := fmt.Sprintf("%012.3f_%012.3f.mp4", span.Start, span.End)
	return filepath.Join(chunksDir, strconv.FormatUint(uint64(sourceID), 10), name)
}

// Splitter partitions a downloaded media file into an ordered sequence of
// chunk files using the injected probe/cut capability.
type Splitter struct {
	prober       media.Prober
	cutter       media.Cutter
	chunksDir    string
	chunkSeconds float64
}

// NewSplitter creates a splitter writing chunk files under cfg.ChunksDir.
func NewSplitter(prober media.Prober, cutter media.Cutter, cfg *Config) *Splitter {
	return &Splitter{
		prober:       prober,
		cutter:       cutter,
		chunksDir:    cfg.ChunksDir,
		chunkSeconds: cfg.ChunkDuration.Seconds(),
	}
}

// Split probes the file at path and cuts it into chunk files for sourceID,
// returning the ordered chunk metadata. Any probe or cut failure maps to
// ErrDecode, which is fatal for the source.
func (s *Splitter) Split(ctx context.Context, sourceID uint, path string) ([]service.Chunk, error) {
	info, err := s.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	spans := planChunks(info, s.chunkSeconds)
	chunks := make([]service.Chunk, 0, len(spans))
	for _, span := range spans {
		outPath := chunkFilePath(s.chunksDir, sourceID, span)
		if err := s.cutter.Cut(ctx, path, span.Start, span.End, outPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		chunks = append(chunks, service.Chunk{
			FilePath:   outPath,
			StartTime:  span.Start,
			EndTime:    span.End,
			FrameCount: span.Frames,
		})
	}
	return chunks, nil
}
