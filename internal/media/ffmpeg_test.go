package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	out := "avg_frame_rate=30000/1001\nnb_frames=3754\nduration=125.250000\n"

	info, err := parseProbeOutput(out)
	require.NoError(t, err)
	assert.InDelta(t, 125.25, info.Duration, 1e-9)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 3754, info.FrameCount)
}

func TestParseProbeOutputDerivesFrameCount(t *testing.T) {
	// Streamed containers often report nb_frames=N/A.
	out := "avg_frame_rate=25/1\nnb_frames=N/A\nduration=10.000000\n"

	info, err := parseProbeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, 250, info.FrameCount)
}

func TestParseProbeOutputMissingDuration(t *testing.T) {
	_, err := parseProbeOutput("avg_frame_rate=25/1\nnb_frames=100\n")
	assert.Error(t, err)
}

func TestParseProbeOutputBadValues(t *testing.T) {
	_, err := parseProbeOutput("duration=soon\n")
	assert.Error(t, err)

	_, err = parseProbeOutput("duration=10\navg_frame_rate=25/0\n")
	assert.Error(t, err)
}

func TestParseRational(t *testing.T) {
	fps, err := parseRational("30000/1001")
	require.NoError(t, err)
	assert.InDelta(t, 29.97, fps, 0.01)

	fps, err = parseRational("25")
	require.NoError(t, err)
	assert.Equal(t, 25.0, fps)
}
