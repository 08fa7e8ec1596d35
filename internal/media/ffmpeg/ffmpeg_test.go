package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"video_clip_service/pkg/config"
	"video_clip_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Log = logger.Initialize("ffmpeg_test", os.TempDir())
	os.Exit(m.Run())
}

func testAdapter(t *testing.T, run runFunc) *Adapter {
	a := New(config.FFmpegConfig{WorkDir: t.TempDir()}, 30)
	a.run = run
	return a
}

// writeOutputArg locates the output path (the argument before the
// trailing -y) and creates a non-empty file there, the way the real
// tool would.
func writeOutputArg(t *testing.T, args []string) {
	require.GreaterOrEqual(t, len(args), 2)
	require.Equal(t, "-y", args[len(args)-1])
	require.NoError(t, os.WriteFile(args[len(args)-2], []byte("data"), 0644))
}

func TestProbeMetadata(t *testing.T) {
	stdout := []byte(`{
		"format": {"duration": "123.45", "bit_rate": "2500000"},
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"}
		]
	}`)
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return stdout, nil, nil
	})

	md, err := a.ProbeMetadata(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, 123.45, md.Duration)
	assert.Equal(t, 1920, md.Width)
	assert.Equal(t, 1080, md.Height)
	assert.Equal(t, "h264", md.Codec)
	assert.Equal(t, int64(2500000), md.BitRate)
	assert.InDelta(t, 29.97, md.FPS, 0.01)
}

func TestProbeMetadataRequiresDuration(t *testing.T) {
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"format": {}, "streams": []}`), nil, nil
	})

	_, err := a.ProbeMetadata(context.Background(), "in.mp4")
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.Equal(t, 24.0, parseFrameRate("24"))
	assert.Equal(t, 0.0, parseFrameRate("30/0"))
	assert.Equal(t, 0.0, parseFrameRate("garbage"))
}

func TestDetectSceneCutsShortVideoSkipsTool(t *testing.T) {
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		t.Fatal("short videos must not invoke the tool")
		return nil, nil, nil
	})

	cuts, err := a.DetectSceneCuts(context.Background(), "in.mp4", 20, 0.2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 20}, cuts)
}

func TestDetectSceneCutsParsesShowinfo(t *testing.T) {
	stderr := []byte(
		"[Parsed_showinfo_3 @ 0x1] n:0 pts:200 pts_time:40.04 duration:0.2\n" +
			"[Parsed_showinfo_3 @ 0x1] n:1 pts:400 pts_time:80.2 duration:0.2\n" +
			"frame irrelevancy line\n" +
			"[Parsed_showinfo_3 @ 0x1] n:2 pts:401 pts_time:80.2 duration:0.2\n")
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, stderr, nil
	})

	cuts, err := a.DetectSceneCuts(context.Background(), "in.mp4", 120, 0.2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 40.04, 80.2, 120}, cuts)
}

func TestDetectSceneCutsDegradesOnToolFailure(t *testing.T) {
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, nil, errors.New("killed")
	})

	cuts, err := a.DetectSceneCuts(context.Background(), "in.mp4", 90, 0.2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 90}, cuts)
}

func TestParseShowinfoTimestampsBounds(t *testing.T) {
	// out-of-range and duplicate timestamps are dropped
	stderr := "pts_time:-1 x\npts_time:0 x\npts_time:5.5 x\npts_time:5.5 x\npts_time:200 x\n"
	cuts := parseShowinfoTimestamps(stderr, 100)
	assert.Equal(t, []float64{0, 5.5, 100}, cuts)
}

func TestExtractThumbnailFallsBackToStart(t *testing.T) {
	calls := 0
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		calls++
		if calls == 1 {
			return nil, []byte("could not seek"), errors.New("exit 1")
		}
		writeOutputArg(t, args)
		return nil, nil, nil
	})

	out, err := a.ExtractThumbnail(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	st, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}

func TestExtractAudioCreatesWav(t *testing.T) {
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Contains(t, args, "pcm_s16le")
		assert.Contains(t, args, "16000")
		writeOutputArg(t, args)
		return nil, nil, nil
	})

	out, err := a.ExtractAudio(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(out))
}

func TestExtractSegmentFailureSurfacesStderr(t *testing.T) {
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("invalid time base"), errors.New("exit 1")
	})

	_, err := a.ExtractSegment(context.Background(), "in.mp4", 0, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time base")
}

func TestConcatenateSingleInputCopies(t *testing.T) {
	src := filepath.Join(t.TempDir(), "only.mp4")
	require.NoError(t, os.WriteFile(src, []byte("segment-bytes"), 0644))

	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		t.Fatal("single-input concatenation must not invoke the tool")
		return nil, nil, nil
	})

	out, err := a.Concatenate(context.Background(), []string{src})
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("segment-bytes"), data)
}

func TestConcatenateReencodesWhenStreamCopyFails(t *testing.T) {
	calls := 0
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		calls++
		if calls == 1 {
			assert.Contains(t, args, "copy")
			return nil, []byte("codec mismatch"), errors.New("exit 1")
		}
		assert.Contains(t, args, "libx264")
		writeOutputArg(t, args)
		return nil, nil, nil
	})

	_, err := a.Concatenate(context.Background(), []string{"a.mp4", "b.mp4"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConcatenateRejectsEmptyInput(t *testing.T) {
	a := testAdapter(t, nil)
	_, err := a.Concatenate(context.Background(), nil)
	assert.Error(t, err)
}

func TestProbeDuration(t *testing.T) {
	a := testAdapter(t, func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"format": {"duration": "61.5"}, "streams": []}`), nil, nil
	})

	d, err := a.ProbeDuration(context.Background(), "in.wav")
	require.NoError(t, err)
	assert.Equal(t, 61.5, d)
}
