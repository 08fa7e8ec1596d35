package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"video_clip_service/pkg/config"
	"video_clip_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Metadata is the probe result for one media file.
type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Codec    string  `json:"codec"`
	BitRate  int64   `json:"bit_rate"`
}

// runFunc executes one external command and returns stdout and stderr
// separately. Injected so tests can run without the binaries.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func defaultRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Adapter wraps the ffmpeg/ffprobe binaries. Every operation carries an
// explicit deadline; file-creating operations poll for filesystem
// visibility before declaring success.
type Adapter struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string

	probeTimeout time.Duration
	sceneTimeout time.Duration
	toolTimeout  time.Duration

	shortVideoSeconds float64

	run runFunc
}

// New builds an Adapter from config, filling sane defaults.
func New(cfg config.FFmpegConfig, shortVideoSeconds float64) *Adapter {
	a := &Adapter{
		ffmpegPath:        cfg.FFmpegPath,
		ffprobePath:       cfg.FFprobePath,
		workDir:           cfg.WorkDir,
		probeTimeout:      time.Duration(cfg.ProbeTimeout) * time.Second,
		sceneTimeout:      time.Duration(cfg.SceneTimeout) * time.Second,
		toolTimeout:       time.Duration(cfg.ToolTimeout) * time.Second,
		shortVideoSeconds: shortVideoSeconds,
		run:               defaultRun,
	}
	if a.ffmpegPath == "" {
		a.ffmpegPath = "ffmpeg"
	}
	if a.ffprobePath == "" {
		a.ffprobePath = "ffprobe"
	}
	if a.workDir == "" {
		a.workDir = os.TempDir()
	}
	if a.probeTimeout <= 0 {
		a.probeTimeout = 30 * time.Second
	}
	if a.sceneTimeout <= 0 {
		a.sceneTimeout = 2 * time.Minute
	}
	if a.toolTimeout <= 0 {
		a.toolTimeout = 5 * time.Minute
	}
	if a.shortVideoSeconds <= 0 {
		a.shortVideoSeconds = 30
	}
	return a
}

// ffprobe JSON output, format/stream fields we care about.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// ProbeMetadata runs ffprobe and extracts duration, dimensions, fps,
// codec and bitrate.
func (a *Adapter) ProbeMetadata(ctx context.Context, path string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	stdout, stderr, err := a.run(ctx, a.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr)
	}

	var out probeOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, fmt.Errorf("ffprobe output unmarshal failed: %w", err)
	}
	if out.Format.Duration == "" {
		return nil, fmt.Errorf("ffprobe output has no duration for %s", path)
	}

	duration, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("ffprobe duration parse failed: %w", err)
	}

	md := &Metadata{Duration: duration}
	if out.Format.BitRate != "" {
		md.BitRate, _ = strconv.ParseInt(out.Format.BitRate, 10, 64)
	}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		md.Width = s.Width
		md.Height = s.Height
		md.Codec = s.CodecName
		md.FPS = parseFrameRate(s.RFrameRate)
		break
	}
	return md, nil
}

// ProbeDuration returns only the duration in seconds.
func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	md, err := a.ProbeMetadata(ctx, path)
	if err != nil {
		return 0, err
	}
	return md.Duration, nil
}

// parseFrameRate converts ffprobe's "30000/1001" form to a float.
func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(r, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ExtractThumbnail grabs one frame at t=1s, falling back to t=0s for
// clips too short for the first attempt.
func (a *Adapter) ExtractThumbnail(ctx context.Context, path string) (string, error) {
	out := filepath.Join(a.workDir, fmt.Sprintf("thumb_%s.jpg", uuid.NewString()))

	if err := a.thumbnailAt(ctx, path, out, 1.0); err != nil {
		logger.Log.Warn("thumbnail at t=1s failed, falling back to t=0s",
			zap.String("path", path), zap.Error(err))
		if err := a.thumbnailAt(ctx, path, out, 0.0); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (a *Adapter) thumbnailAt(ctx context.Context, path, out string, at float64) error {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	_, stderr, err := a.run(ctx, a.ffmpegPath,
		"-i", path,
		"-ss", formatSeconds(at),
		"-vframes", "1",
		"-vf", "scale=320:-1",
		out,
		"-y",
	)
	if err != nil {
		return fmt.Errorf("ffmpeg thumbnail failed: %w, stderr: %s", err, stderr)
	}
	return a.waitForFile(out)
}

// ExtractAudio produces the canonical transcription input: WAV, mono,
// 16kHz PCM.
func (a *Adapter) ExtractAudio(ctx context.Context, path string) (string, error) {
	out := filepath.Join(a.workDir, fmt.Sprintf("audio_%s.wav", uuid.NewString()))

	ctx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	_, stderr, err := a.run(ctx, a.ffmpegPath,
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		out,
		"-y",
	)
	if err != nil {
		return "", fmt.Errorf("ffmpeg audio extract failed: %w, stderr: %s", err, stderr)
	}
	if err := a.waitForFile(out); err != nil {
		return "", err
	}
	return out, nil
}

// ExtractAudioSegment extracts [start,end) of the audio track as WAV
// mono 16kHz. Used by the cloud transcriber to split oversized inputs.
func (a *Adapter) ExtractAudioSegment(ctx context.Context, path string, start, end float64) (string, error) {
	out := filepath.Join(a.workDir, fmt.Sprintf("audio_seg_%s.wav", uuid.NewString()))

	ctx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	_, stderr, err := a.run(ctx, a.ffmpegPath,
		"-i", path,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(end-start),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		out,
		"-y",
	)
	if err != nil {
		return "", fmt.Errorf("ffmpeg audio segment failed: %w, stderr: %s", err, stderr)
	}
	if err := a.waitForFile(out); err != nil {
		return "", err
	}
	return out, nil
}

// DetectSceneCuts returns sorted cut timestamps bounded by 0 and
// duration. Videos at or under the short-video cutoff skip the tool
// entirely, and a timeout or tool failure degrades to [0, duration]
// instead of failing the pipeline.
func (a *Adapter) DetectSceneCuts(ctx context.Context, path string, duration, threshold float64) ([]float64, error) {
	if duration <= a.shortVideoSeconds {
		return []float64{0, duration}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.sceneTimeout)
	defer cancel()

	// Downsample frame rate and resolution first: cut detection only
	// needs coarse frames.
	filter := fmt.Sprintf("fps=5,scale=320:-2,select='gt(scene,%s)',showinfo", formatSeconds(threshold))
	_, stderr, err := a.run(ctx, a.ffmpegPath,
		"-i", path,
		"-vf", filter,
		"-f", "null", "-",
	)
	if err != nil {
		logger.Log.Warn("scene detection degraded to whole-video span",
			zap.String("path", path), zap.Error(err))
		return []float64{0, duration}, nil
	}

	cuts := parseShowinfoTimestamps(string(stderr), duration)
	return cuts, nil
}

// parseShowinfoTimestamps pulls pts_time values out of showinfo stderr
// output and normalizes them into a sorted boundary list seeded with 0
// and terminated with duration.
func parseShowinfoTimestamps(stderr string, duration float64) []float64 {
	seen := map[float64]bool{0: true}
	cuts := []float64{0}

	for _, line := range strings.Split(stderr, "\n") {
		idx := strings.Index(line, "pts_time:")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("pts_time:"):]
		if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
			rest = rest[:sp]
		}
		ts, err := strconv.ParseFloat(rest, 64)
		if err != nil || ts <= 0 || ts >= duration || seen[ts] {
			continue
		}
		seen[ts] = true
		cuts = append(cuts, ts)
	}

	sort.Float64s(cuts)
	return append(cuts, duration)
}

// ExtractSegment stream-copies [start,end) of the video into a new
// file.
func (a *Adapter) ExtractSegment(ctx context.Context, path string, start, end float64) (string, error) {
	out := filepath.Join(a.workDir, fmt.Sprintf("seg_%s.mp4", uuid.NewString()))

	ctx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	_, stderr, err := a.run(ctx, a.ffmpegPath,
		"-i", path,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(end-start),
		"-c", "copy",
		out,
		"-y",
	)
	if err != nil {
		return "", fmt.Errorf("ffmpeg segment extract failed: %w, stderr: %s", err, stderr)
	}
	if err := a.waitForFile(out); err != nil {
		return "", err
	}
	return out, nil
}

// Concatenate joins the inputs in order into one file. A single input
// is a plain file copy, not a re-encode. Multiple inputs go through the
// concat demuxer with stream copy first and a re-encode fallback for
// mismatched codecs.
func (a *Adapter) Concatenate(ctx context.Context, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("concatenate: no input files")
	}

	out := filepath.Join(a.workDir, fmt.Sprintf("concat_%s.mp4", uuid.NewString()))

	if len(paths) == 1 {
		if err := copyFile(paths[0], out); err != nil {
			return "", fmt.Errorf("concatenate single copy failed: %w", err)
		}
		return out, nil
	}

	listPath := filepath.Join(a.workDir, fmt.Sprintf("concat_%s.txt", uuid.NewString()))
	var list strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return "", fmt.Errorf("concat list write failed: %w", err)
	}
	defer os.Remove(listPath)

	ctx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	// Stream copy first; codecs usually match because the inputs came
	// out of ExtractSegment.
	_, stderr, err := a.run(ctx, a.ffmpegPath,
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		out,
		"-y",
	)
	if err != nil {
		logger.Log.Warn("concat stream copy failed, re-encoding",
			zap.Error(err), zap.String("stderr", tail(string(stderr), 400)))
		_, stderr, err = a.run(ctx, a.ffmpegPath,
			"-f", "concat", "-safe", "0",
			"-i", listPath,
			"-c:v", "libx264", "-preset", "fast", "-crf", "22",
			"-c:a", "aac", "-b:a", "128k",
			out,
			"-y",
		)
		if err != nil {
			return "", fmt.Errorf("ffmpeg concat failed: %w, stderr: %s", err, stderr)
		}
	}
	if err := a.waitForFile(out); err != nil {
		return "", err
	}
	return out, nil
}

// waitForFile polls briefly for the output to become visible and
// non-empty; some filesystems flush asynchronously after the tool
// exits.
func (a *Adapter) waitForFile(path string) error {
	for i := 0; i < 20; i++ {
		if st, err := os.Stat(path); err == nil && st.Size() > 0 {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("output file %s not visible after tool exit", path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
