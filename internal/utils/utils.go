package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/andresmejia3/reframe/internal/types"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg logs)
// This ensures we don't lose critical crash information if a subprocess dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a context-bound command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// CommandError carries the captured stderr of a failed subprocess so the
// error report can show it.
type CommandError struct {
	Cmd *SafeCommand
	Err error
}

func (e *CommandError) Error() string { return e.Err.Error() }
func (e *CommandError) Unwrap() error { return e.Err }

// ShowError is the unified error report for reframe.
// It prints a formatted error box and dumps subprocess logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 REFRAME ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nFFMPEG LOGS:\n%s\n", strings.TrimSpace(s.Stderr.String()))
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Video Engine (Shared by Ingest & Materialize) ---

// ffprobeOutput is the subset of `ffprobe -of json` we read.
type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		RFrameRate    string `json:"r_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// GetVideoInfo probes the first video stream for dimensions, frame rate and frame count.
// A zero FrameCount means the count is unknown and callers should fall back to a spinner.
func GetVideoInfo(ctx context.Context, path string) (types.VideoInfo, error) {
	var info types.VideoInfo
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return info, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	probe := NewSafeCommand(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames", "-of", "json", path)
	out, err := probe.Output()
	if err != nil {
		return info, &CommandError{Cmd: probe, Err: fmt.Errorf("ffprobe failed: %w", err)}
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return info, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return info, fmt.Errorf("no video stream in %s", path)
	}
	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return info, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}
	info.Width, info.Height = s.Width, s.Height

	// Prefer the average rate; r_frame_rate can be a field rate for interlaced sources.
	info.FrameRate = s.AvgFrameRate
	fps, err := ParseFrameRate(info.FrameRate)
	if err != nil || fps <= 0 {
		info.FrameRate = s.RFrameRate
		if fps, err = ParseFrameRate(info.FrameRate); err != nil || fps <= 0 {
			return info, fmt.Errorf("could not determine frame rate (avg=%q, r=%q)", s.AvgFrameRate, s.RFrameRate)
		}
	}
	info.FPS = fps

	// 1. Fast Path: Check Container Metadata
	if count, err := strconv.Atoi(s.NbFrames); err == nil && count > 0 {
		info.FrameCount = count
		return info, nil
	}

	// 2. Slow Path: Count Packets (Fallback)
	info.FrameCount = countPackets(ctx, path)
	return info, nil
}

// countPackets decodes packet headers to count frames. It returns 0 if the count fails.
func countPackets(ctx context.Context, path string) int {
	cmd := NewSafeCommand(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		return 0
	}
	return count
}

// ParseFrameRate evaluates an ffprobe rational such as "30000/1001" or a plain number.
func ParseFrameRate(rate string) (float64, error) {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid frame rate %q: zero denominator", rate)
	}
	return n / d, nil
}

// NewFFmpegRawDecoder creates a decoder pipe that emits packed rgb24 frames on Stdout.
// -vsync passthrough keeps one output frame per decoded frame so indices stay stable.
func NewFFmpegRawDecoder(ctx context.Context, inputPath string) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", inputPath, "-map", "0:v:0", "-fps_mode", "passthrough",
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-")
}

// NewFFmpegEncoder creates an encoder that reads packed rgb24 frames from Stdin
// and writes them at the source frame rate and dimensions.
func NewFFmpegEncoder(ctx context.Context, outputPath, frameRate string, width, height int, codec string) *SafeCommand {
	return NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-s", fmt.Sprintf("%dx%d", width, height),
		"-r", frameRate, "-i", "-",
		"-an", "-c:v", codec, "-pix_fmt", "yuv420p", outputPath)
}

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
