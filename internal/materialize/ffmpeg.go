package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils"
)

// EncoderSink pipes rgb24 frames into an ffmpeg encoder. Output goes to a
// hidden partial file beside the target and is renamed into place on Commit.
type EncoderSink struct {
	cmd       *utils.SafeCommand
	stdin     io.WriteCloser
	partial   string
	target    string
	frameSize int
	done      bool
}

// PartialPath returns the temporary path used while target is being encoded.
// The extension is kept so ffmpeg still picks the right container.
func PartialPath(target string) string {
	dir, base := filepath.Split(target)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+".partial"+ext)
}

// NewEncoderSink starts ffmpeg for target at the source's rate and dimensions.
func NewEncoderSink(ctx context.Context, target string, info types.VideoInfo, codec string) (*EncoderSink, error) {
	partial := PartialPath(target)
	cmd := utils.NewFFmpegEncoder(ctx, partial, info.FrameRate, info.Width, info.Height, codec)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &utils.CommandError{Cmd: cmd, Err: fmt.Errorf("failed to start encoder: %w", err)}
	}
	return &EncoderSink{
		cmd:       cmd,
		stdin:     stdin,
		partial:   partial,
		target:    target,
		frameSize: info.FrameSize(),
	}, nil
}

func (s *EncoderSink) WriteFrame(pix []byte) error {
	if len(pix) != s.frameSize {
		return fmt.Errorf("frame has %d bytes, encoder expects %d", len(pix), s.frameSize)
	}
	if _, err := s.stdin.Write(pix); err != nil {
		return &utils.CommandError{Cmd: s.cmd, Err: fmt.Errorf("encoder write: %w", err)}
	}
	return nil
}

func (s *EncoderSink) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		os.Remove(s.partial)
		return &utils.CommandError{Cmd: s.cmd, Err: fmt.Errorf("encoder process failed: %w", err)}
	}
	if err := os.Rename(s.partial, s.target); err != nil {
		os.Remove(s.partial)
		return fmt.Errorf("finalize %s: %w", s.target, err)
	}
	return nil
}

func (s *EncoderSink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	if err := os.Remove(s.partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
