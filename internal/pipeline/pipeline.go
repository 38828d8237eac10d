// Package pipeline runs one reconstruction: decode, filter, reorder and write
// the forward and reverse candidates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/framecache"
	"github.com/andresmejia3/reframe/internal/ingest"
	"github.com/andresmejia3/reframe/internal/materialize"
	"github.com/andresmejia3/reframe/internal/outlier"
	"github.com/andresmejia3/reframe/internal/reorder"
	"github.com/andresmejia3/reframe/internal/report"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/types"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

var (
	// ErrSameFile is returned when an output path would overwrite the input or the other output.
	ErrSameFile = errors.New("input and output paths must be different")
	// ErrOutputExists is returned when a candidate path already exists and the job does not allow overwriting.
	ErrOutputExists = errors.New("output already exists")
)

// Job names one source video and where its candidates go. Empty output paths
// default to <stem>_forward<ext> and <stem>_reverse<ext> beside the input.
type Job struct {
	Input       string
	ForwardPath string
	ReversePath string
	ScoreChart  string // Optional PNG path for the score chart.
	// Overwrite replaces existing candidates. A replaced file is gone even if
	// the run later fails.
	Overwrite bool
}

// Ledger is the subset of *store.Store a run writes to.
type Ledger interface {
	EnsureVideoMetadata(ctx context.Context, videoID, path string) error
	RecordRun(ctx context.Context, run store.Run) error
}

// ProbeFunc reads stream metadata for a video.
type ProbeFunc func(ctx context.Context, path string) (types.VideoInfo, error)

// DecodeFunc decodes every frame of a video, handing color frames to fs.
type DecodeFunc func(ctx context.Context, path string, info types.VideoInfo, bins int, fs ingest.FrameStore, progress ingest.Progress) (*ingest.Batch, error)

// SinkFunc opens the writer for one candidate video.
type SinkFunc func(ctx context.Context, target string, info types.VideoInfo, codec string) (materialize.Sink, error)

// Deps wires a run to the outside world. Zero fields fall back to ffmpeg,
// no ledger, no progress bars and a disabled logger.
type Deps struct {
	Ledger   Ledger
	Logger   *zerolog.Logger
	Progress io.Writer

	Probe   ProbeFunc
	Decode  DecodeFunc
	NewSink SinkFunc
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		nop := zerolog.Nop()
		d.Logger = &nop
	}
	if d.Probe == nil {
		d.Probe = utils.GetVideoInfo
	}
	if d.Decode == nil {
		d.Decode = ingest.Decode
	}
	if d.NewSink == nil {
		d.NewSink = func(ctx context.Context, target string, info types.VideoInfo, codec string) (materialize.Sink, error) {
			return materialize.NewEncoderSink(ctx, target, info, codec)
		}
	}
	return d
}

// Result describes one finished run.
type Result struct {
	RunID   string
	VideoID string
	Info    types.VideoInfo

	// FrameCount is the number of frames actually decoded.
	FrameCount int
	Filter     outlier.Result
	// Order is the recovered permutation over retained positions.
	Order []int
	// Sequence is Order mapped back to original indices (forward candidate).
	Sequence []int

	ForwardPath string
	ReversePath string
	Spilled     int
	Elapsed     time.Duration
}

// Reverse returns the reverse candidate as original indices.
func (r *Result) Reverse() []int {
	return materialize.Oriented(r.Sequence, materialize.Reverse)
}

// OutputPaths fills in default candidate paths and checks that no two paths collide.
func OutputPaths(job Job) (forward, reverse string, err error) {
	ext := filepath.Ext(job.Input)
	stem := strings.TrimSuffix(job.Input, ext)
	forward, reverse = job.ForwardPath, job.ReversePath
	if forward == "" {
		forward = stem + "_forward" + ext
	}
	if reverse == "" {
		reverse = stem + "_reverse" + ext
	}

	inAbs, _ := filepath.Abs(job.Input)
	fwdAbs, _ := filepath.Abs(forward)
	revAbs, _ := filepath.Abs(reverse)
	if inAbs == fwdAbs || inAbs == revAbs || fwdAbs == revAbs {
		return "", "", fmt.Errorf("%w: %s", ErrSameFile, job.Input)
	}
	return forward, reverse, nil
}

// Analyze decodes, filters and reorders job.Input without writing any video.
func Analyze(ctx context.Context, job Job, cfg config.Config, deps Deps) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps = deps.withDefaults()
	start := time.Now()

	res, _, err := analyze(ctx, job, cfg, deps, nil)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// Run reconstructs job.Input and writes both candidate videos. When a ledger
// is configured the run is recorded after both outputs are committed.
func Run(ctx context.Context, job Job, cfg config.Config, deps Deps) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps = deps.withDefaults()
	log := deps.Logger.With().Str("input", job.Input).Logger()
	start := time.Now()

	forward, reverse, err := OutputPaths(job)
	if err != nil {
		return nil, err
	}
	existing, err := existingOutputs(forward, reverse)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if !job.Overwrite {
			return nil, fmt.Errorf("%w: %s", ErrOutputExists, strings.Join(existing, ", "))
		}
		log.Warn().Strs("paths", existing).Msg("existing candidates will be replaced")
	}

	cache := framecache.New(cfg.CacheBudget, filepath.Dir(forward))
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to remove frame spill file")
		}
	}()

	res, batch, err := analyze(ctx, job, cfg, deps, cache)
	if err != nil {
		return nil, err
	}
	res.ForwardPath, res.ReversePath = forward, reverse
	res.Spilled = cache.Spilled()
	log.Debug().Int("cached", cache.Len()).Int("spilled", res.Spilled).Msg("frames cached")

	targets := map[materialize.Orientation]string{
		materialize.Forward: forward,
		materialize.Reverse: reverse,
	}
	var written []string
	for _, o := range materialize.Orientations {
		target := targets[o]
		if err := writeCandidate(ctx, res.Sequence, o, target, batch.Info, cfg.Codec, cache, deps); err != nil {
			// The candidates are a pair; drop any already committed.
			for _, p := range written {
				if rmErr := os.Remove(p); rmErr != nil {
					log.Warn().Err(rmErr).Str("path", p).Msg("failed to remove committed candidate")
				}
			}
			return nil, fmt.Errorf("write %s candidate: %w", o, err)
		}
		written = append(written, target)
		log.Info().Str("orientation", o.String()).Str("path", target).Msg("candidate written")
	}

	if deps.Ledger != nil {
		if err := record(ctx, deps.Ledger, job, cfg, res); err != nil {
			log.Warn().Err(err).Str("forward", forward).Str("reverse", reverse).Msg("run not recorded, candidates kept")
			return nil, fmt.Errorf("record run (candidates kept at %s and %s): %w", forward, reverse, err)
		}
		log.Debug().Str("run", res.RunID).Msg("run recorded")
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// existingOutputs lists the paths that are already present on disk.
func existingOutputs(paths ...string) ([]string, error) {
	var found []string
	for _, p := range paths {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			found = append(found, p)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("check output %s: %w", p, err)
		}
	}
	return found, nil
}

// analyze is shared by Run and Analyze. frames is nil for dry runs.
func analyze(ctx context.Context, job Job, cfg config.Config, deps Deps, frames ingest.FrameStore) (*Result, *ingest.Batch, error) {
	log := deps.Logger.With().Str("input", job.Input).Logger()

	info, err := deps.Probe(ctx, job.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("probe %s: %w", job.Input, err)
	}
	log.Debug().
		Int("width", info.Width).
		Int("height", info.Height).
		Str("rate", info.FrameRate).
		Float64("fps", info.FPS).
		Int("frames", info.FrameCount).
		Msg("probed video")

	bar := newBar(deps.Progress, info.FrameCount, "Decoding")
	batch, err := deps.Decode(ctx, job.Input, info, cfg.Bins, frames, bar)
	finishBar(bar)
	if err != nil {
		return nil, nil, err
	}
	if len(batch.Frames) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", job.Input, outlier.ErrEmptyInput)
	}

	filtered, err := outlier.Filter(batch.Histograms, cfg.FenceMultiplier)
	if err != nil {
		return nil, nil, fmt.Errorf("filter %s: %w", job.Input, err)
	}
	ev := log.Info().Int("frames", len(batch.Frames)).Int("kept", len(filtered.Kept))
	if !filtered.Skipped {
		ev = ev.Float64("q1", filtered.Q1).Float64("q3", filtered.Q3).Float64("threshold", filtered.Threshold)
	}
	ev.Ints("discarded", filtered.Discarded()).Msg("outlier filter done")

	pixels := outlier.Compact(batch.Pixels(), filtered.Retain)
	order, err := reorder.Reconstruct(pixels, reorderOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("reorder %s: %w", job.Input, err)
	}
	seq, err := materialize.Compose(order, filtered.Kept)
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Ints("sequence", seq).Msg("recovered order")

	res := &Result{
		RunID:      uuid.NewString(),
		Info:       info,
		FrameCount: len(batch.Frames),
		Filter:     filtered,
		Order:      order,
		Sequence:   seq,
	}
	if id, err := utils.GenerateVideoID(job.Input); err == nil {
		res.VideoID = id
	}

	if job.ScoreChart != "" {
		if filtered.Skipped {
			log.Warn().Msg("score chart skipped: fewer than two frames")
		} else if err := report.WriteScoreChart(job.ScoreChart, filtered); err != nil {
			log.Warn().Err(err).Str("path", job.ScoreChart).Msg("failed to write score chart")
		}
	}
	return res, batch, nil
}

func writeCandidate(ctx context.Context, seq []int, o materialize.Orientation, target string, info types.VideoInfo, codec string, src materialize.FrameSource, deps Deps) error {
	sink, err := deps.NewSink(ctx, target, info, codec)
	if err != nil {
		return err
	}
	bar := newBar(deps.Progress, len(seq), "Writing "+o.String())
	err = materialize.Materialize(ctx, materialize.Oriented(seq, o), src, sink, bar)
	finishBar(bar)
	return err
}

func reorderOptions(cfg config.Config) reorder.Options {
	opts := reorder.Options{Seeder: reorder.ExtremalSeeder{}, TieBreak: reorder.LowestIndex}
	if cfg.Seed == config.SeedFarthestPair {
		opts.Seeder = reorder.FarthestPairSeeder{}
	}
	if cfg.TieBreak == config.TieBreakHighest {
		opts.TieBreak = reorder.HighestIndex
	}
	return opts
}

func record(ctx context.Context, ledger Ledger, job Job, cfg config.Config, res *Result) error {
	videoID := res.VideoID
	if videoID == "" {
		return fmt.Errorf("no video id for %s", job.Input)
	}
	if err := ledger.EnsureVideoMetadata(ctx, videoID, job.Input); err != nil {
		return err
	}
	return ledger.RecordRun(ctx, RunRecord(res, cfg))
}

// RunRecord converts a finished run into its ledger row.
func RunRecord(res *Result, cfg config.Config) store.Run {
	position := make(map[int]int, len(res.Sequence))
	for pos, idx := range res.Sequence {
		position[idx] = pos
	}

	frames := make([]store.FrameRecord, res.FrameCount)
	for i := range frames {
		score := 1.0 // A lone frame is its own median.
		if res.Filter.Scores != nil {
			score = res.Filter.Scores[i]
		}
		pos, kept := position[i]
		if !kept {
			pos = -1
		}
		frames[i] = store.FrameRecord{Index: i, Score: score, Kept: kept, Position: pos}
	}

	return store.Run{
		ID:              res.RunID,
		VideoID:         res.VideoID,
		FrameCount:      res.FrameCount,
		KeptCount:       len(res.Sequence),
		Q1:              res.Filter.Q1,
		Q3:              res.Filter.Q3,
		Threshold:       res.Filter.Threshold,
		Bins:            cfg.Bins,
		FenceMultiplier: cfg.FenceMultiplier,
		Seed:            string(cfg.Seed),
		TieBreak:        string(cfg.TieBreak),
		Sequence:        res.Sequence,
		ForwardPath:     res.ForwardPath,
		ReversePath:     res.ReversePath,
		Frames:          frames,
	}
}

// progressBar is the Progress shared by ingest and materialize.
type progressBar interface {
	Add(n int) error
	Finish() error
}

// newBar returns nil when w is nil so callers skip progress entirely.
func newBar(w io.Writer, total int, desc string) progressBar {
	if w == nil {
		return nil
	}
	if total <= 0 {
		// Unknown length renders as a spinner.
		total = -1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
	)
}

func finishBar(bar progressBar) {
	if bar != nil {
		bar.Finish()
	}
}
