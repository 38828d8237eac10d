package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/outlier"
	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTuningCmd(opts *Options) *cobra.Command {
	c := &cobra.Command{Use: "test"}
	addTuningFlags(c, opts)
	addOutputFlags(c, opts)
	return c
}

func TestApplyOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		base    func(*config.Config)
		check   func(t *testing.T, c config.Config)
		wantErr bool
	}{
		{
			name: "No flags keeps loaded config",
			base: func(c *config.Config) { c.TieBreak = config.TieBreakHighest; c.Bins = 32 },
			check: func(t *testing.T, c config.Config) {
				assert.Equal(t, config.TieBreakHighest, c.TieBreak)
				assert.Equal(t, 32, c.Bins)
			},
		},
		{
			name: "Flags override config",
			args: []string{"--bins", "64", "--seed", "farthest-pair", "-k", "3", "--codec", "libx265"},
			base: func(c *config.Config) { c.Bins = 32 },
			check: func(t *testing.T, c config.Config) {
				assert.Equal(t, 64, c.Bins)
				assert.Equal(t, config.SeedFarthestPair, c.Seed)
				assert.Equal(t, 3.0, c.FenceMultiplier)
				assert.Equal(t, "libx265", c.Codec)
			},
		},
		{
			name:    "Invalid bins",
			args:    []string{"--bins", "0"},
			wantErr: true,
		},
		{
			name:    "Invalid tie-break",
			args:    []string{"--tie-break", "random"},
			wantErr: true,
		},
		{
			name: "Zero fence puts threshold at Q1",
			args: []string{"--fence", "0"},
			check: func(t *testing.T, c config.Config) {
				assert.Equal(t, 0.0, c.FenceMultiplier)
			},
		},
		{
			name:    "Negative fence",
			args:    []string{"--fence", "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Options
			c := newTuningCmd(&opts)
			require.NoError(t, c.ParseFlags(tt.args))

			conf := config.Default()
			if tt.base != nil {
				tt.base(&conf)
			}
			err := applyOptions(c, opts, &conf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, conf)
		})
	}
}

func TestResolveDBURL(t *testing.T) {
	t.Run("Flag wins", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "db")
		assert.Equal(t, "postgres://x", resolveDBURL("postgres://x", false))
	})
	t.Run("Environment", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "db")
		t.Setenv("POSTGRES_USER", "u")
		t.Setenv("POSTGRES_PASSWORD", "p")
		t.Setenv("POSTGRES_DB", "reframe")
		t.Setenv("POSTGRES_PORT", "")
		assert.Equal(t, "postgres://u:p@db:5432/reframe", resolveDBURL("", false))
	})
	t.Run("Optional ledger disabled", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "")
		assert.Empty(t, resolveDBURL("", false))
	})
	t.Run("Required ledger falls back to localhost", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "")
		assert.Equal(t, "postgres://localhost:5432/reframe", resolveDBURL("", true))
	})
}

func TestBatchJobs(t *testing.T) {
	jobs, err := batchJobs([]string{"/in/a.mp4", "/in/sub/b.mkv"}, "", true)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "/in/a_forward.mp4", jobs[0].ForwardPath)
	assert.Equal(t, "/in/a_reverse.mp4", jobs[0].ReversePath)
	assert.Equal(t, "/in/a_scores.png", jobs[0].ScoreChart)
	assert.Equal(t, "/in/sub/b_forward.mkv", jobs[1].ForwardPath)

	jobs, err = batchJobs([]string{"/in/a.mp4"}, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "a_forward.mp4"), jobs[0].ForwardPath)
	assert.Empty(t, jobs[0].ScoreChart)

	_, err = batchJobs([]string{"/x/a.mp4", "/y/a.mp4"}, "/out", false)
	assert.Error(t, err, "same basename into one directory must collide")
}

type countingLedger struct {
	active, peak int
	mu           sync.Mutex
	runs         int
}

func (c *countingLedger) enter() {
	c.mu.Lock()
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.mu.Unlock()
	time.Sleep(time.Millisecond)
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
}

func (c *countingLedger) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	c.enter()
	return nil
}

func (c *countingLedger) RecordRun(ctx context.Context, run store.Run) error {
	c.enter()
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	return nil
}

func TestLockedLedgerSerializes(t *testing.T) {
	inner := &countingLedger{}
	var l pipeline.Ledger = &lockedLedger{l: inner}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.EnsureVideoMetadata(context.Background(), "v", "/p")
			l.RecordRun(context.Background(), store.Run{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inner.peak)
	assert.Equal(t, 8, inner.runs)
}

func TestAnalysisReportJSON(t *testing.T) {
	res := &pipeline.Result{
		FrameCount: 3,
		Sequence:   []int{2, 0, 1},
		Filter: outlier.Result{
			Kept:   []int{0, 1, 2},
			Retain: []bool{true, true, true},
			Scores: []float64{1, 0.9, 0.95},
			Median: []float64{4, 2, 0},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(newAnalysisReport("clip.mp4", res)))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []any{}, got["discarded"], "no discards must encode as an empty list")
	assert.Equal(t, []any{1.0, 0.0, 2.0}, got["reverse"])
	assert.Equal(t, []any{4.0, 2.0, 0.0}, got["median"])
}

func TestWriteAnalysis(t *testing.T) {
	var buf bytes.Buffer
	writeAnalysis(&buf, analysisReport{
		Input:     "clip.mp4",
		Frames:    4,
		Kept:      []int{0, 1, 3},
		Discarded: []int{2},
		Forward:   []int{3, 0, 1},
		Reverse:   []int{1, 0, 3},
	})
	out := buf.String()
	assert.Contains(t, out, "4 decoded, 3 kept, 1 discarded")
	assert.Contains(t, out, "Forward:    3 0 1")
	assert.Contains(t, out, "Reverse:    1 0 3")
	assert.NotContains(t, out, "Fence:", "fence line needs scores")
}

func TestWriteRuns(t *testing.T) {
	var buf bytes.Buffer
	writeRuns(&buf, nil)
	assert.Contains(t, buf.String(), "No runs found")

	buf.Reset()
	writeRuns(&buf, []store.Run{{ID: "abc", VideoPath: "/v.mp4", KeptCount: 9, FrameCount: 10, Chosen: "reverse"}})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "abc")
	assert.Contains(t, lines[2], "9/10")
	assert.Contains(t, lines[2], "reverse")
}

func TestWriteRunFrames(t *testing.T) {
	run := store.Run{
		ID:       "abc",
		Sequence: []int{1, 0},
		Frames: []store.FrameRecord{
			{Index: 0, Score: 0.99, Kept: true, Position: 1},
			{Index: 1, Score: 0.98, Kept: true, Position: 0},
			{Index: 2, Score: -0.5, Kept: false, Position: -1},
		},
	}

	var buf bytes.Buffer
	writeRun(&buf, run, true)
	out := buf.String()
	assert.Contains(t, out, "not picked yet")
	assert.Contains(t, out, "Sequence:   1 0")
	assert.Contains(t, out, "FRAME")
	assert.Regexp(t, `2\s+-0.5000\s+false\s+-`, out)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"rebuild", "batch", "analyze", "runs", "show", "pick", "reset"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
	for _, name := range []string{"runs", "show", "pick", "reset"} {
		c, _, _ := rootCmd.Find([]string{name})
		assert.NotEmpty(t, c.Annotations[ledgerAnnotation], "%s needs the ledger", name)
	}
	for _, name := range []string{"rebuild", "batch"} {
		c, _, _ := rootCmd.Find([]string{name})
		assert.NotNil(t, c.Flags().Lookup("overwrite"), "%s needs --overwrite", name)
	}
}
