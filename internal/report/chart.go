// Package report renders diagnostics for a reconstruction run.
package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/andresmejia3/reframe/internal/outlier"
)

var (
	keptColor      = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	discardedColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	fenceColor     = color.RGBA{R: 90, G: 90, B: 90, A: 255}
)

// WriteScoreChart saves a PNG plotting each frame's histogram correlation
// against the Tukey fence. The format follows the file extension.
func WriteScoreChart(path string, res outlier.Result) error {
	if res.Skipped || len(res.Scores) == 0 {
		return errors.New("no correlation scores to plot")
	}

	p := plot.New()
	p.Title.Text = "Histogram correlation with batch median"
	p.X.Label.Text = "Original frame index"
	p.Y.Label.Text = "Correlation"

	kept := make(plotter.XYs, 0, len(res.Scores))
	discarded := make(plotter.XYs, 0)
	for i, s := range res.Scores {
		pt := plotter.XY{X: float64(i), Y: s}
		if res.Retain[i] {
			kept = append(kept, pt)
		} else {
			discarded = append(discarded, pt)
		}
	}

	if len(kept) > 0 {
		sc, err := plotter.NewScatter(kept)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = keptColor
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("kept (%d)", len(kept)), sc)
	}
	if len(discarded) > 0 {
		sc, err := plotter.NewScatter(discarded)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = discardedColor
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("discarded (%d)", len(discarded)), sc)
	}

	fence, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: res.Threshold},
		{X: float64(len(res.Scores) - 1), Y: res.Threshold},
	})
	if err != nil {
		return err
	}
	fence.Color = fenceColor
	fence.Width = vg.Points(1)
	fence.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(fence)
	p.Legend.Add(fmt.Sprintf("fence %.4f", res.Threshold), fence)

	p.Legend.Top = false
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = 10

	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save score chart: %w", err)
	}
	return nil
}
