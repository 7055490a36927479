// Package report renders offline PNG plots of a registry.
package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/fsutil"
)

const plotSize = 8 * vg.Inch

// PlotAnchors draws every anchor centre, in its own colour, the drift
// centres, and a segment from each anchor centre to its drift centre on the
// given plane, then writes a PNG to path.
func PlotAnchors(fsys fsutil.FileSystem, reg *anchor.Registry, path string, plane colour.Plane) error {
	data, err := RenderAnchors(reg, plane)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write plot %s: %w", path, err)
	}
	return nil
}

// RenderAnchors returns the PlotAnchors image as PNG bytes.
func RenderAnchors(reg *anchor.Registry, plane colour.Plane) ([]byte, error) {
	anchors := reg.Anchors()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Colour anchors (%s, n=%d)", plane, len(anchors))
	p.X.Label.Text, p.Y.Label.Text = plane.Axes()
	p.X.Min, p.X.Max = 0, colour.AxisMax
	p.Y.Min, p.Y.Max = 0, colour.AxisMax
	p.Add(plotter.NewGrid())

	centres := make(plotter.XYs, len(anchors))
	drifts := make(plotter.XYs, len(anchors))
	fills := make([]color.RGBA, len(anchors))
	for i, a := range anchors {
		centres[i].X, centres[i].Y = plane.Project(a.AnchorCenter)
		drifts[i].X, drifts[i].Y = plane.Project(a.DriftCenter)
		fills[i] = a.AnchorCenter.Colour()

		if a.DriftCenter == a.AnchorCenter {
			continue
		}
		seg, err := plotter.NewLine(plotter.XYs{centres[i], drifts[i]})
		if err != nil {
			return nil, err
		}
		seg.Color = color.Gray{Y: 0x80}
		seg.Width = vg.Points(1)
		p.Add(seg)
	}

	if len(anchors) > 0 {
		centreScatter, err := plotter.NewScatter(centres)
		if err != nil {
			return nil, err
		}
		centreScatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			return draw.GlyphStyle{Color: fills[i], Radius: vg.Points(4), Shape: draw.CircleGlyph{}}
		}

		driftScatter, err := plotter.NewScatter(drifts)
		if err != nil {
			return nil, err
		}
		driftScatter.GlyphStyle = draw.GlyphStyle{Color: color.Black, Radius: vg.Points(2), Shape: draw.CrossGlyph{}}

		p.Add(centreScatter, driftScatter)
		p.Legend.Add("anchor", centreScatter)
		p.Legend.Add("drift", driftScatter)
		p.Legend.Top = true
	}

	w, err := p.WriterTo(plotSize, plotSize, "png")
	if err != nil {
		return nil, fmt.Errorf("render plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode plot: %w", err)
	}
	return buf.Bytes(), nil
}
