package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/httputil"
)

// anchorChart renders anchor and drift centres as an HTML scatter.
// Query params:
//   - plane (optional; hs, hv or sv, default sv)
func (s *Server) anchorChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	plane, err := colour.ParsePlane(r.URL.Query().Get("plane"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	anchors := s.reg.Anchors()
	centres := make([]opts.ScatterData, 0, len(anchors))
	drifts := make([]opts.ScatterData, 0, len(anchors))
	for _, a := range anchors {
		ax, ay := plane.Project(a.AnchorCenter)
		dx, dy := plane.Project(a.DriftCenter)
		centres = append(centres, opts.ScatterData{Name: a.Name, Value: []interface{}{ax, ay, a.ID}})
		drifts = append(drifts, opts.ScatterData{Name: a.Name, Value: []interface{}{dx, dy, a.ID}})
	}

	xName, yName := plane.Axes()
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Colour anchors", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Colour anchors", Subtitle: fmt.Sprintf("plane=%s anchors=%d", plane, len(anchors))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: colour.AxisMax, Name: xName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: colour.AxisMax, Name: yName, NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("anchor", centres, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	scatter.AddSeries("drift", drifts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
