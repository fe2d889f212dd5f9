package api

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/Asw1n/advancedwind/internal/diagnostics"
	"github.com/Asw1n/advancedwind/internal/httputil"
	"github.com/Asw1n/advancedwind/internal/session"
	"github.com/Asw1n/advancedwind/internal/units"
)

// tip is the end point of a vector drawn from the origin, in knots.
// x is to starboard (east for ground vectors), y ahead (north).
type tip struct {
	name string
	x, y float64
}

func tips(snap diagnostics.VectorSnapshot) []tip {
	out := make([]tip, 0, len(snap.Polars))
	for _, p := range snap.Polars {
		kn := units.ToKnots(p.Speed)
		out = append(out, tip{
			name: fmt.Sprintf("%s (%s)", p.Label, p.Plane),
			x:    kn * math.Sin(p.Angle),
			y:    kn * math.Cos(p.Angle),
		})
	}
	return out
}

// extent returns a symmetric axis limit that fits every tip.
func extent(ts []tip) float64 {
	pad := 1.0
	for _, t := range ts {
		pad = math.Max(pad, math.Max(math.Abs(t.x), math.Abs(t.y)))
	}
	return math.Ceil(pad * 1.1)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (diagnostics.VectorSnapshot, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return diagnostics.VectorSnapshot{}, false
	}
	snap, err := s.manager.Vectors()
	if errors.Is(err, session.ErrNotRunning) {
		httputil.ServiceUnavailable(w, errNotRunning)
		return snap, false
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return snap, false
	}
	return snap, true
}

// vectorsHTML renders the latest vector snapshot with go-echarts, one line
// series per vector.
func (s *Server) vectorsHTML(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	ts := tips(snap)
	pad := extent(ts)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Wind vectors", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Wind vectors", Subtitle: fmt.Sprintf("height=%.1fm vectors=%d", snap.Height, len(ts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: -pad, Max: pad, Name: "starboard (kn)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -pad, Max: pad, Name: "ahead (kn)", NameLocation: "middle", NameGap: 30}),
	)
	for _, t := range ts {
		data := []opts.LineData{
			{Value: []interface{}{0.0, 0.0}},
			{Value: []interface{}{t.x, t.y}, Name: t.name},
		}
		line.AddSeries(t.name, data)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// vectorsPNG renders the latest vector snapshot with gonum/plot.
func (s *Server) vectorsPNG(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	ts := tips(snap)
	pad := extent(ts)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Wind vectors (height %.1f m)", snap.Height)
	p.X.Label.Text = "starboard (kn)"
	p.Y.Label.Text = "ahead (kn)"
	p.X.Min, p.X.Max = -pad, pad
	p.Y.Min, p.Y.Max = -pad, pad
	p.Add(plotter.NewGrid())

	for i, t := range ts {
		l, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: t.x, Y: t.y}})
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to build line: %v", err))
			return
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(2)
		p.Add(l)
		p.Legend.Add(t.name, l)
	}

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
