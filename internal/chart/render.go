package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
)

// Renderer draws a Series as a PNG.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer creates a renderer with the given canvas size.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 576
	}
	return &Renderer{Width: width, Height: height}
}

// Render returns the PNG bytes of spec drawn over data.
func (r *Renderer) Render(spec *Spec, data *Series) ([]byte, error) {
	if data == nil || data.Len() == 0 {
		return nil, errors.New("no data to plot")
	}

	var buf bytes.Buffer
	var err error
	switch spec.Type {
	case TypeBar:
		err = r.bar(spec, data).Render(gochart.PNG, &buf)
	case TypePie:
		var pie *gochart.PieChart
		if pie, err = r.pie(spec, data); err == nil {
			err = pie.Render(gochart.PNG, &buf)
		}
	case TypeLine, TypeScatter:
		err = r.xy(spec, data).Render(gochart.PNG, &buf)
	default:
		err = fmt.Errorf("%w: unsupported chart type %q", ErrInvalidSpec, spec.Type)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) xy(spec *Spec, data *Series) *gochart.Chart {
	graph := &gochart.Chart{
		Title:  spec.Title,
		Width:  r.Width,
		Height: r.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{Name: axisName(spec.XLabel, spec.X)},
		YAxis: gochart.YAxis{
			Name:  axisName(spec.YLabel, joinNames(data.Names)),
			Range: paddedRange(data.Values...),
		},
	}

	style := gochart.Style{}
	if spec.Type == TypeScatter {
		style = gochart.Style{StrokeWidth: gochart.Disabled, DotWidth: 4}
	}

	switch data.Kind {
	case AxisTime:
		xs := make([]float64, len(data.XTimes))
		for i, t := range data.XTimes {
			xs[i] = gochart.TimeToFloat64(t)
		}
		graph.XAxis.ValueFormatter = gochart.TimeDateValueFormatter
		graph.XAxis.Range = paddedRange(xs)
		for i, name := range data.Names {
			graph.Series = append(graph.Series, gochart.TimeSeries{
				Name:    name,
				Style:   style,
				XValues: data.XTimes,
				YValues: data.Values[i],
			})
		}
	case AxisNumber:
		graph.XAxis.Range = paddedRange(data.XNums)
		for i, name := range data.Names {
			graph.Series = append(graph.Series, gochart.ContinuousSeries{
				Name:    name,
				Style:   style,
				XValues: data.XNums,
				YValues: data.Values[i],
			})
		}
	default:
		xs := make([]float64, len(data.XLabels))
		ticks := make([]gochart.Tick, len(data.XLabels))
		for i, label := range data.XLabels {
			xs[i] = float64(i)
			ticks[i] = gochart.Tick{Value: float64(i), Label: label}
		}
		graph.XAxis.Ticks = thinTicks(ticks, 20)
		graph.XAxis.Range = paddedRange(xs)
		for i, name := range data.Names {
			graph.Series = append(graph.Series, gochart.ContinuousSeries{
				Name:    name,
				Style:   style,
				XValues: xs,
				YValues: data.Values[i],
			})
		}
	}

	if len(graph.Series) > 1 {
		graph.Elements = []gochart.Renderable{gochart.Legend(graph)}
	}
	return graph
}

func (r *Renderer) bar(spec *Spec, data *Series) *gochart.BarChart {
	bars := make([]gochart.Value, data.Len())
	for i := range bars {
		bars[i] = gochart.Value{Label: data.Label(i), Value: data.Values[0][i]}
	}

	barWidth := (r.Width - 120) / (2 * len(bars))
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 4 {
		barWidth = 4
	}

	return &gochart.BarChart{
		Title:  spec.Title,
		Width:  r.Width,
		Height: r.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40},
		},
		BarWidth: barWidth,
		XAxis:    gochart.Style{FontSize: 8},
		YAxis: gochart.YAxis{
			Name:  axisName(spec.YLabel, joinNames(data.Names)),
			Range: paddedRange(append([]float64{0}, data.Values[0]...)),
		},
		Bars: bars,
	}
}

func (r *Renderer) pie(spec *Spec, data *Series) (*gochart.PieChart, error) {
	var values []gochart.Value
	for i := 0; i < data.Len(); i++ {
		v := data.Values[0][i]
		if v > 0 && !math.IsInf(v, 0) {
			values = append(values, gochart.Value{Label: data.Label(i), Value: v})
		}
	}
	if len(values) == 0 {
		return nil, errors.New("pie chart needs at least one positive value")
	}
	return &gochart.PieChart{
		Title:  spec.Title,
		Width:  r.Width,
		Height: r.Height,
		Values: values,
	}, nil
}

// paddedRange spans all finite values and never collapses to zero width.
func paddedRange(series ...[]float64) *gochart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, values := range series {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 1
	}
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 1)
		lo, hi = lo-pad, hi+pad
	}
	return &gochart.ContinuousRange{Min: lo, Max: hi}
}

// thinTicks keeps at most max evenly spaced ticks.
func thinTicks(ticks []gochart.Tick, max int) []gochart.Tick {
	if len(ticks) <= max {
		return ticks
	}
	step := int(math.Ceil(float64(len(ticks)) / float64(max)))
	out := make([]gochart.Tick, 0, max+1)
	for i := 0; i < len(ticks); i += step {
		out = append(out, ticks[i])
	}
	return out
}

func axisName(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func joinNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return ""
}
