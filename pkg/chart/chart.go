// Package chart renders captured RX waveforms as an HTML page.
package chart

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
	"github.com/linmingchih/channel-check-tool-v2/pkg/waveform"
)

// Render writes one line chart per RX group of topo that holds waveforms.
// The primary TX series comes first, crosstalk series follow in arrival
// order.
func Render(w io.Writer, agg *waveform.Aggregator, topo *topology.Topology) error {
	page := components.NewPage()
	page.PageTitle = "Channel check waveforms"

	for _, rx := range topo.RXs() {
		entries := agg.Entries(rx.Key())
		if len(entries) == 0 {
			continue
		}
		page.AddCharts(rxChart(rx, Ordered(topo, rx, entries)))
	}
	return page.Render(w)
}

// Ordered puts the waveform of the expected TX of rx first.
func Ordered(topo *topology.Topology, rx topology.Group, entries []waveform.Entry) []waveform.Entry {
	primary, ok := topo.ExpectedTx(rx)
	if !ok {
		return entries
	}

	out := make([]waveform.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Tx.Key() == primary.Key() {
			out = append(out, e)
		}
	}
	for _, e := range entries {
		if e.Tx.Key() != primary.Key() {
			out = append(out, e)
		}
	}
	return out
}

func rxChart(rx topology.Group, entries []waveform.Entry) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    rx.Label(),
			Subtitle: "RX voltage per transmitter",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:  "value",
			Name:  "time (ps)",
			Scale: opts.Bool(true),
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  "V",
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
	)

	for _, e := range entries {
		n := e.Waveform.Len()
		data := make([]opts.LineData, n)
		for i := 0; i < n; i++ {
			data[i] = opts.LineData{Value: []any{e.Waveform.Time[i], e.Waveform.Voltage[i]}}
		}
		line.AddSeries(e.Tx.Label(), data, charts.WithLineChartOpts(opts.LineChart{
			ShowSymbol: opts.Bool(false),
		}))
	}
	return line
}
