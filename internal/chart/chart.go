// Package chart renders backtest and indicator views as self-contained HTML
// pages built with go-echarts.
package chart

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/12Lemon123456/vene-quant/internal/backtest"
	"github.com/12Lemon123456/vene-quant/internal/domain"
	"github.com/12Lemon123456/vene-quant/internal/indicator"
)

const (
	colorBull   = "#26a69a"
	colorBear   = "#ef5350"
	colorHigh   = "#7e57c2"
	colorBuy    = "#1e88e5"
	colorSell   = "#fb8c00"
	colorMACD   = "#00acc1"
	colorSignal = "#f06292"

	chartWidth  = "1200px"
	klineHeight = "560px"
	panelHeight = "240px"
)

var overlayColors = []string{"#1e88e5", "#fb8c00", "#8e24aa", "#43a047", "#6d4c41"}

// IndicatorLines holds the lines drawn by RenderIndicators. Every line must
// have one value per bar; NaN values are drawn as gaps.
type IndicatorLines struct {
	Overlays map[string][]float64 // drawn over the candles, e.g. sma5, sma30
	MACD     map[string][]float64 // macd, signal and hist lines; nil skips the panel
}

// ---------------------------------------------------------------------------
// Backtest view
// ---------------------------------------------------------------------------

// RenderBacktest writes a candlestick chart of series with the prior N-day
// high and the executed buys and sells of result.
func RenderBacktest(w io.Writer, symbol string, series domain.Series, result *backtest.Result) error {
	if series.Len() == 0 {
		return fmt.Errorf("chart: empty series for %s", symbol)
	}
	if result == nil {
		return fmt.Errorf("chart: nil result for %s", symbol)
	}
	if len(result.Signals) != series.Len() {
		return fmt.Errorf("chart: %d signals for %d bars", len(result.Signals), series.Len())
	}

	xAxis := dates(series)
	subtitle := summaryLine(result)
	kline := newKline(symbol, fmt.Sprintf("%d-day breakout | %s", result.Params.Lookback, subtitle), series, xAxis)

	highs := make([]opts.LineData, series.Len())
	for i, s := range result.Signals {
		if s.Valid {
			highs[i] = opts.LineData{Value: round(s.PriorMax)}
		} else {
			highs[i] = opts.LineData{Value: nil}
		}
	}
	high := charts.NewLine()
	high.SetXAxis(xAxis)
	high.AddSeries(fmt.Sprintf("%d-day high", result.Params.Lookback), highs,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorHigh, Width: 1, Type: "dashed"}),
	)

	buys := make([]opts.ScatterData, series.Len())
	sells := make([]opts.ScatterData, series.Len())
	for i := range buys {
		buys[i] = opts.ScatterData{Value: nil}
		sells[i] = opts.ScatterData{Value: nil}
	}
	for _, tr := range result.Trades {
		if tr.Index < 0 || tr.Index >= series.Len() {
			continue
		}
		switch tr.Action {
		case backtest.ActionBuy:
			buys[tr.Index] = opts.ScatterData{Value: round(tr.Price), Symbol: "triangle", SymbolSize: 12}
		case backtest.ActionSell:
			sells[tr.Index] = opts.ScatterData{Value: round(tr.Price), Symbol: "triangle", SymbolSize: 12, SymbolRotate: 180}
		}
	}
	markers := charts.NewScatter()
	markers.SetXAxis(xAxis)
	markers.AddSeries("buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuy}))
	markers.AddSeries("sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSell}))

	kline.Overlap(high, markers)

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s breakout backtest", strings.ToUpper(symbol))
	page.AddCharts(kline)
	return page.Render(w)
}

// ---------------------------------------------------------------------------
// Indicator view
// ---------------------------------------------------------------------------

// RenderIndicators writes candlesticks with the overlay lines and, when
// present, a MACD panel below.
func RenderIndicators(w io.Writer, symbol string, series domain.Series, lines IndicatorLines) error {
	if series.Len() == 0 {
		return fmt.Errorf("chart: empty series for %s", symbol)
	}
	n := series.Len()
	for name, l := range lines.Overlays {
		if len(l) != n {
			return fmt.Errorf("chart: overlay %s has %d values for %d bars", name, len(l), n)
		}
	}
	for name, l := range lines.MACD {
		if len(l) != n {
			return fmt.Errorf("chart: %s has %d values for %d bars", name, len(l), n)
		}
	}

	xAxis := dates(series)
	kline := newKline(symbol, fmt.Sprintf("%s to %s", series.At(0).Date(), series.Last().Date()), series, xAxis)

	if len(lines.Overlays) > 0 {
		names := make([]string, 0, len(lines.Overlays))
		for name := range lines.Overlays {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return overlayLess(names[i], names[j]) })

		overlay := charts.NewLine()
		overlay.SetXAxis(xAxis)
		for i, name := range names {
			overlay.AddSeries(strings.ToUpper(name), lineData(lines.Overlays[name]),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
				charts.WithLineStyleOpts(opts.LineStyle{Color: overlayColors[i%len(overlayColors)], Width: 1.5}),
			)
		}
		kline.Overlap(overlay)
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s indicators", strings.ToUpper(symbol))
	page.AddCharts(kline)
	if lines.MACD != nil {
		page.AddCharts(newMACDPanel(xAxis, lines.MACD))
	}
	return page.Render(w)
}

func newMACDPanel(xAxis []string, lines map[string][]float64) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: panelHeight}),
		charts.WithTitleOpts(opts.Title{Title: "MACD"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)

	hist := lines[indicator.LineHist]
	histData := make([]opts.BarData, len(xAxis))
	for i := range histData {
		if i >= len(hist) || math.IsNaN(hist[i]) {
			histData[i] = opts.BarData{Value: nil}
			continue
		}
		color := colorBear
		if hist[i] >= 0 {
			color = colorBull
		}
		histData[i] = opts.BarData{Value: round(hist[i]), ItemStyle: &opts.ItemStyle{Color: color}}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Histogram", histData)

	line := charts.NewLine()
	line.SetXAxis(xAxis)
	line.AddSeries("MACD", lineData(lines[indicator.LineMACD]),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorMACD, Width: 1.5}),
	)
	line.AddSeries("Signal", lineData(lines[indicator.LineSignal]),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorSignal, Width: 1.5}),
	)
	bar.Overlap(line)
	return bar
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newKline(symbol, subtitle string, series domain.Series, xAxis []string) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: klineHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    strings.ToUpper(symbol),
			Subtitle: subtitle,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	data := make([]opts.KlineData, series.Len())
	for i := 0; i < series.Len(); i++ {
		b := series.At(i)
		data[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("price", data)
	return kline
}

func dates(series domain.Series) []string {
	x := make([]string, series.Len())
	for i := range x {
		x[i] = series.At(i).Date()
	}
	return x
}

func lineData(line []float64) []opts.LineData {
	out := make([]opts.LineData, len(line))
	for i, v := range line {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: round(v)}
	}
	return out
}

func summaryLine(r *backtest.Result) string {
	if r.Summary.AverageReturn == nil {
		return "no trades"
	}
	return fmt.Sprintf("%d trades, avg %.2f%%", r.Summary.TradeCount, *r.Summary.AverageReturn*100)
}

// overlayLess orders names like sma5 before sma30.
func overlayLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
