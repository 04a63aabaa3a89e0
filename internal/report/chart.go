// Package report renders the tracked price series of one symbol as an HTML
// chart, optionally screenshotted to PNG with a headless browser.
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	echartstypes "github.com/go-echarts/go-echarts/v2/types"
	"github.com/markcheno/go-talib"

	"newstrader/internal/market"
	"newstrader/internal/state"
	"newstrader/internal/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorPrice         = "#3b82f6"
	colorSMA           = "#fbbf24"
	colorEntry         = "#eceff4"
	colorTP            = "#34d399"
	colorSL            = "#f87171"

	chartWidthPx  = 1200
	chartHeightPx = 520
	smaPeriod     = 5
)

// ChartInput is the slice of symbol state the chart needs.
type ChartInput struct {
	Symbol string
	State  state.SymbolState
	// Location formats the x axis; nil means UTC.
	Location *time.Location
}

// RenderHTML draws price, a short SMA when enough points exist, and horizontal
// entry, take-profit and stop-loss lines from the remembered brackets.
func RenderHTML(in ChartInput) ([]byte, error) {
	series := in.State.PriceSeries
	if len(series) == 0 {
		return nil, fmt.Errorf("no price series recorded for %s", in.Symbol)
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	xAxis := make([]string, len(series))
	closes := make([]float64, len(series))
	for i, p := range series {
		xAxis[i] = p.Time().In(loc).Format("01-02 15:04")
		closes[i] = p.Price
	}
	levels := bracketLevels(in.State)
	minVal, maxVal := bounds(closes, levels)
	padding := (maxVal - minVal) * 0.05
	if padding <= 0 {
		padding = math.Max(0.01, math.Abs(maxVal)*0.01)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           echartstypes.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         strings.ToUpper(in.Symbol),
			Subtitle:      subtitle(in.State, loc),
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			Min:       round(minVal-padding, 2),
			Max:       round(maxVal+padding, 2),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Price", toLineData(closes), charts.WithLineStyleOpts(opts.LineStyle{Color: colorPrice, Width: 2}))
	if len(closes) >= smaPeriod {
		line.AddSeries(fmt.Sprintf("SMA%d", smaPeriod), toLineData(talib.Sma(closes, smaPeriod)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 1}))
	}
	for _, lv := range levels {
		line.AddSeries(lv.name, flat(lv.value, len(closes)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: lv.color, Width: 1, Type: "dashed"}))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPNG screenshots the chart HTML in headless Chrome.
func RenderPNG(ctx context.Context, html []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(chartWidthPx, chartHeightPx+40),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}

type level struct {
	name  string
	value float64
	color string
}

func bracketLevels(st state.SymbolState) []level {
	var out []level
	if st.LastEntryPrice > 0 {
		out = append(out, level{"Entry", st.LastEntryPrice, colorEntry})
	}
	add := func(prefix string, plan *types.BracketPlan) {
		if plan == nil {
			return
		}
		if plan.TPPrice > 0 {
			out = append(out, level{prefix + "TP", plan.TPPrice, colorTP})
		}
		if plan.SLPrice > 0 {
			out = append(out, level{prefix + "SL", plan.SLPrice, colorSL})
		}
	}
	add("", st.Bracket)
	add("Core ", st.CoreBracket)
	add("Tactical ", st.TacticalBracket)
	return out
}

func subtitle(st state.SymbolState, loc *time.Location) string {
	parts := []string{fmt.Sprintf("%d points", len(st.PriceSeries))}
	if n := len(st.PriceSeries); n > 0 {
		parts = append(parts, fmt.Sprintf("last %.2f", st.PriceSeries[n-1].Price))
	}
	if st.LastEntryTS > 0 {
		parts = append(parts, "entry "+market.PricePoint{TS: st.LastEntryTS}.Time().In(loc).Format("2006-01-02 15:04"))
	}
	return strings.Join(parts, " | ")
}

func bounds(closes []float64, levels []level) (float64, float64) {
	minVal, maxVal := closes[0], closes[0]
	for _, v := range closes {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	for _, lv := range levels {
		minVal = math.Min(minVal, lv.value)
		maxVal = math.Max(maxVal, lv.value)
	}
	return minVal, maxVal
}

func toLineData(series []float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) || v == 0 {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: round(v, 4)}
	}
	return out
}

func flat(value float64, n int) []opts.LineData {
	out := make([]opts.LineData, n)
	for i := range out {
		out[i] = opts.LineData{Value: round(value, 2)}
	}
	return out
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
