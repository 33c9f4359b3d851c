package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	axisStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

const yAxisWidth = 11 // "  12345.67 │"

// Plot draws c as a terminal line chart. The output has height price rows,
// an x-axis rule, a row of time labels and a legend: height+3 lines in all.
// When there are more candles than columns only the most recent are drawn.
func Plot(c Chart, width, height int) string {
	if height < 3 {
		height = 3
	}
	plotW := width - yAxisWidth
	if plotW < 1 {
		plotW = 1
	}

	if c.Empty() {
		return plotEmpty(height)
	}

	n := len(c.Labels)
	start := 0
	if n > plotW {
		start = n - plotW
	}
	visible := n - start

	// Spread short series over the available width.
	colW := 1
	if visible > 1 && visible < plotW {
		colW = (plotW - 1) / (visible - 1)
	}
	cols := (visible-1)*colW + 1

	hi, lo := valueRange(c.Series, start)
	if hi == lo {
		hi = lo + 1
	}
	scale := yScale{hi: hi, lo: lo, rows: height}

	grid := make([][]string, height)
	for r := range grid {
		grid[r] = make([]string, cols)
		for col := range grid[r] {
			grid[r][col] = " "
		}
	}

	// Paint in reverse so the first series (close) ends up on top.
	for s := len(c.Series) - 1; s >= 0; s-- {
		paintLine(grid, c.Series[s].Color, c.Series[s].Values[start:], colW, scale)
	}

	var b strings.Builder
	for row := 0; row < height; row++ {
		b.WriteString(axisStyle.Render(fmt.Sprintf("%9.2f │", scale.price(row))))
		b.WriteString(strings.Join(grid[row], ""))
		b.WriteByte('\n')
	}

	// X-axis separator.
	b.WriteString(axisStyle.Render(strings.Repeat("─", yAxisWidth+cols)))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat(" ", yAxisWidth))
	b.WriteString(axisStyle.Render(tickLine(c.Labels[start:], colW, plotW)))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat(" ", yAxisWidth))
	b.WriteString(legend(c.Series))
	return b.String()
}

func plotEmpty(height int) string {
	rows := make([]string, 0, height+3)
	for row := 0; row < height; row++ {
		line := axisStyle.Render(strings.Repeat(" ", yAxisWidth-1) + "│")
		if row == height/2 {
			line += mutedStyle.Render(" waiting for data…")
		}
		rows = append(rows, line)
	}
	rows = append(rows, axisStyle.Render(strings.Repeat("─", yAxisWidth)), "", "")
	return strings.Join(rows, "\n")
}

// paintLine plots one series. Candles sit every colW columns as "•";
// the columns between them are linearly interpolated and vertical gaps are
// stroked so the line stays connected.
func paintLine(grid [][]string, color string, values []float64, colW int, scale yScale) {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	point := style.Render("•")
	dot := style.Render("·")
	stroke := style.Render("│")

	prev := -1
	for col := 0; col < len(grid[0]); col++ {
		i, off := col/colW, col%colW
		v := values[i]
		if off > 0 {
			v += (values[i+1] - v) * float64(off) / float64(colW)
		}
		r := scale.row(v)
		if prev >= 0 {
			a, b := min(prev, r), max(prev, r)
			for row := a + 1; row < b; row++ {
				grid[row][col] = stroke
			}
		}
		if off == 0 {
			grid[r][col] = point
		} else {
			grid[r][col] = dot
		}
		prev = r
	}
}

// tickLine lays out at most MaxTicks labels, label i sitting at column
// i*colW, skipping any that would overlap the previous one or run past width.
func tickLine(labels []string, colW, width int) string {
	line := []byte(strings.Repeat(" ", width))
	next := 0
	for _, i := range TickIndices(len(labels), MaxTicks) {
		text := labels[i]
		at := i * colW
		if at < next || at+len(text) > len(line) {
			continue
		}
		copy(line[at:], text)
		next = at + len(text) + 1
	}
	return string(line)
}

func legend(series []Series) string {
	parts := make([]string, 0, len(series))
	for _, s := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color))
		parts = append(parts, style.Render("● "+s.Label))
	}
	return strings.Join(parts, "  ")
}

// yScale maps prices onto rows numbered from the top: hi sits on row 0 and
// lo on the last row.
type yScale struct {
	hi, lo float64
	rows   int
}

// row clamps out-of-range prices to the nearest edge.
func (y yScale) row(price float64) int {
	last := y.rows - 1
	if last <= 0 || y.hi == y.lo {
		return y.rows / 2
	}
	r := int(math.Round(float64(last) * (y.hi - price) / (y.hi - y.lo)))
	return max(0, min(last, r))
}

func (y yScale) price(row int) float64 {
	last := y.rows - 1
	if last <= 0 {
		return y.hi
	}
	return y.hi - (y.hi-y.lo)*float64(row)/float64(last)
}

// valueRange returns the overall max and min across the visible part of
// every series.
func valueRange(series []Series, start int) (hi, lo float64) {
	hi = -math.MaxFloat64
	lo = math.MaxFloat64
	for _, s := range series {
		for _, v := range s.Values[start:] {
			hi = math.Max(hi, v)
			lo = math.Min(lo, v)
		}
	}
	if hi == -math.MaxFloat64 {
		hi = 0
	}
	if lo == math.MaxFloat64 {
		lo = 0
	}
	return
}
