package visuals

import (
	"fmt"
	"math"
	"strings"

	"issuemetrics/internal/metrics"
	"issuemetrics/internal/stats"
)

// GeneratePercentileChart creates a Mermaid bar chart of a metric's order statistics.
func GeneratePercentileChart(ms stats.MetricStatistics) string {
	d := ms.Distribution
	points := []struct {
		label string
		value *float64
	}{
		{"Min", d.Min},
		{"P10", d.P10},
		{"P25", d.P25},
		{"Median", ms.Summary.Median},
		{"P75", d.P75},
		{"P90", d.P90},
		{"Max", d.Max},
	}

	var labels []string
	var values []string
	maxVal := 0.0
	for _, p := range points {
		if p.value == nil {
			return ""
		}
		labels = append(labels, fmt.Sprintf("\"%s\"", p.label))
		values = append(values, fmt.Sprintf("%.1f", *p.value))
		maxVal = math.Max(maxVal, *p.value)
	}
	if maxVal <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"%s Distribution (n=%d)\"\n", ms.Metric, ms.Summary.Count))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"%s\" 0 --> %d\n", axisLabel(ms.Metric), int(math.Ceil(maxVal*1.1))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateComparisonChart creates a Mermaid line chart of baseline and recent quantiles for one metric.
// The first line is the baseline, the second the recent window.
func GenerateComparisonChart(s stats.MetricAnomalySummary) string {
	pick := func(p stats.PeriodSnapshot) []*float64 {
		return []*float64{p.P10, p.P25, p.Median, p.P75, p.P90}
	}
	base, recent := pick(s.Baseline), pick(s.Recent)

	var baseVals, recentVals []string
	maxVal := 0.0
	for i := range base {
		if base[i] == nil || recent[i] == nil {
			return ""
		}
		baseVals = append(baseVals, fmt.Sprintf("%.1f", *base[i]))
		recentVals = append(recentVals, fmt.Sprintf("%.1f", *recent[i]))
		maxVal = math.Max(maxVal, math.Max(*base[i], *recent[i]))
	}
	if maxVal <= 0 {
		return ""
	}

	title := fmt.Sprintf("%s: Baseline vs Recent", s.Metric)
	if s.IsAnomaly {
		title += fmt.Sprintf(" (%s)", s.Direction)
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"%s\"\n", title))
	sb.WriteString("    x-axis [\"P10\", \"P25\", \"Median\", \"P75\", \"P90\"]\n")
	sb.WriteString(fmt.Sprintf("    y-axis \"%s\" 0 --> %d\n", axisLabel(s.Metric), int(math.Ceil(maxVal*1.2))))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(baseVals, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(recentVals, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateTrendChart creates a Mermaid chart of per-bucket counts (bars) and means (line).
func GenerateTrendChart(key metrics.Key, buckets []stats.BucketStats) string {
	if len(buckets) == 0 {
		return ""
	}

	// Subsample buckets if the chart is too wide for Mermaid's layout engine
	subsampleRate := 1
	if len(buckets) > 60 {
		subsampleRate = int(math.Ceil(float64(len(buckets)) / 60.0))
	}

	var labels, counts, means []string
	maxVal := 0.0
	for i, b := range buckets {
		if i%subsampleRate != 0 && i != len(buckets)-1 {
			continue
		}
		mean := 0.0
		if b.Mean != nil {
			mean = *b.Mean
		}
		labels = append(labels, fmt.Sprintf("\"%s\"", b.Label))
		counts = append(counts, fmt.Sprintf("%d", b.Count))
		means = append(means, fmt.Sprintf("%.1f", mean))
		maxVal = math.Max(maxVal, math.Max(mean, float64(b.Count)))
	}
	if maxVal <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title \"%s Trend\"\n", key))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"%s\" 0 --> %d\n", axisLabel(key), int(math.Ceil(maxVal*1.2))))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(counts, ", ")))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(means, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// GenerateCorrelationTable renders a correlation matrix as a Markdown table. Undefined cells show "n/a".
func GenerateCorrelationTable(method stats.CorrelationMethod, matrix stats.CorrelationMatrix) string {
	if len(matrix) == 0 {
		return ""
	}
	keys := metrics.AllKeys()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**%s correlation**\n\n", strings.ToUpper(string(method[:1]))+string(method[1:])))
	sb.WriteString("| |")
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s |", k))
	}
	sb.WriteString("\n|---|")
	sb.WriteString(strings.Repeat("---|", len(keys)))
	sb.WriteString("\n")

	for _, row := range keys {
		sb.WriteString(fmt.Sprintf("| %s |", row))
		for _, col := range keys {
			cell, ok := matrix[row][col]
			if !ok || cell.Coefficient == nil {
				sb.WriteString(" n/a |")
				continue
			}
			sb.WriteString(fmt.Sprintf(" %.2f |", *cell.Coefficient))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// axisLabel names the unit of a metric for chart axes.
func axisLabel(key metrics.Key) string {
	switch key {
	case metrics.LeadTime, metrics.CycleTime, metrics.ReviewTime:
		return "Milliseconds"
	case metrics.CommentCount:
		return "Comments"
	case metrics.Complexity:
		return "Complexity"
	case metrics.PlanVsActual:
		return "Ratio"
	default:
		return string(key)
	}
}
