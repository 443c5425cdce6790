package training

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ProgressBar renders epoch progress with running metrics, overwriting a
// single terminal line per update.
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
}

// NewProgressBar creates a progress bar writing to out.
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar and replaces the displayed metrics.
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar and moves to the next line.
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	percentage := float64(pb.current) / float64(pb.total)
	if percentage > 1.0 {
		percentage = 1.0
	}
	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s",
		pb.description, percentage*100, bar, pb.current, pb.total, formatDuration(elapsed))

	if pb.current > 0 && percentage > 0 {
		eta := time.Duration(float64(elapsed)/percentage) - elapsed
		line += fmt.Sprintf("<%s", formatDuration(eta))
	} else {
		line += "<00:00"
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, "acc") || strings.Contains(k, "iou") {
			line += fmt.Sprintf(", %s=%.2f%%", k, pb.metrics[k]*100)
		} else {
			line += fmt.Sprintf(", %s=%.3f", k, pb.metrics[k])
		}
	}
	line += "]"
	fmt.Fprint(pb.out, line)
}

// formatDuration formats a duration as MM:SS.
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
