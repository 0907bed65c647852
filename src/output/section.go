package output

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const sectionWidth = 61 // inner width between │ and line end

// Section renders one framed block of run output.
type Section struct {
	w     io.Writer
	name  string
	color bool
}

// NewSection writes the header and returns the section.
// A non-zero elapsed is shown right-aligned in the header.
func NewSection(w io.Writer, name string, elapsed time.Duration, color bool) *Section {
	s := &Section{w: w, name: name, color: color}
	s.writeHeader(elapsed)
	return s
}

// Row writes a content line inside the frame.
func (s *Section) Row(format string, args ...any) {
	fmt.Fprintf(s.w, "    │ %s\n", fmt.Sprintf(format, args...))
}

// KV writes an aligned key/value row.
func (s *Section) KV(key, value string) {
	s.Row("%-12s%s", key, value)
}

// Status writes a row ending in a status icon.
func (s *Section) Status(label, detail, status string) {
	icon := StatusIcon(status, s.color)
	if detail == "" {
		s.Row("%s %s", label, icon)
		return
	}
	s.Row("%-12s%s  %s", label, icon, detail)
}

// Separator writes a mid-section divider.
func (s *Section) Separator() {
	fmt.Fprintf(s.w, "    ├%s\n", strings.Repeat("─", sectionWidth))
}

// Close writes the footer.
func (s *Section) Close() {
	fmt.Fprintf(s.w, "    └%s\n", strings.Repeat("─", sectionWidth))
}

// writeHeader renders: ── Name ──────────────────── elapsed ──
func (s *Section) writeHeader(elapsed time.Duration) {
	label := fmt.Sprintf("── %s ", s.name)

	suffix := "──"
	if elapsed > 0 {
		suffix = fmt.Sprintf(" %s ──", formatElapsed(elapsed))
	}

	fill := max(sectionWidth+4-len([]rune(label))-len([]rune(suffix)), 1)
	line := label + strings.Repeat("─", fill) + suffix

	if s.color {
		fmt.Fprintf(s.w, "\n    \033[2;36m%s\033[0m\n", line)
		return
	}
	fmt.Fprintf(s.w, "\n    %s\n", line)
}

// StatusIcon maps success, failed, and anything else (skipped, cached) to
// an icon.
func StatusIcon(status string, color bool) string {
	var icon, code string
	switch status {
	case "success":
		icon, code = "✓", "32"
	case "failed":
		icon, code = "✗", "31"
	default:
		icon, code = "⊘", "33"
	}
	if !color {
		return icon
	}
	return "\033[" + code + "m" + icon + "\033[0m"
}

// Dimmed greys text out when color is enabled.
func Dimmed(text string, color bool) string {
	if !color {
		return text
	}
	return "\033[90m" + text + "\033[0m"
}

// KV is a key-value pair for ContextBlock.
type KV struct {
	Key   string
	Value string
}

// ContextBlock prints run context two pairs per line.
func ContextBlock(w io.Writer, kv []KV) {
	if len(kv) == 0 {
		return
	}
	fmt.Fprintln(w)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(w, "    %-12s%-22s%-11s%s\n", kv[i].Key, kv[i].Value, kv[i+1].Key, kv[i+1].Value)
			continue
		}
		fmt.Fprintf(w, "    %-12s%s\n", kv[i].Key, kv[i].Value)
	}
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	mins := int(d.Minutes())
	return fmt.Sprintf("%dm%.1fs", mins, d.Seconds()-float64(mins*60))
}

// SummaryRow writes one phase line of the closing summary.
func SummaryRow(w io.Writer, name, status, detail string, color bool) {
	fmt.Fprintf(w, "    │ %-12s%s  %s\n", name, StatusIcon(status, color), detail)
}

// SummaryTotal writes the final total line.
func SummaryTotal(w io.Writer, elapsed time.Duration, status string, color bool) {
	fmt.Fprintf(w, "    │ %-12s%40s   %s\n", "total", formatElapsed(elapsed), StatusIcon(status, color))
}
