package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

const (
	columnGap = "  "

	// Recent files show the time of day, older ones the year.
	recentLayout = "Jan _2 15:04"
	olderLayout  = "Jan _2  2006"
)

func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatSize renders a byte count with SI units, "-" when unknown.
func formatSize(n int64) string {
	if n < 0 {
		return "-"
	}

	return humanize.Bytes(uint64(n))
}

// formatTime renders t in local time, with the year only when it differs
// from now's.
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	local := t.Local()
	if local.Year() == now.Year() {
		return local.Format(recentLayout)
	}

	return local.Format(olderLayout)
}

func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return humanize.RelTime(t, now, "ago", "from now")
}

// printTable writes headers and rows as left-aligned columns. Widths count
// runes, so Drive names outside ASCII line up. The last column is never
// padded.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, line := range append([][]string{headers}, rows...) {
		for col, cell := range line {
			widths[col] = max(widths[col], utf8.RuneCountInString(cell))
		}
	}

	var b strings.Builder

	for _, line := range append([][]string{headers}, rows...) {
		b.Reset()

		for col, cell := range line {
			if col > 0 {
				b.WriteString(columnGap)
			}

			b.WriteString(cell)

			if col < len(line)-1 {
				b.WriteString(strings.Repeat(" ", widths[col]-utf8.RuneCountInString(cell)))
			}
		}

		fmt.Fprintln(w, b.String())
	}
}
