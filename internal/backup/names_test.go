package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Report", "Report"},
		{`a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"tab\there", "tab_here"},
		{"", "_"},
		{".", "_"},
		{"..", "_"},
		{"  ", "_"},
		{"...hidden", "...hidden"},
		// "e" + combining acute accent composes to U+00E9.
		{"Cafe\u0301", "Caf\u00e9"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in), "sanitizeName(%q)", tt.in)
	}
}

func TestNumberedName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Report.xlsx", numberedName("Report.xlsx", 1))
	assert.Equal(t, "Report (2).xlsx", numberedName("Report.xlsx", 2))
	assert.Equal(t, "notes (3)", numberedName("notes", 3))
	assert.Equal(t, ".bashrc (2)", numberedName(".bashrc", 2))
	assert.Equal(t, "archive.tar (2).gz", numberedName("archive.tar.gz", 2))
}

func TestVersionedName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Report.v01.xlsx", versionedName("Report.xlsx", 1))
	assert.Equal(t, "Report.v09.xlsx", versionedName("Report.xlsx", 9))
	assert.Equal(t, "Report.v10.xlsx", versionedName("Report.xlsx", 10))
	assert.Equal(t, "Report.v123.xlsx", versionedName("Report.xlsx", 123))
	assert.Equal(t, "Makefile.v02", versionedName("Makefile", 2))
	assert.Equal(t, "Report (2).v01.xlsx", versionedName("Report (2).xlsx", 1))
}

func TestWithExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Report.xlsx", withExtension("Report", ".xlsx"))
	assert.Equal(t, "Budget.XLSX", withExtension("Budget.XLSX", ".xlsx"))
	assert.Equal(t, "notes.txt.docx", withExtension("notes.txt", ".docx"))
}

func TestJoinRel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.txt", joinRel("", "a.txt"))
	assert.Equal(t, "Docs/a.txt", joinRel("Docs", "a.txt"))
}

func TestDateWindow(t *testing.T) {
	t.Parallel()

	w := DateWindow(day(2023, 1, 1), day(2023, 6, 30))

	assert.Equal(t, day(2023, 1, 1), w.Start)
	assert.Equal(t, day(2023, 7, 1), w.End)

	assert.True(t, w.Contains(day(2023, 1, 1)), "start is inclusive")
	assert.True(t, w.Contains(day(2023, 6, 30).Add(23*time.Hour+59*time.Minute)), "whole end day is inside")
	assert.False(t, w.Contains(day(2023, 7, 1)), "end is exclusive")
	assert.False(t, w.Contains(day(2022, 12, 31)))
}

func TestDateWindow_LocalDates(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	w := DateWindow(time.Date(2023, 1, 1, 15, 0, 0, 0, loc), time.Date(2023, 1, 1, 9, 0, 0, 0, loc))

	assert.Equal(t, time.Date(2022, 12, 31, 22, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2023, 1, 1, 22, 0, 0, 0, time.UTC), w.End)
}

func TestWindow_OpenBounds(t *testing.T) {
	t.Parallel()

	var w Window
	assert.True(t, w.Contains(day(1990, 1, 1)))
	assert.True(t, w.Contains(day(2090, 1, 1)))

	f := DateWindow(day(2023, 1, 1), day(2023, 1, 31)).ListFilter()
	assert.Equal(t, day(2023, 1, 1), f.ModifiedFrom)
	assert.Equal(t, day(2023, 2, 1), f.ModifiedBefore)
}
