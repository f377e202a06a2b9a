package backup

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// invalidNameChars are replaced with '_' so names are portable to every
// common local file system.
const invalidNameChars = `<>:"/\|?*`

// maxDisambiguation bounds the "name (N)" search. Reaching it means the
// index is inconsistent, not that a folder really holds that many clashes.
const maxDisambiguation = 10000

// sanitizeName turns a remote display name into a single safe path
// component: NFC-normalized, invalid and control characters replaced.
func sanitizeName(name string) string {
	name = norm.NFC.String(name)

	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(invalidNameChars, r) {
			return '_'
		}

		return r
	}, name)

	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return "_"
	}

	return name
}

// splitExt splits name into base and extension (with the dot). Dotfiles
// such as ".bashrc" have no extension.
func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name || ext == "." {
		return name, ""
	}

	return strings.TrimSuffix(name, ext), ext
}

// numberedName returns the n-th disambiguated form of name:
// "Report.xlsx" -> "Report (2).xlsx". n == 1 is the name itself.
func numberedName(name string, n int) string {
	if n <= 1 {
		return name
	}

	base, ext := splitExt(name)

	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// versionedName returns the name a superseded version is kept under:
// "Report.xlsx", 1 -> "Report.v01.xlsx". The number is zero-padded to at
// least two digits.
func versionedName(name string, version int) string {
	base, ext := splitExt(name)
	width := max(2, len(strconv.Itoa(version)))

	return fmt.Sprintf("%s.v%0*d%s", base, width, version, ext)
}

// withExtension appends ext unless name already ends with it.
func withExtension(name, ext string) string {
	if strings.EqualFold(path.Ext(name), ext) {
		return name
	}

	return name + ext
}

// joinRel joins slash-separated relative path elements; an empty dir means
// the backup root.
func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}
