package gdrive

import "strings"

// MIME types of Google-native entries.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeDocument     = "application/vnd.google-apps.document"
	MimeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimePresentation = "application/vnd.google-apps.presentation"
	MimeDrawing      = "application/vnd.google-apps.drawing"

	nativePrefix = "application/vnd.google-apps."
)

// ExportFormat describes the portable format a native document is exported to.
type ExportFormat struct {
	MimeType  string
	Extension string // including the leading dot
}

var exportFormats = map[string]ExportFormat{
	MimeDocument: {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	MimeSpreadsheet: {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	MimePresentation: {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
	MimeDrawing: {
		MimeType:  "image/png",
		Extension: ".png",
	},
}

// IsNative reports whether mimeType is a Google-native type (no binary
// content; only exportable, if at all).
func IsNative(mimeType string) bool {
	return strings.HasPrefix(mimeType, nativePrefix)
}

// ExportFormatFor returns the export format for a native office type.
// ok is false for blob types and for native types with no portable export
// (forms, sites, maps, shortcuts, folders).
func ExportFormatFor(mimeType string) (ExportFormat, bool) {
	f, ok := exportFormats[mimeType]
	return f, ok
}
