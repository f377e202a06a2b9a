package gdrive

import "time"

// RootID is the Drive alias for the root folder of "My Drive".
const RootID = "root"

// Entry is a Drive file or folder, normalized from the API response.
// Callers never see raw drive.File values.
type Entry struct {
	ID          string
	Name        string
	ParentID    string // empty when the entry sits at the account root
	IsFolder    bool
	MimeType    string
	ModifiedAt  time.Time
	Size        int64  // zero for native documents and folders
	MD5Checksum string // hex; empty when the service supplies none
}

// ListFilter bounds a children listing by modification time. Folders are
// always listed regardless of the filter so the walk can descend into them.
// Zero values leave the corresponding side open.
type ListFilter struct {
	ModifiedFrom   time.Time // inclusive
	ModifiedBefore time.Time // exclusive
}

// Account is the subset of the about resource shown by whoami.
type Account struct {
	Email       string
	DisplayName string
	QuotaUsed   int64
	QuotaLimit  int64 // zero for unlimited
}
