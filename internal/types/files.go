package types

// Entry kinds reported by the files service
const (
	EntryKindFile = "file"
	EntryKindDir  = "dir"
)

// FileInfo describes one remote file or directory as returned by the
// files listings API
type FileInfo struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	System       string `json:"system,omitempty"`
	Type         string `json:"type"`
	Format       string `json:"format,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Length       int64  `json:"length"`
	LastModified string `json:"lastModified,omitempty"`
	Permissions  string `json:"permissions,omitempty"`
}

// IsDir reports whether the entry is a directory
func (f *FileInfo) IsDir() bool {
	return f.Type == EntryKindDir
}

// IsSelf reports whether the entry is the listing's own directory marker.
// The service returns the listed directory itself as an entry named ".".
func (f *FileInfo) IsSelf() bool {
	return f.Name == "."
}

// FileListing is one page of a directory listing
type FileListing struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  []*FileInfo `json:"result"`
}
