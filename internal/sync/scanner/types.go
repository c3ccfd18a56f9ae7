package scanner

// LocalEntry describes one file or directory under the local root
type LocalEntry struct {
	RelativePath string
	AbsPath      string
	IsDir        bool
	Size         int64
	ModTime      int64
}

// RemoteEntry describes one file or directory under the remote root.
// Path is the absolute remote path; RelativePath is relative to the
// scanned root, with "" meaning the root itself.
type RemoteEntry struct {
	RelativePath string
	Path         string
	Name         string
	IsDir        bool
	Size         int64
	LastModified string
}
