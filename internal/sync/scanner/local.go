package scanner

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/agavecli/agsync/internal/sync/exclude"
)

// ScanLocal walks the local tree rooted at root and returns its entries
// keyed by slash-separated relative path. Symlinks are not followed.
func ScanLocal(ctx context.Context, root string, matcher *exclude.Matcher) (map[string]LocalEntry, error) {
	entries := make(map[string]LocalEntry)

	err := filepath.WalkDir(root, func(current string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = path.Clean(filepath.ToSlash(rel))

		if matcher != nil && matcher.IsExcluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case info.Mode().IsRegular():
			entries[rel] = LocalEntry{
				RelativePath: rel,
				AbsPath:      current,
				Size:         info.Size(),
				ModTime:      info.ModTime().Unix(),
			}
		case info.IsDir():
			entries[rel] = LocalEntry{
				RelativePath: rel,
				AbsPath:      current,
				IsDir:        true,
				ModTime:      info.ModTime().Unix(),
			}
		}
		// Sockets, devices and other irregular files are ignored

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
