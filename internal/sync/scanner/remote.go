package scanner

import (
	"context"
	"path"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/sync/exclude"
	"github.com/agavecli/agsync/internal/types"
)

// RemoteScanner walks remote directory trees through the listings API
type RemoteScanner struct {
	client *api.Client
}

// NewRemoteScanner creates a remote tree scanner
func NewRemoteScanner(client *api.Client) *RemoteScanner {
	return &RemoteScanner{client: client}
}

type remoteNode struct {
	path string
	rel  string
}

// ListTree walks the tree rooted at rootPath breadth-first and returns
// its entries keyed by relative path. The root itself is not included.
// A directory whose listing fails is reported through onError and its
// subtree skipped; the rest of the walk continues, so one unreadable
// directory never aborts the whole scan.
func (s *RemoteScanner) ListTree(ctx context.Context, reqCtx *types.RequestContext, system, rootPath string, matcher *exclude.Matcher, onError func(relPath, remotePath string, err error)) map[string]RemoteEntry {
	entries := make(map[string]RemoteEntry)
	queue := []remoteNode{{path: rootPath, rel: ""}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if ctx.Err() != nil {
			if onError != nil {
				onError(node.rel, node.path, ctx.Err())
			}
			continue
		}

		children, err := s.client.List(ctx, reqCtx, system, node.path)
		if err != nil {
			if onError != nil {
				onError(node.rel, node.path, err)
			}
			continue
		}

		for _, child := range children {
			rel := child.Name
			if node.rel != "" {
				rel = path.Join(node.rel, child.Name)
			}
			if matcher != nil && matcher.IsExcluded(rel, child.IsDir()) {
				continue
			}
			entry := RemoteEntry{
				RelativePath: rel,
				Path:         child.Path,
				Name:         child.Name,
				IsDir:        child.IsDir(),
				Size:         child.Length,
				LastModified: child.LastModified,
			}
			entries[rel] = entry
			if entry.IsDir {
				queue = append(queue, remoteNode{path: child.Path, rel: rel})
			}
		}
	}

	return entries
}
