package sync

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/agavecli/agsync/internal/sync/exclude"
	"github.com/agavecli/agsync/internal/sync/scanner"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// PushFile uploads one local file into a remote directory
func (e *Engine) PushFile(ctx context.Context, reqCtx *types.RequestContext, localPath, system, remoteDir, name string, run *Run) {
	if name == "" {
		name = filepath.Base(localPath)
	}
	remotePath := path.Join(remoteDir, name)

	if err := e.client.Upload(ctx, reqCtx, system, remoteDir, localPath, name); err != nil {
		run.RecordError(remotePath, localPath, ItemFile, err)
		return
	}
	item := ItemResult{
		RemotePath: remotePath,
		LocalPath:  localPath,
		Kind:       ItemFile,
		Outcome:    OutcomeSucceeded,
	}
	if info, err := os.Stat(localPath); err == nil {
		item.Bytes = info.Size()
	}
	run.Record(item)
}

// upload is one pending file upload
type upload struct {
	remotePath string
	entry      scanner.LocalEntry
}

// PushTree uploads the local tree rooted at localRoot into the remote
// directory remoteDir. Remote directories are created first, top down;
// files already present remotely with the same size and a mtime no
// older than the local copy are skipped.
func (e *Engine) PushTree(ctx context.Context, reqCtx *types.RequestContext, localRoot, system, remoteDir string, excludePatterns []string, run *Run) {
	matcher := exclude.NewWithDefaults(excludePatterns)

	localEntries, err := scanner.ScanLocal(ctx, localRoot, matcher)
	if err != nil {
		run.RecordError(remoteDir, localRoot, ItemDirectory, utils.NewAppError(
			utils.NewCLIError(utils.ErrCodeLocalIOError, "cannot scan local tree: "+err.Error()).
				WithContext("path", localRoot).
				Build()))
		return
	}

	// Existing remote state drives the skip rule. A missing remote root
	// just means nothing is skippable.
	remoteEntries := e.remoteScanner.ListTree(ctx, reqCtx, system, remoteDir, nil, nil)

	failedDirs := make(map[string]bool)
	var dirs, files []scanner.LocalEntry
	for _, entry := range localEntries {
		if entry.IsDir {
			dirs = append(dirs, entry)
		} else {
			files = append(files, entry)
		}
	}

	sortLocalByDepth(dirs)
	for _, dir := range dirs {
		if underFailedDir(dir.RelativePath, failedDirs) {
			continue
		}
		remotePath := path.Join(remoteDir, dir.RelativePath)
		if existing, ok := remoteEntries[dir.RelativePath]; ok && existing.IsDir {
			run.Record(ItemResult{
				RemotePath: remotePath,
				LocalPath:  dir.AbsPath,
				Kind:       ItemDirectory,
				Outcome:    OutcomeSkipped,
				Reason:     "remote directory exists",
			})
			continue
		}
		parent := path.Join(remoteDir, parentRel(dir.RelativePath))
		if err := e.client.Mkdir(ctx, reqCtx, system, parent, path.Base(dir.RelativePath)); err != nil {
			failedDirs[dir.RelativePath] = true
			run.RecordError(remotePath, dir.AbsPath, ItemDirectory, err)
			continue
		}
		run.Record(ItemResult{
			RemotePath: remotePath,
			LocalPath:  dir.AbsPath,
			Kind:       ItemDirectory,
			Outcome:    OutcomeSucceeded,
		})
	}

	var uploads []upload
	for _, entry := range files {
		if underFailedDir(entry.RelativePath, failedDirs) {
			continue
		}
		remotePath := path.Join(remoteDir, entry.RelativePath)
		if existing, ok := remoteEntries[entry.RelativePath]; ok && !existing.IsDir && remoteFresh(existing, entry) {
			run.Record(ItemResult{
				RemotePath: remotePath,
				LocalPath:  entry.AbsPath,
				Kind:       ItemFile,
				Outcome:    OutcomeSkipped,
				Reason:     "remote copy is current",
			})
			continue
		}
		uploads = append(uploads, upload{remotePath: remotePath, entry: entry})
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].remotePath < uploads[j].remotePath })

	e.runUploads(ctx, reqCtx, system, uploads, run)
}

// runUploads pushes files through the worker pool
func (e *Engine) runUploads(ctx context.Context, reqCtx *types.RequestContext, system string, uploads []upload, run *Run) {
	if len(uploads) == 0 {
		return
	}

	jobs := make(chan upload)
	var wg gosync.WaitGroup

	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for up := range jobs {
				if ctx.Err() != nil {
					run.RecordError(up.remotePath, up.entry.AbsPath, ItemFile, e.client.Classify(ctx.Err(), reqCtx))
					continue
				}
				parent := path.Dir(up.remotePath)
				if err := e.client.Upload(ctx, reqCtx, system, parent, up.entry.AbsPath, path.Base(up.remotePath)); err != nil {
					run.RecordError(up.remotePath, up.entry.AbsPath, ItemFile, err)
					continue
				}
				run.Record(ItemResult{
					RemotePath: up.remotePath,
					LocalPath:  up.entry.AbsPath,
					Kind:       ItemFile,
					Outcome:    OutcomeSucceeded,
					Bytes:      up.entry.Size,
				})
			}
		}()
	}

	for _, up := range uploads {
		jobs <- up
	}
	close(jobs)
	wg.Wait()
}

// remoteFresh reports whether the remote copy already matches the local
// file closely enough to skip the upload
func remoteFresh(remote scanner.RemoteEntry, local scanner.LocalEntry) bool {
	if remote.Size != local.Size {
		return false
	}
	if remote.LastModified == "" {
		return true
	}
	remoteMTime, err := time.Parse(utils.APITimeFormat, remote.LastModified)
	if err != nil {
		if remoteMTime, err = time.Parse(time.RFC3339, remote.LastModified); err != nil {
			return true
		}
	}
	return !remoteMTime.Before(time.Unix(local.ModTime, 0))
}

func parentRel(rel string) string {
	parent := path.Dir(rel)
	if parent == "." {
		return ""
	}
	return parent
}

func sortLocalByDepth(entries []scanner.LocalEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return strings.Count(entries[i].RelativePath, "/") < strings.Count(entries[j].RelativePath, "/")
	})
}
