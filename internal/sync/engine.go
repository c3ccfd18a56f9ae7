package sync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/logging"
	"github.com/agavecli/agsync/internal/sync/exclude"
	"github.com/agavecli/agsync/internal/sync/executor"
	"github.com/agavecli/agsync/internal/sync/scanner"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// Engine coordinates whole-tree transfers between a remote storage
// system and the local filesystem. Transfers within a run share one
// bounded worker pool; per-item failures are recorded in the Run and
// never abort the remaining work.
type Engine struct {
	client        *api.Client
	downloader    *executor.Downloader
	remoteScanner *scanner.RemoteScanner
	logger        logging.Logger
	concurrency   int
}

// NewEngine creates a sync engine. Concurrency below 1 is clamped to 1.
func NewEngine(client *api.Client, logger logging.Logger, dlOpts executor.Options, concurrency int) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		client:        client,
		downloader:    executor.New(client, logger, dlOpts),
		remoteScanner: scanner.NewRemoteScanner(client),
		logger:        logger,
		concurrency:   concurrency,
	}
}

// transfer is one pending file download
type transfer struct {
	info *types.FileInfo
	dest string
}

// MirrorFile mirrors one remote file to an exact local path. A local
// disk failure aborts the run; remote failures stay node-local.
func (e *Engine) MirrorFile(ctx context.Context, reqCtx *types.RequestContext, info *types.FileInfo, destPath string, run *Run) {
	result, err := e.downloader.Download(ctx, reqCtx, info, destPath)
	if err != nil {
		run.RecordError(info.Path, destPath, ItemFile, err)
		if utils.IsCode(err, utils.ErrCodeLocalIOError) {
			run.Abort()
		}
		return
	}
	item := ItemResult{
		RemotePath: info.Path,
		LocalPath:  destPath,
		Kind:       ItemFile,
		Outcome:    OutcomeSucceeded,
		Bytes:      result.Bytes,
	}
	if result.Skipped {
		item.Outcome = OutcomeSkipped
		item.Reason = result.SkipReason
	}
	run.Record(item)
}

// MirrorTree mirrors the remote directory tree rooted at root into
// destDir. Directory structure is replicated first, top down, so an
// empty remote directory still yields an empty local one; files then
// transfer through the worker pool.
func (e *Engine) MirrorTree(ctx context.Context, reqCtx *types.RequestContext, root *types.FileInfo, destDir string, excludePatterns []string, run *Run) {
	matcher := exclude.New(excludePatterns)

	if err := mkLocalDir(destDir); err != nil {
		run.RecordError(root.Path, destDir, ItemDirectory, err)
		return
	}

	failedDirs := make(map[string]bool)
	entries := e.remoteScanner.ListTree(ctx, reqCtx, root.System, root.Path, matcher,
		func(relPath, remotePath string, err error) {
			failedDirs[relPath] = true
			run.RecordError(remotePath, localFor(destDir, relPath), ItemDirectory, err)
		})

	if !failedDirs[""] {
		run.Record(ItemResult{
			RemotePath: root.Path,
			LocalPath:  destDir,
			Kind:       ItemDirectory,
			Outcome:    OutcomeSucceeded,
		})
	}

	var dirs []scanner.RemoteEntry
	var transfers []transfer
	for _, entry := range entries {
		if underFailedDir(entry.RelativePath, failedDirs) {
			continue
		}
		if entry.IsDir {
			dirs = append(dirs, entry)
			continue
		}
		info := &types.FileInfo{
			Name:         entry.Name,
			Path:         entry.Path,
			System:       root.System,
			Type:         types.EntryKindFile,
			Length:       entry.Size,
			LastModified: entry.LastModified,
		}
		transfers = append(transfers, transfer{info: info, dest: localFor(destDir, entry.RelativePath)})
	}

	sortByDepth(dirs)
	for _, dir := range dirs {
		local := localFor(destDir, dir.RelativePath)
		if err := mkLocalDir(local); err != nil {
			// A directory that cannot be created locally means the disk
			// itself is in trouble; per the error policy that is fatal to
			// the whole run, not just this node
			run.RecordError(dir.Path, local, ItemDirectory, err)
			run.Abort()
			return
		}
		run.Record(ItemResult{
			RemotePath: dir.Path,
			LocalPath:  local,
			Kind:       ItemDirectory,
			Outcome:    OutcomeSucceeded,
		})
	}

	// Drop transfers whose directory could not be created
	kept := transfers[:0]
	for _, tr := range transfers {
		rel, _ := filepath.Rel(destDir, filepath.Dir(tr.dest))
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		if rel != "" && failedDirs[rel] {
			continue
		}
		kept = append(kept, tr)
	}

	e.runTransfers(ctx, reqCtx, kept, run, func(ctx context.Context, tr transfer) {
		e.MirrorFile(ctx, reqCtx, tr.info, tr.dest, run)
	})
}

// runTransfers fans transfers out over the worker pool. Unlike a batch
// that stops at the first error, every transfer runs to completion;
// only context cancellation drains the queue early.
func (e *Engine) runTransfers(ctx context.Context, reqCtx *types.RequestContext, transfers []transfer, run *Run, handle func(context.Context, transfer)) {
	if len(transfers) == 0 {
		return
	}

	jobs := make(chan transfer)
	var wg gosync.WaitGroup

	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tr := range jobs {
				if run.Aborted() {
					continue
				}
				if ctx.Err() != nil {
					run.RecordError(tr.info.Path, tr.dest, ItemFile, e.client.Classify(ctx.Err(), reqCtx))
					continue
				}
				handle(ctx, tr)
			}
		}()
	}

	for _, tr := range transfers {
		jobs <- tr
	}
	close(jobs)
	wg.Wait()
}

func localFor(destDir, relPath string) string {
	if relPath == "" {
		return destDir
	}
	return filepath.Join(destDir, filepath.FromSlash(relPath))
}

func mkLocalDir(p string) error {
	if err := os.MkdirAll(p, 0755); err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeLocalIOError,
			"cannot create local directory: "+err.Error()).
			WithContext("path", p).
			Build())
	}
	return nil
}

func underFailedDir(relPath string, failed map[string]bool) bool {
	for prefix := range failed {
		if prefix == "" {
			continue
		}
		if relPath == prefix || strings.HasPrefix(relPath, prefix+"/") {
			return true
		}
	}
	return false
}

func sortByDepth(entries []scanner.RemoteEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return depth(entries[i].RelativePath) < depth(entries[j].RelativePath)
	})
}

func depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
