package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/resolver"
	syncengine "github.com/agavecli/agsync/internal/sync"
	"github.com/agavecli/agsync/internal/types"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <remote-ref> [local-path]",
	Short: "Download a file or directory tree",
	Long: `Download a remote file or, with --recursive, mirror a whole remote
directory tree. The remote reference has the form agave://system/path.

Files already present locally with the same size and an mtime no older
than the remote copy are skipped, so re-running a get resumes where the
previous run left off.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var (
	getRecursive   bool
	getExclude     []string
	getConcurrency int
)

func init() {
	getCmd.Flags().BoolVarP(&getRecursive, "recursive", "r", false, "Mirror a directory tree")
	getCmd.Flags().StringSliceVar(&getExclude, "exclude", nil, "Relative paths or glob patterns to skip")
	getCmd.Flags().IntVar(&getConcurrency, "concurrency", 0, "Concurrent transfers (default from config)")

	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	started := time.Now()

	ref, err := resolver.ParseRef(args[0])
	if err != nil {
		return fail(newFormatter(nil), "get", err)
	}

	sess, err := newSession(ctx)
	if err != nil {
		return fail(newFormatter(nil), "get", err)
	}
	out := newFormatter(sess.cfg)

	reqCtx := api.NewRequestContext(sess.profile, ref.System, types.RequestTypeDownload)
	res := resolver.NewResolver(sess.client, sess.cfg.GetCacheTTL())
	resolved, err := res.Resolve(ctx, reqCtx, args[0])
	if err != nil {
		return fail(out, "get", err)
	}

	dest := ""
	if len(args) == 2 {
		dest = args[1]
	}

	engine := sess.engine(getConcurrency)
	run := syncengine.NewRun()

	switch resolved.Kind {
	case resolver.KindDirectory:
		if !getRecursive {
			return failInvalid(out, "get",
				resolved.Ref.String()+" is a directory; use --recursive to mirror it")
		}
		engine.MirrorTree(ctx, reqCtx, resolved.Info, destDirFor(dest, ref), getExclude, run)
	default:
		engine.MirrorFile(ctx, reqCtx, resolved.Info, destFileFor(dest, ref), run)
	}

	sess.recordRun(ctx, "get", ref.System, ref.Path, localRootFor(dest, ref, resolved.Kind), run, started)
	return finishRun(out, "get", run)
}

// destFileFor picks the local path for a single-file download. A dest
// that is an existing directory receives the file under its remote name.
func destFileFor(dest string, ref resolver.RemoteRef) string {
	if dest == "" {
		return ref.Base()
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, ref.Base())
	}
	return dest
}

// destDirFor picks the local root for a tree mirror
func destDirFor(dest string, ref resolver.RemoteRef) string {
	if dest == "" {
		return ref.Base()
	}
	return dest
}

func localRootFor(dest string, ref resolver.RemoteRef, kind resolver.Kind) string {
	if kind == resolver.KindDirectory {
		return destDirFor(dest, ref)
	}
	return destFileFor(dest, ref)
}
