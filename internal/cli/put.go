package cli

import (
	"context"
	"os"
	"time"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/resolver"
	syncengine "github.com/agavecli/agsync/internal/sync"
	"github.com/agavecli/agsync/internal/types"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <local-path> <remote-ref>",
	Short: "Upload a file or directory tree",
	Long: `Upload a local file into a remote directory or, with --recursive,
push a whole local tree. The remote reference names the destination
directory on the storage system.

Uploads skip files whose remote copy already has the same size and an
mtime no older than the local one. Secrets and tool droppings (.env,
*.key, .git/ and similar) are excluded from tree uploads by default.`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

var (
	putRecursive   bool
	putName        string
	putExclude     []string
	putConcurrency int
)

func init() {
	putCmd.Flags().BoolVarP(&putRecursive, "recursive", "r", false, "Push a directory tree")
	putCmd.Flags().StringVar(&putName, "name", "", "Remote file name (single-file upload only)")
	putCmd.Flags().StringSliceVar(&putExclude, "exclude", nil, "Additional patterns to skip")
	putCmd.Flags().IntVar(&putConcurrency, "concurrency", 0, "Concurrent uploads (default from config)")

	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	started := time.Now()
	localPath := args[0]

	ref, err := resolver.ParseRef(args[1])
	if err != nil {
		return fail(newFormatter(nil), "put", err)
	}

	sess, err := newSession(ctx)
	if err != nil {
		return fail(newFormatter(nil), "put", err)
	}
	out := newFormatter(sess.cfg)

	local, err := os.Stat(localPath)
	if err != nil {
		return failInvalid(out, "put", "cannot read local path: "+err.Error())
	}

	reqCtx := api.NewRequestContext(sess.profile, ref.System, types.RequestTypeUpload)
	engine := sess.engine(putConcurrency)
	run := syncengine.NewRun()

	if local.IsDir() {
		if !putRecursive {
			return failInvalid(out, "put",
				localPath+" is a directory; use --recursive to push it")
		}
		if putName != "" {
			return failInvalid(out, "put", "--name applies only to single-file uploads")
		}
		engine.PushTree(ctx, reqCtx, localPath, ref.System, ref.Path, putExclude, run)
	} else {
		engine.PushFile(ctx, reqCtx, localPath, ref.System, ref.Path, putName, run)
	}

	sess.recordRun(ctx, "put", ref.System, ref.Path, localPath, run, started)
	return finishRun(out, "put", run)
}
