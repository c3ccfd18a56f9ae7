package cli

import (
	"context"
	"path"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/resolver"
	"github.com/agavecli/agsync/internal/types"
	"github.com/spf13/cobra"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <remote-ref>",
	Short: "Create a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ref, err := resolver.ParseRef(args[0])
	if err != nil {
		return fail(newFormatter(nil), "mkdir", err)
	}

	sess, err := newSession(ctx)
	if err != nil {
		return fail(newFormatter(nil), "mkdir", err)
	}
	out := newFormatter(sess.cfg)

	if ref.Path == "/" {
		return failInvalid(out, "mkdir", "cannot create the system root")
	}

	reqCtx := api.NewRequestContext(sess.profile, ref.System, types.RequestTypeMkdir)
	parent := path.Dir(ref.Path)
	if err := sess.client.Mkdir(ctx, reqCtx, ref.System, parent, ref.Base()); err != nil {
		return fail(out, "mkdir", err)
	}

	return out.WriteSuccess("mkdir", map[string]interface{}{
		"system": ref.System,
		"path":   ref.Path,
		"status": "created",
	})
}
