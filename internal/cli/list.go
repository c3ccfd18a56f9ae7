package cli

import (
	"context"
	"sort"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/resolver"
	"github.com/agavecli/agsync/internal/types"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <remote-ref>",
	Short: "List a remote directory",
	Long: `List the contents of a remote directory, or show the metadata of a
single remote file. Directories sort before files, each group by name.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ref, err := resolver.ParseRef(args[0])
	if err != nil {
		return fail(newFormatter(nil), "list", err)
	}

	sess, err := newSession(ctx)
	if err != nil {
		return fail(newFormatter(nil), "list", err)
	}
	out := newFormatter(sess.cfg)

	reqCtx := api.NewRequestContext(sess.profile, ref.System, types.RequestTypeList)
	res := resolver.NewResolver(sess.client, sess.cfg.GetCacheTTL())
	resolved, err := res.Resolve(ctx, reqCtx, args[0])
	if err != nil {
		return fail(out, "list", err)
	}

	if resolved.Kind != resolver.KindDirectory {
		return out.WriteSuccess("list", []*types.FileInfo{resolved.Info})
	}

	entries, err := sess.client.List(ctx, reqCtx, ref.System, ref.Path)
	if err != nil {
		return fail(out, "list", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name < entries[j].Name
	})

	return out.WriteSuccess("list", entries)
}
