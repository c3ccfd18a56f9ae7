package cli

import (
	"context"
	"net/url"
	"path"

	"github.com/agavecli/agsync/internal/api"
	"github.com/agavecli/agsync/internal/resolver"
	"github.com/agavecli/agsync/internal/types"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <url> <remote-ref>",
	Short: "Import a URL into a remote directory",
	Long: `Ask the storage service to fetch a URL server-side into a remote
directory. The transfer runs on the service; the command returns as
soon as the request is accepted.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

var importName string

func init() {
	importCmd.Flags().StringVar(&importName, "name", "", "File name for the imported content")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ingestURL := args[0]

	ref, err := resolver.ParseRef(args[1])
	if err != nil {
		return fail(newFormatter(nil), "import", err)
	}

	sess, err := newSession(ctx)
	if err != nil {
		return fail(newFormatter(nil), "import", err)
	}
	out := newFormatter(sess.cfg)

	parsed, err := url.Parse(ingestURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return failInvalid(out, "import", "not an absolute URL: "+ingestURL)
	}

	name := importName
	if name == "" {
		name = path.Base(parsed.Path)
		if name == "/" || name == "." {
			name = ""
		}
	}

	reqCtx := api.NewRequestContext(sess.profile, ref.System, types.RequestTypeImport)
	if err := sess.client.Import(ctx, reqCtx, ref.System, ref.Path, ingestURL, name); err != nil {
		return fail(out, "import", err)
	}

	return out.WriteSuccess("import", map[string]interface{}{
		"system":   ref.System,
		"path":     ref.Path,
		"url":      ingestURL,
		"fileName": name,
		"status":   "accepted",
	})
}
