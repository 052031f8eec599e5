package cli

import (
	"fmt"

	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/knowledge"
	"github.com/soyeahso/hotline/internal/store"
	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the per-domain knowledge indexes",
	}

	cmd.AddCommand(newIndexBuildCmd())
	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Embed every configured knowledge document and report the index sizes",
		Long: "Splits and embeds the knowledge document of each specialist domain. Embeddings\n" +
			"are cached in the database, so later builds and server starts only embed\n" +
			"changed chunks.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStores(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			embedder, err := knowledge.NewEmbedder(ctx, a.cfg.Embedding)
			if err != nil {
				return fmt.Errorf("embedding provider: %w", err)
			}
			cache := store.NewEmbeddingCache(a.db)
			if a.cfg.Knowledge.CacheEnabled() {
				embedder = knowledge.NewCachedEmbedder(embedder, cache)
			}

			lib := knowledge.NewLibraryFromConfig(embedder, a.cfg.Knowledge, log)
			dataDir := paths.DataDir(a.cfg.Knowledge)
			buildErr := lib.BuildAll(ctx, dataDir, a.cfg.Knowledge)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Knowledge: %s (embedder %s)\n", dataDir, embedder.Name())
			for _, d := range domain.Specialists {
				ix, err := lib.Index(d)
				if err != nil {
					fmt.Fprintf(out, "  %-12s not indexed (%s)\n", d.Slug(), documentLabel(a.cfg.Knowledge.Document(d.Slug())))
					continue
				}
				fmt.Fprintf(out, "  %-12s %d chunks\n", d.Slug(), ix.Len())
			}
			if a.cfg.Knowledge.CacheEnabled() {
				n, err := cache.Count(ctx, embedder.Name())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cached embeddings: %d\n", n)
			}
			return buildErr
		},
	}
}

func documentLabel(name string) string {
	if name == "" {
		return "no document configured"
	}
	return "missing " + name
}
