package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	retrieveuc "github.com/snapdex/snapdex/internal/usecase/retrieve"
)

var (
	searchK           int
	searchCategory    string
	searchNoTranslate bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed images by text",
	Long: `Embed a text query and print the most similar indexed images,
ranked by cosine similarity.

Examples:
  snapdex search "a tabby cat"
  snapdex search "sunset over water" -k 10 --category vacation
  snapdex search "red bicycle" --no-translate`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "restrict results to one category")
	searchCmd.Flags().BoolVar(&searchNoTranslate, "no-translate", false, "skip the LLM query rewrite")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder := newEmbedder()
	svc := retrieveuc.New(embedder, newImageRepo(store), cfg.Search.DefaultK, cfg.Search.MaxK, log)
	if t := newTranslator(); t != nil {
		svc = svc.WithTranslator(t)
	}

	resp, err := svc.SearchByText(ctx, retrieveuc.TextRequest{
		Query:     args[0],
		Category:  searchCategory,
		K:         searchK,
		Translate: !searchNoTranslate,
	})
	if err != nil {
		return err
	}

	if resp.TranslationApplied {
		fmt.Printf("Query rewritten: %q -> %q\n", resp.Query, resp.TranslatedQuery)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, r := range resp.Results {
		category := r.Category()
		if category == "" {
			category = "-"
		}
		fmt.Printf("%2d. %-30s %-15s %.4f  %s\n", r.Rank(), r.Filename(), category, r.Score(), r.Path())
	}
	return nil
}
