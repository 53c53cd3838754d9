package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/format"
	"github.com/JakeFAU/websearch-crawler/internal/service"
)

type searchFlags struct {
	max          int
	asJSON       bool
	noEnrich     bool
	noAutomation bool
}

// jsonOutput is the shape printed by search --json.
type jsonOutput struct {
	Query      string           `json:"query"`
	Provider   string           `json:"provider,omitempty"`
	Diagnostic string           `json:"diagnostic,omitempty"`
	Timestamp  string           `json:"timestamp"`
	Results    []crawler.Result `json:"results"`
	Context    string           `json:"context"`
	References string           `json:"references,omitempty"`
}

// newSearchCmd creates the 'search' subcommand, which runs one query and
// prints the citation block followed by the markdown references.
func newSearchCmd() *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a web search and print the results",
		Long: `Runs a single query through the configured engines and prints the
numbered citation block and a markdown source list. An exhausted search is
not an error: the diagnostic is printed instead of results.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchCommand(cmd, args, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.max, "max", "n", 0, "maximum results (1-10, default from config)")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the response as JSON")
	cmd.Flags().BoolVar(&flags.noEnrich, "no-enrich", false, "skip visiting result pages for metadata")
	cmd.Flags().BoolVar(&flags.noAutomation, "no-automation", false, "use direct result URLs only, never drive the engine UI")
	return cmd
}

func runSearchCommand(cmd *cobra.Command, args []string, flags *searchFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return errors.New("query must not be empty")
	}
	if flags.max < 0 {
		return fmt.Errorf("invalid --max %d", flags.max)
	}

	maxResults := appInstance.Config.Search.MaxResults
	if flags.max > 0 {
		maxResults = flags.max
	}
	query := crawler.Query{
		Text:            text,
		MaxResults:      service.NormalizeMaxResults(maxResults),
		AllowAutomation: appInstance.Config.Search.AllowAutomation && !flags.noAutomation,
		SkipEnrichment:  flags.noEnrich || !appInstance.Config.Enrich.Enabled,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp := appInstance.Service.Run(ctx, query)
	out := format.Format(resp)

	w := cmd.OutOrStdout()
	if flags.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		results := resp.Results
		if results == nil {
			results = []crawler.Result{}
		}
		if err := enc.Encode(jsonOutput{
			Query:      resp.Query,
			Provider:   resp.Provider,
			Diagnostic: resp.Diagnostic,
			Timestamp:  resp.Timestamp.UTC().Format(time.RFC3339),
			Results:    results,
			Context:    out.Context,
			References: out.References,
		}); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}

	if _, err := fmt.Fprint(w, out.Context); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if out.References != "" {
		if _, err := fmt.Fprint(w, "\n"+out.References); err != nil {
			return fmt.Errorf("write references: %w", err)
		}
	}
	return nil
}
