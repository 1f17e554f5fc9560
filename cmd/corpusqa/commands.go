package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusqa/corpusqa/internal/analytics"
	"github.com/corpusqa/corpusqa/internal/cache"
	"github.com/corpusqa/corpusqa/internal/extract"
	"github.com/corpusqa/corpusqa/internal/feedback"
	"github.com/corpusqa/corpusqa/internal/objectstore"
	"github.com/corpusqa/corpusqa/internal/pipeline"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over the indexed corpus",
	Long: `Ask a question over the indexed corpus.

Repeated questions (up to whitespace and letter case) are served from the
answer cache without calling the generation service.

Examples:
  corpusqa ask "What is the refund policy?"
  corpusqa ask --json "What is the refund policy?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.orchestrator().Answer(cmd.Context(), query)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(res)
		}
		fmt.Println(res.Answer)
		printStatus("Source", "%s", res.Source)
		return nil
	},
}

// --- pipeline ---

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [dir]",
	Short: "Run documents through upload, extraction and index sync",
	Long: `Run documents through upload, extraction and index sync.

With a directory argument, local documents are uploaded first. Without one,
objects already under the raw prefix are processed. Completed steps are
skipped on re-runs, so failed batches can simply be run again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.pipeline()
		if err != nil {
			return err
		}
		objects, err := a.objectStore()
		if err != nil {
			return err
		}

		var docs []pipeline.Document
		if len(args) == 1 {
			paths, err := objectstore.ListLocalDocuments(args[0])
			if err != nil {
				return err
			}
			for _, path := range paths {
				docs = append(docs, pipeline.Document{
					LocalPath: path,
					Key:       docKey(a.cfg.Pipeline.RawPrefix, path),
				})
			}
		} else {
			keys, err := objects.List(cmd.Context(), a.cfg.Pipeline.RawPrefix)
			if err != nil {
				return fmt.Errorf("listing raw objects: %w", err)
			}
			for _, key := range keys {
				docs = append(docs, pipeline.Document{Key: key})
			}
		}
		if len(docs) == 0 {
			printWarning("no documents to process")
			return nil
		}

		printStep("Processing %d document(s)", len(docs))
		outcomes := p.Run(cmd.Context(), docs)

		if asJSON {
			if err := printJSON(outcomes); err != nil {
				return err
			}
		} else {
			for _, o := range outcomes {
				if o.Stage == pipeline.StageFailed {
					printError("%s failed at %s: %s", o.DocKey, o.FailedAt, o.Error)
				} else {
					printSuccess("%s indexed as %s", o.DocKey, o.DerivedKey)
				}
			}
		}

		for stage, n := range analytics.StageCounts(outcomes) {
			printStatus(string(stage), "%d", n)
		}
		if failed := pipeline.FailedCount(outcomes); failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(outcomes))
		}
		return nil
	},
}

func docKey(rawPrefix, path string) string {
	return rawPrefix + filepath.Base(path)
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <dir>",
	Short: "Upload local documents to the raw prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		objects, err := a.objectStore()
		if err != nil {
			return err
		}

		keys, err := objects.UploadDir(cmd.Context(), args[0], a.cfg.Pipeline.RawPrefix)
		if err != nil {
			return err
		}
		printSuccess("Uploaded %d document(s) to %s", len(keys), a.cfg.Pipeline.RawPrefix)
		return nil
	},
}

// --- extract-local ---

var extractLocalCmd = &cobra.Command{
	Use:   "extract-local <file.pdf>",
	Short: "Extract text from a local PDF without the extraction service",
	Long: `Extract text from a local PDF without the extraction service.

Useful for checking what a document will contribute to the index before
uploading it. Scanned documents need the real extraction service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := extract.LocalPDF{}.ExtractFile(args[0])
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

// --- sync-index ---

var syncIndexCmd = &cobra.Command{
	Use:   "sync-index [source]",
	Short: "Trigger an index sync for the processed corpus",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		source := a.cfg.Pipeline.ProcessedPrefix
		if len(args) == 1 {
			source = args[0]
		}
		jobID, err := a.answererClient().SyncIndex(cmd.Context(), source)
		if err != nil {
			return err
		}
		printSuccess("Sync started for %s (job %s)", source, jobID)
		return nil
	},
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the answer cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show answer cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.cacheStore().Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Remove cached answers",
	Long: `Remove cached answers.

Exactly one selector is required:
  corpusqa cache invalidate --fingerprint 4ab394b8...
  corpusqa cache invalidate --prefix "What is"
  corpusqa cache invalidate --all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fp, _ := cmd.Flags().GetString("fingerprint")
		prefix, _ := cmd.Flags().GetString("prefix")
		all, _ := cmd.Flags().GetBool("all")

		sel, err := buildSelector(fp, prefix, all)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.cacheStore().Invalidate(sel)
		if err != nil {
			return err
		}
		printSuccess("Removed %d cached answer(s)", removed)
		return nil
	},
}

func buildSelector(fingerprint, prefix string, all bool) (cache.Selector, error) {
	set := 0
	if fingerprint != "" {
		set++
	}
	if prefix != "" {
		set++
	}
	if all {
		set++
	}
	if set != 1 {
		return cache.Selector{}, fmt.Errorf("exactly one of --fingerprint, --prefix or --all is required")
	}
	switch {
	case all:
		return cache.All(), nil
	case fingerprint != "":
		return cache.ExactKey(fingerprint), nil
	default:
		return cache.PrefixPattern(prefix), nil
	}
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Physically remove expired cache entries and feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		answers, err := a.cacheStore().SweepExpired()
		if err != nil {
			return err
		}
		votes, err := a.feedbackService().SweepExpired()
		if err != nil {
			return err
		}
		printSuccess("Removed %d expired answer(s) and %d expired feedback entrie(s)", answers, votes)
		return nil
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and inspect answer feedback",
}

var feedbackSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a vote on an answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		answer, _ := cmd.Flags().GetString("answer")
		vote, _ := cmd.Flags().GetString("vote")
		comment, _ := cmd.Flags().GetString("comment")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.feedbackService().Record(feedback.Submission{
			Query:   query,
			Answer:  answer,
			Vote:    vote,
			Comment: comment,
		})
		if err != nil {
			return err
		}
		printSuccess("Recorded %s vote %s", entry.Vote, entry.ID)
		return nil
	},
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.feedbackService().Recent(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No feedback recorded.")
			return nil
		}
		for _, e := range entries {
			query := e.QueryText
			if len(query) > 80 {
				query = query[:80] + "..."
			}
			fmt.Printf("%s  %s  %-8s  %s\n",
				colorize(colorCyan, e.ID[:8]),
				e.SubmittedAt.Format("2006-01-02 15:04"),
				e.Vote,
				query,
			)
		}
		return nil
	},
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the vote distribution",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.feedbackService()
		var dist feedback.Distribution
		if query != "" {
			entries, err := svc.ForQuery(query)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No feedback for this question.")
				return nil
			}
			dist, err = svc.DistributionFor(entries[0].Fingerprint)
			if err != nil {
				return err
			}
		} else {
			var err error
			dist, err = svc.DistributionFor("")
			if err != nil {
				return err
			}
		}
		return printJSON(dist)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	askCmd.Flags().Bool("json", false, "print the full result as JSON")
	pipelineCmd.Flags().Bool("json", false, "print per-document outcomes as JSON")

	cacheInvalidateCmd.Flags().String("fingerprint", "", "remove the entry with this fingerprint")
	cacheInvalidateCmd.Flags().String("prefix", "", "remove entries whose fingerprint or query starts with this prefix")
	cacheInvalidateCmd.Flags().Bool("all", false, "remove every entry")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cacheSweepCmd)

	feedbackSubmitCmd.Flags().String("query", "", "the question the answer was for")
	feedbackSubmitCmd.Flags().String("answer", "", "the answer being judged")
	feedbackSubmitCmd.Flags().String("vote", "", "positive or negative")
	feedbackSubmitCmd.Flags().String("comment", "", "optional free-form comment")
	feedbackListCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	feedbackStatsCmd.Flags().String("query", "", "restrict to one question")
	feedbackCmd.AddCommand(feedbackSubmitCmd)
	feedbackCmd.AddCommand(feedbackListCmd)
	feedbackCmd.AddCommand(feedbackStatsCmd)
}
