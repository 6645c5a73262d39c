package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/server"
	"github.com/JakeFAU/websum/internal/websum"
)

type fetchOutput struct {
	RequestedURL string `json:"requested_url"`
	FinalURL     string `json:"final_url"`
	Title        string `json:"title"`
	Source       string `json:"source"`
	Markdown     string `json:"markdown"`
}

func newFetchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Acquire one URL and print its markdown",
		Long: `Runs the fetch router once for the given URL, without summarizing or
publishing, and prints the extracted markdown. Useful for checking which
acquisition path a site takes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			acq, err := server.BuildAcquisition(cmd.Context(), &e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer acq.Close()

			doc, err := acq.Acquirer.Acquire(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			e.logger.Info("fetched",
				zap.String("url", args[0]),
				zap.String("source", doc.Source),
				zap.Int("markdown_chars", len(doc.Markdown)),
			)
			return writeDocument(cmd.OutOrStdout(), doc, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print a JSON object instead of raw markdown")
	return cmd
}

func writeDocument(w io.Writer, doc websum.Document, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fetchOutput{
			RequestedURL: doc.RequestedURL,
			FinalURL:     doc.FinalURL,
			Title:        doc.Title,
			Source:       doc.Source,
			Markdown:     doc.Markdown,
		}); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		return nil
	}
	if doc.Title != "" {
		if _, err := fmt.Fprintf(w, "# %s\n\n", doc.Title); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
	}
	if _, err := fmt.Fprintln(w, doc.Markdown); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
