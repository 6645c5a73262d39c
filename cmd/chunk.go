package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/websum/internal/config"
	"github.com/JakeFAU/websum/internal/server"
)

func newChunkCmd() *cobra.Command {
	var (
		maxTokens int
		runes     bool
	)
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Split a markdown file into token-bounded chunks",
		Long: `Splits markdown the same way jobs do before summarization and prints each
chunk under an HTML comment header. Use "-" to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			chunkCfg := e.cfg.Chunker
			if maxTokens > 0 {
				chunkCfg.MaxTokens = maxTokens
			}
			if runes {
				chunkCfg.UseTiktoken = false
			}
			return writeChunks(cmd.OutOrStdout(), chunkCfg, e, text)
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "per-chunk token budget (default chunker.max_tokens)")
	cmd.Flags().BoolVar(&runes, "runes", false, "estimate tokens from rune counts instead of tiktoken")
	return cmd
}

func writeChunks(w io.Writer, cfg config.ChunkerConfig, e *env, text string) error {
	splitter := server.NewSplitter(cfg, e.logger)
	chunks := splitter.Split(text, cfg.MaxTokens)
	for i, c := range chunks {
		if _, err := fmt.Fprintf(w, "<!-- chunk %d/%d tokens=%d oversized=%t -->\n%s\n",
			i+1, len(chunks), c.Tokens, c.Oversized, c.Text); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	return nil
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
