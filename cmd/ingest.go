package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localrag/localrag/internal/app"
	"github.com/localrag/localrag/internal/config"
	"github.com/localrag/localrag/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest PDF or Markdown files into the knowledge base",
	Long: `Ingest extracts text from each file, splits it into chunks, indexes the
chunks for retrieval, and records the document in the catalog.

Re-ingesting an unchanged file is a no-op. Re-ingesting a changed file
replaces its chunks and updates the record in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	files, handles, err := openIngestFiles(paths)
	if err != nil {
		return err
	}
	defer func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}()

	results := a.Engine.IngestBatch(ctx, files)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.Name, res.Err)
			continue
		}
		fmt.Printf("%s: %s (%d chunks, id %s)\n",
			res.Name, res.Result.Outcome, res.Result.ChunkCount, res.Result.DocumentID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// openIngestFiles opens each path for ingestion. The base name, not the
// path, identifies the document: ingesting the same file over HTTP and over
// the CLI must hit one catalog record. On error, already-opened handles are
// closed before returning.
func openIngestFiles(paths []string) ([]ingest.File, []*os.File, error) {
	var files []ingest.File
	var handles []*os.File
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			for _, h := range handles {
				_ = h.Close()
			}
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		handles = append(handles, f)
		files = append(files, ingest.File{Name: filepath.Base(path), Reader: f})
	}
	return files, handles, nil
}
