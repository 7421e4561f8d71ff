package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/localrag/localrag/internal/app"
	"github.com/localrag/localrag/internal/config"
	"github.com/localrag/localrag/internal/document"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage cataloged documents",
}

var (
	flagListType     string
	flagListPage     int
	flagListPageSize int
)

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cataloged documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDocumentsList(cmd.Context())
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentsDelete(cmd.Context(), args[0])
	},
}

func init() {
	documentsListCmd.Flags().StringVar(&flagListType, "type", "", "filter by document type (pdf, markdown)")
	documentsListCmd.Flags().IntVar(&flagListPage, "page", 0, "page number")
	documentsListCmd.Flags().IntVar(&flagListPageSize, "page-size", 0, "page size (-1 for everything)")

	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(parent context.Context) error {
	ctx, a, err := setupCLI(parent)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := document.ListOptions{
		Page:     flagListPage,
		PageSize: flagListPageSize,
	}
	if flagListType != "" {
		docType := document.Type(flagListType)
		if !docType.Valid() {
			return fmt.Errorf("unknown document type %q", flagListType)
		}
		opts.Types = []document.Type{docType}
	}

	docs, total, err := a.Engine.List(ctx, opts)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	for _, d := range docs {
		fmt.Printf("%s  %-8s  %-40s  %d chunks  %s\n",
			d.ID, d.Type, d.Title, len(d.ChunkIDs), d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("%d of %d documents\n", len(docs), total)
	return nil
}

func runDocumentsDelete(parent context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid document id %q", rawID)
	}

	ctx, a, err := setupCLI(parent)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

// setupCLI is the shared boilerplate of one-shot commands: config, signal
// context, application wiring.
func setupCLI(parent context.Context) (context.Context, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	ctx, _ := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return ctx, a, nil
}
