package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/command"
)

var importKey string

var importCmd = &cobra.Command{
	Use:   "import <backup-file>",
	Short: "Import a backup file into a library instance",
	Long:  "Validate a backup file and apply it to a library instance. A structurally invalid file is rejected without touching the store.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importKey, "key", "",
		"Library instance key (e.g. local/library)")
	importCmd.MarkFlagRequired("key")
	importCmd.Flags().StringVar(&storeRootOverride, "root", "",
		"Store root path (overrides config and CONTEXTDECK_STORES_ROOT)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read backup file: %w", err)
	}

	doc, err := backup.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid backup file: %w", err)
	}

	mgr, err := resolveManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	handle, err := mgr.Open(ctx, importKey)
	if err != nil {
		return err
	}

	cmdr := command.New(handle.Instance)
	if err := backup.Import(ctx, handle.Instance, cmdr, doc); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d contexts and %d labels into %q\n",
		len(doc.Contexts), len(doc.Labels), importKey)
	return nil
}
