package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextdeck/contextdeck/internal/backup"
)

var (
	exportKey    string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a library instance to a backup file",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportKey, "key", "",
		"Library instance key (e.g. local/library)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Output path (default: stdout)")
	exportCmd.MarkFlagRequired("key")
	exportCmd.Flags().StringVar(&storeRootOverride, "root", "",
		"Store root path (overrides config and CONTEXTDECK_STORES_ROOT)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mgr, err := resolveManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	handle, err := mgr.Open(ctx, exportKey)
	if err != nil {
		return err
	}

	doc, err := backup.Export(ctx, handle.Instance)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	data = append(data, '\n')

	if exportOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0644); err != nil {
		return fmt.Errorf("write backup file: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d contexts and %d labels to %s\n",
		len(doc.Contexts), len(doc.Labels), exportOutput)
	return nil
}
