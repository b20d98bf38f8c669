package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var storeInfoCmd = &cobra.Command{
	Use:   "info <key>",
	Short: "Show detailed information about a store instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreInfo,
}

func runStoreInfo(cmd *cobra.Command, args []string) error {
	key := args[0]
	ctx := context.Background()

	mgr, err := resolveManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	exists, err := mgr.Exists(key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("instance %q does not exist", key)
	}

	handle, err := mgr.Open(ctx, key)
	if err != nil {
		return err
	}

	seq, err := handle.Instance.LatestSequence(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if storeJSONOutput {
		return printJSON(out, map[string]any{
			"key":           handle.Key,
			"description":   handle.Meta.Description,
			"created":       handle.Meta.Created,
			"last_accessed": handle.Meta.LastAccessed,
			"last_sequence": seq,
			"path":          handle.BasePath,
		})
	}

	fmt.Fprintf(out, "Instance:      %s\n", handle.Key)
	if handle.Meta.Description != "" {
		fmt.Fprintf(out, "Description:   %s\n", handle.Meta.Description)
	}
	fmt.Fprintf(out, "Created:       %s\n", handle.Meta.Created.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Last Accessed: %s\n", handle.Meta.LastAccessed.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Last Sequence: %d\n", seq)
	fmt.Fprintf(out, "Path:          %s\n", handle.BasePath)

	return nil
}
