package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all store instances",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

func runStoreList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mgr, err := resolveManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	instances, err := mgr.List(ctx)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Key < instances[j].Key
	})

	if storeJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"instances": instances,
			"total":     len(instances),
		})
	}

	if len(instances) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No store instances found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "KEY\tSIZE\tCREATED\tDESCRIPTION")
	for _, in := range instances {
		desc := in.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			in.Key,
			formatSize(in.SizeBytes),
			in.Created.Format("2006-01-02 15:04"),
			desc,
		)
	}
	w.Flush()

	return nil
}
