package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextdeck/contextdeck/internal/multistore"
)

var deleteForce bool

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a store instance and all its data",
	Long:  "Permanently delete a store instance and all its data. Requires --force or interactive confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

func init() {
	storeDeleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"Skip confirmation prompt")
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	key := args[0]
	ctx := context.Background()

	if err := multistore.ValidateKey(key); err != nil {
		return err
	}

	mgr, err := resolveManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	if !deleteForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "This permanently deletes instance %q and all its data.\n", key)
		fmt.Fprintf(errOut, "Type the instance key to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(line) != key {
			return fmt.Errorf("confirmation did not match, aborting")
		}
	}

	if err := mgr.Delete(ctx, key); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted instance %q\n", key)
	return nil
}
