package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bom-cli/internal/catalog"
	"github.com/sells-group/bom-cli/pkg/nexar"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the catalog cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <mpn>",
	Short: "Print the cached catalog entry for a part number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cache, err := initCache(ctx)
		if err != nil {
			return err
		}
		if c, ok := cache.(interface{ Close() error }); ok {
			defer c.Close() //nolint:errcheck
		}

		data, err := cache.Get(ctx, args[0])
		if errors.Is(err, catalog.ErrCacheMiss) {
			fmt.Fprintf(os.Stderr, "No cached entry for %s.\n", args[0])
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "cache get")
		}

		raw, _ := cmd.Flags().GetBool("raw")
		if raw {
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}

		var part nexar.Part
		if err := json.Unmarshal(data, &part); err != nil {
			return eris.Wrapf(err, "decode cached entry for %s", args[0])
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.ToEntry(part))
	},
}

var cacheKeyCmd = &cobra.Command{
	Use:   "key <mpn>",
	Short: "Print the cache key a part number is stored under",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), catalog.SanitizeKey(args[0]))
		return err
	},
}

func init() {
	cacheGetCmd.Flags().Bool("raw", false, "print the raw directory record")
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheKeyCmd)
	rootCmd.AddCommand(cacheCmd)
}
