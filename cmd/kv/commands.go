package kv

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lbraun/sKV/cmd/util"
	"github.com/lbraun/sKV/lib/store/fstore"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Long: util.WrapString("Sets the value for a key. The value is stored as JSON: " +
			"arguments that parse as JSON are stored verbatim, everything else is stored as a string."),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := parseValue(args[1])
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			if err := kvStore.Create(key, value, ttl); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			resp, err := kvStore.Read(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%s\n", key, resp)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := kvStore.Delete(key); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key holds a live value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			found, err := kvStore.Has(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", key, found)
			return nil
		},
	}
	batchCmd = &cobra.Command{
		Use:   "batch [file]",
		Short: "Creates many key-value pairs from a JSON object",
		Long: util.WrapString("Creates many key-value pairs in one atomic step. The argument is a path to " +
			"a JSON object mapping keys to values, or - to read the object from stdin. " +
			"Items are applied best-effort; the per-key outcome is printed for every item."),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readBatchFile(args[0])
			if err != nil {
				return err
			}

			outcomes, err := kvStore.BatchCreate(items)
			if err != nil {
				return err
			}

			// stable output order
			keys := make([]string, 0, len(outcomes))
			for key := range outcomes {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			failed := 0
			for _, key := range keys {
				if outcome := outcomes[key]; outcome != nil {
					failed++
					fmt.Printf("key=%s, error=%v\n", key, outcome)
				} else {
					fmt.Printf("key=%s, ok\n", key)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d items failed", failed, len(outcomes))
			}
			fmt.Printf("batch of %d items set successfully\n", len(outcomes))
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints metadata about the store file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := kvStore.Info()
			if err != nil {
				return err
			}

			fmt.Printf("%-12s%s\n", "path:", info.Path)
			fmt.Printf("%-12s%d\n", "keys:", info.Keys)
			fmt.Printf("%-12s%d bytes\n", "file size:", info.FileSizeBytes)
			fmt.Printf("%-12smin=%.0f max=%.0f mean=%.1f stddev=%.1f (serialized bytes)\n",
				"values:", info.ValueSizes.Min, info.ValueSizes.Max, info.ValueSizes.Mean, info.ValueSizes.StdDeviation)
			fmt.Printf("%-12screates=%d reads=%d deletes=%d batches=%d expired=%d persists=%d\n",
				"ops:", info.Creates, info.Reads, info.Deletes, info.Batches, info.Expired, info.Persists)

			if prometheus, _ := cmd.Flags().GetBool("prometheus"); prometheus {
				if s, ok := kvStore.(*fstore.Store); ok {
					fmt.Println()
					s.WriteMetrics(os.Stdout)
				}
			}
			return nil
		},
	}
)

func init() {
	setCmd.Flags().Duration("ttl", 0, util.WrapString("How long the entry lives (e.g. 30s, 5m, 1h) - 0 means forever"))
	infoCmd.Flags().Bool("prometheus", false, util.WrapString("Additionally print the store metrics in Prometheus text format"))
}

// parseValue interprets the CLI argument as JSON when possible and falls
// back to storing it as a plain string
func parseValue(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

// readBatchFile reads the batch input from a file or stdin
func readBatchFile(path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("batch input must be a JSON object: %w", err)
	}

	items := make(map[string]any, len(raw))
	for key, value := range raw {
		items[key] = value
	}
	return items, nil
}
