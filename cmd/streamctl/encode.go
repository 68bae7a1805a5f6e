package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/batchstream/internal/procedures"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/danmuck/batchstream/internal/transform"
	"github.com/spf13/cobra"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Write a batch stream of builtin procedures to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, callArgs, err := callFlags(cmd)
		if err != nil {
			return err
		}
		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		trName, _ := cmd.Flags().GetString("transformer")
		tr, err := transform.ByName(trName)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		batch := procedures.NewBuiltinRegistry().Batch(ctx, names, callArgs)
		return stream.Produce(ctx, cmd.OutOrStdout(), batch, stream.ProducerOptions{
			MaxDepth:    maxDepth,
			Transformer: tr,
		})
	},
}

func init() {
	addCallFlags(encodeCmd)
	encodeCmd.Flags().Int("max-depth", 0, "reject deferred values deeper than this (0 = unlimited)")
	encodeCmd.Flags().String("transformer", transform.NameIdentity, "identity or tagged")
}

func addCallFlags(cmd *cobra.Command) {
	cmd.Flags().String("procs", "", "comma separated procedure names")
	cmd.Flags().StringArray("arg", nil, "procedure argument as key=value (repeatable)")
}

func callFlags(cmd *cobra.Command) ([]string, map[string]string, error) {
	raw, _ := cmd.Flags().GetString("procs")
	names := procedures.ParseNames(raw)
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("--procs is required")
	}
	pairs, _ := cmd.Flags().GetStringArray("arg")
	args, err := parseArgs(pairs)
	if err != nil {
		return nil, nil, err
	}
	return names, args, nil
}

func parseArgs(pairs []string) (map[string]string, error) {
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", pair)
		}
		args[k] = v
	}
	return args, nil
}
