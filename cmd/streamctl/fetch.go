package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/protocol/stream"
	"github.com/danmuck/batchstream/internal/transform"
	"github.com/danmuck/batchstream/internal/transport/httpstream"
	"github.com/danmuck/batchstream/internal/transport/wsstream"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a batch stream and print each slot as it settles",
	Long: `Fetch a batch stream over HTTP (http, https) or WebSocket (ws, wss).

Each output line is a JSON object: {"slot":N,"value":...} for a settled
value, {"slot":N,"item":...} for every iterable item and {"slot":N,"error":"..."}
for a failure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, callArgs, err := callFlags(cmd)
		if err != nil {
			return err
		}
		opts, err := fetchOptions(cmd)
		if err != nil {
			return err
		}
		target, err := httpstream.BatchURL(args[0], names, callArgs)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := open(ctx, target, opts)
		if err != nil {
			return err
		}
		defer s.Close()

		printSlots(ctx, cmd.OutOrStdout(), s.Head())
		<-s.Done()
		if err := s.Err(); err != nil {
			return fmt.Errorf("stream %s: %w", s.ID(), err)
		}
		return nil
	},
}

func init() {
	addCallFlags(fetchCmd)
	addConsumerFlags(fetchCmd)
}

func addConsumerFlags(cmd *cobra.Command) {
	cmd.Flags().String("transformer", transform.NameIdentity, "identity or tagged, overrides the config")
	cmd.Flags().String("config", "", "path to a TOML config supplying transformer and max_line_bytes")
	cmd.Flags().Int("max-line-bytes", 0, "largest accepted stream line, overrides the config (0 = config value)")
}

// fetchOptions resolves consumer options from the config file and flags.
// Flags win over the config.
func fetchOptions(cmd *cobra.Command) (stream.ConsumerOptions, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadServeConfig(path)
	if err != nil {
		return stream.ConsumerOptions{}, err
	}
	if cmd.Flags().Changed("transformer") {
		cfg.Transformer, _ = cmd.Flags().GetString("transformer")
	}
	if maxLine, _ := cmd.Flags().GetInt("max-line-bytes"); maxLine > 0 {
		cfg.MaxLineBytes = maxLine
	}
	tr, err := transform.ByName(cfg.Transformer)
	if err != nil {
		return stream.ConsumerOptions{}, err
	}
	return stream.ConsumerOptions{Transformer: tr, Limits: cfg.Limits()}, nil
}

func open(ctx context.Context, target string, opts stream.ConsumerOptions) (*stream.Stream, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
		return wsstream.Dial(ctx, target, opts)
	case "http", "https":
		return httpstream.Fetch(ctx, nil, target, opts)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// slotPrinter serialises output lines from concurrently settling slots.
type slotPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *slotPrinter) print(line map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(line)
}

func printSlots(ctx context.Context, w io.Writer, head map[int]any) {
	p := &slotPrinter{enc: json.NewEncoder(w)}
	slots := make([]int, 0, len(head))
	for slot := range head {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	var wg sync.WaitGroup
	for _, slot := range slots {
		wg.Add(1)
		go func(slot int, v any) {
			defer wg.Done()
			printSlot(ctx, p, slot, v)
		}(slot, head[slot])
	}
	wg.Wait()
}

func printSlot(ctx context.Context, p *slotPrinter, slot int, v any) {
	it, ok := v.(async.Iterable)
	if !ok {
		settled, err := async.Settle(ctx, v)
		if err != nil {
			p.print(map[string]any{"slot": slot, "error": err.Error()})
			return
		}
		p.print(map[string]any{"slot": slot, "value": settled})
		return
	}
	for {
		item, more, err := it.Next(ctx)
		if err != nil {
			p.print(map[string]any{"slot": slot, "error": err.Error()})
			return
		}
		if !more {
			return
		}
		settled, err := async.Settle(ctx, item)
		if err != nil {
			p.print(map[string]any{"slot": slot, "error": err.Error()})
			return
		}
		p.print(map[string]any{"slot": slot, "item": settled})
	}
}
