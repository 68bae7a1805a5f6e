package async

import "context"

// Settle resolves every deferred value reachable from v through maps and
// slices. Promises are replaced by their values and iterables by the slice
// of their items. The first failure stops the walk.
func Settle(ctx context.Context, v any) (any, error) {
	switch x := v.(type) {
	case Promise:
		resolved, err := x.Await(ctx)
		if err != nil {
			return nil, err
		}
		return Settle(ctx, resolved)
	case Iterable:
		out := make([]any, 0)
		for {
			item, ok, err := x.Next(ctx)
			if err != nil {
				return out, err
			}
			if !ok {
				return out, nil
			}
			settled, err := Settle(ctx, item)
			if err != nil {
				return out, err
			}
			out = append(out, settled)
		}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			settled, err := Settle(ctx, item)
			if err != nil {
				return nil, err
			}
			out[k] = settled
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			settled, err := Settle(ctx, item)
			if err != nil {
				return nil, err
			}
			out[i] = settled
		}
		return out, nil
	default:
		return v, nil
	}
}
