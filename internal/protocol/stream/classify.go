package stream

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/danmuck/batchstream/internal/async"
	"github.com/danmuck/batchstream/internal/protocol"
)

type deferredChild struct {
	key   any
	value any
}

// classify encodes v, registering every deferred value found at v itself or
// among its direct children. It never awaits.
func (e *emitter) classify(v any, path []any) (protocol.Value, error) {
	if async.IsDeferred(v) {
		def := e.encodeAsync(nil, v, path)
		data, err := e.opts.Transformer.Serialize(protocol.Placeholder)
		if err != nil {
			return protocol.Value{}, err
		}
		return protocol.Value{Data: data, Defs: []protocol.ChunkDefinition{def}}, nil
	}

	var (
		data     any
		children []deferredChild
	)
	switch x := genericContainer(v).(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(map[string]any, len(x))
		for _, k := range keys {
			item := x[k]
			if async.IsDeferred(item) {
				obj[k] = protocol.Placeholder
				children = append(children, deferredChild{key: k, value: item})
				continue
			}
			if containsDeferred(item) {
				return protocol.Value{}, fmt.Errorf("%w: %v", ErrNestedDeferred, childPath(path, k))
			}
			obj[k] = item
		}
		data = obj
	case []any:
		arr := make([]any, len(x))
		for i, item := range x {
			if async.IsDeferred(item) {
				arr[i] = protocol.Placeholder
				children = append(children, deferredChild{key: i, value: item})
				continue
			}
			if containsDeferred(item) {
				return protocol.Value{}, fmt.Errorf("%w: %v", ErrNestedDeferred, childPath(path, i))
			}
			arr[i] = item
		}
		data = arr
	default:
		if containsDeferred(v) {
			return protocol.Value{}, fmt.Errorf("%w: %v holds a %T", ErrNestedDeferred, clonePath(path), v)
		}
		data = v
	}

	serialized, err := e.opts.Transformer.Serialize(data)
	if err != nil {
		return protocol.Value{}, err
	}
	out := protocol.Value{Data: serialized}
	for _, child := range children {
		out.Defs = append(out.Defs, e.encodeAsync(child.key, child.value, childPath(path, child.key)))
	}
	return out, nil
}

func (e *emitter) encodeAsync(key any, v any, path []any) protocol.ChunkDefinition {
	switch x := v.(type) {
	case async.Promise:
		return protocol.ChunkDefinition{Key: key, Kind: protocol.KindPromise, Index: e.registerPromise(x, path)}
	case async.Iterable:
		return protocol.ChunkDefinition{Key: key, Kind: protocol.KindIterable, Index: e.registerIterable(x, path)}
	}
	panic(fmt.Sprintf("stream: encodeAsync called with %T", v))
}

// genericContainer rewrites a typed slice, array or string-keyed map that
// holds deferred values as []any or map[string]any so its children can be
// registered. Anything else is returned unchanged.
func genericContainer(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 || !containsDeferred(v) {
			return v
		}
		arr := make([]any, rv.Len())
		for i := range arr {
			arr[i] = rv.Index(i).Interface()
		}
		return arr
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || !containsDeferred(v) {
			return v
		}
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return obj
	}
	return v
}

// containsDeferred walks v the way encoding/json would and reports whether
// any promise or iterable is reachable.
func containsDeferred(v any) bool {
	return deferredIn(reflect.ValueOf(v), make(map[uintptr]struct{}))
}

func deferredIn(rv reflect.Value, seen map[uintptr]struct{}) bool {
	if !rv.IsValid() {
		return false
	}
	if rv.CanInterface() && async.IsDeferred(rv.Interface()) {
		return true
	}
	switch rv.Kind() {
	case reflect.Interface:
		return deferredIn(rv.Elem(), seen)
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return false
		}
		if _, ok := seen[rv.Pointer()]; ok {
			return false
		}
		seen[rv.Pointer()] = struct{}{}
		if rv.Kind() == reflect.Pointer {
			return deferredIn(rv.Elem(), seen)
		}
		iter := rv.MapRange()
		for iter.Next() {
			if deferredIn(iter.Value(), seen) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if deferredIn(rv.Index(i), seen) {
				return true
			}
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if deferredIn(rv.Field(i), seen) {
				return true
			}
		}
	}
	return false
}
