package nextdata

import (
	"fmt"
	"sort"
)

// Graph indexes the objects of an apollo cache by their "Type:id" key.
// objects refer to each other with {"__ref": "Type:id"}, the graph is
// built once and only read afterwards.
type Graph struct {
	objects map[string]map[string]any
}

func NewGraph(state map[string]any) Graph {
	objects := make(map[string]map[string]any, len(state))
	for key, value := range state {
		obj, ok := value.(map[string]any)
		if !ok {
			continue
		}
		objects[key] = obj
	}
	graph := Graph{objects: objects}

	// objects that carry their own type and id are reachable under that
	// pair too, unless something already claimed the key.
	for _, key := range graph.Keys() {
		obj := objects[key]
		typename, ok := obj["__typename"].(string)
		if !ok {
			continue
		}
		id, ok := scalarString(obj["id"])
		if !ok {
			continue
		}
		typed := typename + ":" + id
		if _, exists := objects[typed]; !exists {
			objects[typed] = obj
		}
	}
	return graph
}

func (g Graph) Len() int {
	return len(g.objects)
}

func (g Graph) Lookup(key string) (map[string]any, bool) {
	obj, ok := g.objects[key]
	return obj, ok
}

// Keys returns the keys of the graph in sorted order.
func (g Graph) Keys() []string {
	keys := make([]string, 0, len(g.objects))
	for k := range g.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Deref follows a reference, an inline object is returned as is.
func (g Graph) Deref(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	ref, isRef := obj["__ref"]
	if !isRef {
		return obj, true
	}
	key, ok := ref.(string)
	if !ok {
		return nil, false
	}
	return g.Lookup(key)
}

func scalarString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, value != ""
	case fmt.Stringer:
		s := value.String()
		return s, s != ""
	}
	return "", false
}
