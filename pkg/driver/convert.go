package driver

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Storage convention: name is a scalar string so the range index on it
// works, name_variation is a string list, every other property is a string
// list. The conversion helpers below enforce the convention in both
// directions.

func propertiesToStore(props types.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for key, values := range props {
		switch key {
		case "name":
			if len(values) > 0 {
				out[key] = values[0]
			}
		default:
			list := make([]any, len(values))
			for i, v := range values {
				list[i] = v
			}
			out[key] = list
		}
	}
	return out
}

func propertiesFromStore(raw map[string]any) types.Properties {
	props := types.Properties{}
	for key, value := range raw {
		switch key {
		case "create_time", "embedding", "id", "content":
			continue // structural fields, not merge-tracked properties
		}
		props[key] = storeValueToList(value)
	}
	return props
}

func storeValueToList(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return []string{fmt.Sprint(v)}
	}
}

func nodeFromDBNode(label string, dbNode dbtype.Node) *types.Node {
	node := &types.Node{
		Label:      label,
		Properties: propertiesFromStore(dbNode.Props),
	}
	if name, ok := dbNode.Props["name"].(string); ok {
		node.Name = name
	}
	node.NameVariation = storeValueToList(dbNode.Props["name_variation"])
	delete(node.Properties, "name_variation")
	return node
}

func systemNodeFromDBNode(label string, dbNode dbtype.Node) *types.SystemNode {
	node := &types.SystemNode{
		Label:      label,
		Properties: propertiesFromStore(dbNode.Props),
	}
	if id, ok := dbNode.Props["id"].(string); ok {
		node.ID = id
	}
	if content, ok := dbNode.Props["content"].(string); ok {
		node.Content = content
	}
	node.CreateTime = storeTime(dbNode.Props["create_time"])
	node.Embedding = storeFloats(dbNode.Props["embedding"])
	return node
}

func storeTime(value any) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v
	case dbtype.LocalDateTime:
		return v.Time()
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func storeFloats(value any) []float32 {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func floatsToStore(embedding []float32) []float64 {
	out := make([]float64, len(embedding))
	for i, f := range embedding {
		out[i] = float64(f)
	}
	return out
}

func recordNode(record *db.Record, key string) (dbtype.Node, bool) {
	raw, ok := record.Get(key)
	if !ok {
		return dbtype.Node{}, false
	}
	node, ok := raw.(dbtype.Node)
	return node, ok
}

func recordString(record *db.Record, key string) (string, bool) {
	raw, ok := record.Get(key)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
