// Package extract calls the entity extraction service and normalizes its
// loosely shaped output into graph types. Extraction models return JSON of
// varying quality; parsing repairs what it can and drops individual
// malformed items rather than failing the batch.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

// Client extracts structured facts from one utterance. userName and aiName
// let the service resolve first and second person references to entities.
type Client interface {
	Extract(ctx context.Context, text, userName, aiName string) (*types.ExtractionResult, error)
}

// rawResult mirrors the JSON shape the extraction model is prompted for.
// Properties come back as arbitrary scalars or lists and are coerced here,
// once, at the boundary.
type rawResult struct {
	Nodes []struct {
		Label      string         `json:"label"`
		Name       string         `json:"name"`
		Properties map[string]any `json:"properties"`
	} `json:"nodes"`
	Relationships []struct {
		StartNode  string         `json:"start_node"`
		EndNode    string         `json:"end_node"`
		Type       string         `json:"type"`
		StartLabel string         `json:"start_node_label"`
		EndLabel   string         `json:"end_node_label"`
		Properties map[string]any `json:"properties"`
		Time       string         `json:"time"`
	} `json:"relationships"`
}

// ParseResult turns raw model output into an ExtractionResult. Markdown
// fences are stripped and broken JSON is repaired before unmarshalling.
// Nodes without a name and relationships without a type or endpoint are
// dropped item by item.
func ParseResult(content string) (*types.ExtractionResult, error) {
	content = stripFences(content)
	if content == "" {
		return &types.ExtractionResult{}, nil
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return nil, fmt.Errorf("unparseable extraction output: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("unparseable extraction output after repair: %w", err)
		}
	}

	out := &types.ExtractionResult{}
	for _, n := range raw.Nodes {
		if n.Name == "" || n.Label == "" {
			continue
		}
		out.Nodes = append(out.Nodes, &types.Node{
			Label:      n.Label,
			Name:       n.Name,
			Properties: types.Coerce(n.Properties),
		})
	}
	for _, r := range raw.Relationships {
		props := types.Coerce(r.Properties)
		if r.Time != "" {
			props.Merge(types.Properties{"time": {r.Time}})
		}
		out.Relationships = append(out.Relationships, &types.Relationship{
			Type:       r.Type,
			StartNode:  r.StartNode,
			EndNode:    r.EndNode,
			StartLabel: r.StartLabel,
			EndLabel:   r.EndLabel,
			Properties: props,
		})
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
