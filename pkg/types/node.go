package types

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrEmptyLabel    = errors.New("label cannot be empty")
	ErrSystemLabel   = errors.New("system labels are excluded from entity operations")
	ErrEmptyType     = errors.New("relationship type cannot be empty")
	ErrEmptyEndpoint = errors.New("relationship endpoints cannot be empty")
)

// System labels identify structural nodes of the temporal skeleton. Their
// identity key is a timestamp, not a name, and they never participate in
// name-variation merging or entity lookups.
const (
	LabelScene    = "Scene"
	LabelMessage  = "Message"
	LabelTopic    = "Topic"
	LabelDocument = "Document"
)

// SystemLabels lists every structural label.
var SystemLabels = []string{LabelScene, LabelMessage, LabelTopic, LabelDocument}

// IsSystemLabel reports whether label names a structural node type.
func IsSystemLabel(label string) bool {
	switch label {
	case LabelScene, LabelMessage, LabelTopic, LabelDocument:
		return true
	}
	return false
}

// Node is a graph entity identified by (Label, Name). Properties follow the
// multi-valued list convention; NameVariation holds alternate surface names
// that resolve to this node.
type Node struct {
	Label         string     `json:"label"`
	Name          string     `json:"name"`
	Properties    Properties `json:"properties,omitempty"`
	NameVariation []string   `json:"name_variation,omitempty"`
}

// NodeKey is the comparable primary key of a Node.
type NodeKey struct {
	Label string
	Name  string
}

// Key returns the node's primary key.
func (n *Node) Key() NodeKey {
	return NodeKey{Label: n.Label, Name: n.Name}
}

func (k NodeKey) String() string {
	return k.Label + ":" + k.Name
}

// Validate checks the fields required for any entity-store operation.
func (n *Node) Validate() error {
	if n.Label == "" {
		return ErrEmptyLabel
	}
	if n.Name == "" {
		return ErrEmptyName
	}
	if IsSystemLabel(n.Label) {
		return fmt.Errorf("%w: %s", ErrSystemLabel, n.Label)
	}
	return nil
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Properties = n.Properties.Clone()
	out.NameVariation = append([]string(nil), n.NameVariation...)
	return &out
}

// KnownAs reports whether name matches the node's name or any variation.
func (n *Node) KnownAs(name string) bool {
	if n.Name == name {
		return true
	}
	return containsString(n.NameVariation, name)
}

// SystemNode is a structural node (Scene, Message, Topic, Document). Its
// identity is the CreateTime-derived ID rather than a semantic name, and it
// may carry an embedding for vector recall.
type SystemNode struct {
	Label      string     `json:"label"`
	ID         string     `json:"id"`
	Content    string     `json:"content,omitempty"`
	CreateTime time.Time  `json:"create_time"`
	Embedding  []float32  `json:"embedding,omitempty"`
	Properties Properties `json:"properties,omitempty"`

	// Score is populated by similarity recall, zero otherwise.
	Score float64 `json:"score,omitempty"`
}

// Validate checks the fields required to persist a system node.
func (s *SystemNode) Validate() error {
	if !IsSystemLabel(s.Label) {
		return fmt.Errorf("%w: %q is not a system label", ErrEmptyLabel, s.Label)
	}
	if s.ID == "" {
		return ErrEmptyName
	}
	return nil
}
