package types

// Relationship is a directed, typed edge between two nodes. The primary key
// is the full (Type, StartNode, EndNode, StartLabel, EndLabel) tuple;
// direction matters and there is no implicit symmetric lookup.
type Relationship struct {
	Type       string     `json:"type"`
	StartNode  string     `json:"start_node"`
	EndNode    string     `json:"end_node"`
	StartLabel string     `json:"start_node_label"`
	EndLabel   string     `json:"end_node_label"`
	Properties Properties `json:"properties,omitempty"`
}

// RelationshipKey is the comparable primary key of a Relationship.
type RelationshipKey struct {
	Type       string
	StartNode  string
	EndNode    string
	StartLabel string
	EndLabel   string
}

// Key returns the relationship's primary key.
func (r *Relationship) Key() RelationshipKey {
	return RelationshipKey{
		Type:       r.Type,
		StartNode:  r.StartNode,
		EndNode:    r.EndNode,
		StartLabel: r.StartLabel,
		EndLabel:   r.EndLabel,
	}
}

func (k RelationshipKey) String() string {
	return k.StartLabel + ":" + k.StartNode + "-[" + k.Type + "]->" + k.EndLabel + ":" + k.EndNode
}

// Validate checks the fields required for any entity-store operation.
func (r *Relationship) Validate() error {
	if r.Type == "" {
		return ErrEmptyType
	}
	if r.StartNode == "" || r.EndNode == "" {
		return ErrEmptyEndpoint
	}
	if r.StartLabel == "" || r.EndLabel == "" {
		return ErrEmptyLabel
	}
	return nil
}

// Start returns the key of the start node.
func (r *Relationship) Start() NodeKey {
	return NodeKey{Label: r.StartLabel, Name: r.StartNode}
}

// End returns the key of the end node.
func (r *Relationship) End() NodeKey {
	return NodeKey{Label: r.EndLabel, Name: r.EndNode}
}

// Touches reports whether key is either endpoint of the relationship.
func (r *Relationship) Touches(key NodeKey) bool {
	return r.Start() == key || r.End() == key
}

// Clone returns a deep copy.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	out := *r
	out.Properties = r.Properties.Clone()
	return &out
}

// LabelPair identifies an ordered (start label, end label) combination for
// the schema cache's relationship-type table.
type LabelPair struct {
	Start string
	End   string
}

func (p LabelPair) String() string {
	return p.Start + "->" + p.End
}
