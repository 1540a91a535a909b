package types

// Triplets is an unordered collection of nodes and relationships extracted
// from one unit of text. Membership is decided purely by primary key:
// adding a node whose (label, name) is already present merges properties
// into the existing entry instead of appending a duplicate.
type Triplets struct {
	Nodes         []*Node         `json:"nodes"`
	Relationships []*Relationship `json:"relationships"`
}

// NewTriplets returns an empty collection.
func NewTriplets() *Triplets {
	return &Triplets{}
}

// AddNode inserts n or merges its properties and name variations into the
// existing entry with the same key.
func (t *Triplets) AddNode(n *Node) {
	if n == nil {
		return
	}
	for _, existing := range t.Nodes {
		if existing.Key() == n.Key() {
			if existing.Properties == nil {
				existing.Properties = Properties{}
			}
			existing.Properties.Merge(n.Properties)
			for _, v := range n.NameVariation {
				if !containsString(existing.NameVariation, v) {
					existing.NameVariation = append(existing.NameVariation, v)
				}
			}
			return
		}
	}
	t.Nodes = append(t.Nodes, n)
}

// AddRelationship inserts r or merges its properties into the existing
// entry with the same key.
func (t *Triplets) AddRelationship(r *Relationship) {
	if r == nil {
		return
	}
	for _, existing := range t.Relationships {
		if existing.Key() == r.Key() {
			if existing.Properties == nil {
				existing.Properties = Properties{}
			}
			existing.Properties.Merge(r.Properties)
			return
		}
	}
	t.Relationships = append(t.Relationships, r)
}

// Union merges every node and relationship of other into t. Entries are
// copied on insert, so later merges into t never reach back into other.
func (t *Triplets) Union(other *Triplets) {
	if other == nil {
		return
	}
	for _, n := range other.Nodes {
		t.AddNode(n.Clone())
	}
	for _, r := range other.Relationships {
		t.AddRelationship(r.Clone())
	}
}

// ContainsNode reports whether a node with the given key is present.
func (t *Triplets) ContainsNode(key NodeKey) bool {
	return t.FindNode(key) != nil
}

// FindNode returns the node with the given key, or nil.
func (t *Triplets) FindNode(key NodeKey) *Node {
	for _, n := range t.Nodes {
		if n.Key() == key {
			return n
		}
	}
	return nil
}

// FindRelationship returns the relationship with the given key, or nil.
func (t *Triplets) FindRelationship(key RelationshipKey) *Relationship {
	for _, r := range t.Relationships {
		if r.Key() == key {
			return r
		}
	}
	return nil
}

// Empty reports whether the collection holds nothing.
func (t *Triplets) Empty() bool {
	return t == nil || (len(t.Nodes) == 0 && len(t.Relationships) == 0)
}

// Clone returns a deep copy.
func (t *Triplets) Clone() *Triplets {
	if t == nil {
		return nil
	}
	out := NewTriplets()
	for _, n := range t.Nodes {
		cp := *n
		cp.Properties = n.Properties.Clone()
		cp.NameVariation = append([]string(nil), n.NameVariation...)
		out.Nodes = append(out.Nodes, &cp)
	}
	for _, r := range t.Relationships {
		cp := *r
		cp.Properties = r.Properties.Clone()
		out.Relationships = append(out.Relationships, &cp)
	}
	return out
}
