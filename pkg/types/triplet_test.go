package types

import "testing"

func TestTripletsAddNodeDeduplicates(t *testing.T) {
	tr := NewTriplets()
	tr.AddNode(&Node{Label: "Person", Name: "Alice", Properties: Properties{"likes": {"tea"}}})
	tr.AddNode(&Node{Label: "Person", Name: "Alice", Properties: Properties{"likes": {"coffee"}}})

	if len(tr.Nodes) != 1 {
		t.Fatalf("expected 1 node after duplicate add, got %d", len(tr.Nodes))
	}
	want := Properties{"likes": {"tea", "coffee"}}
	if !tr.Nodes[0].Properties.Equal(want) {
		t.Errorf("properties = %v, want %v", tr.Nodes[0].Properties, want)
	}
}

func TestTripletsAddNodeDistinctLabels(t *testing.T) {
	tr := NewTriplets()
	tr.AddNode(&Node{Label: "Person", Name: "Mercury"})
	tr.AddNode(&Node{Label: "Planet", Name: "Mercury"})

	if len(tr.Nodes) != 2 {
		t.Errorf("same name under different labels must stay distinct, got %d nodes", len(tr.Nodes))
	}
}

func TestTripletsAddRelationshipDeduplicates(t *testing.T) {
	rel := func(props Properties) *Relationship {
		return &Relationship{
			Type: "KNOWS", StartNode: "Alice", EndNode: "Bob",
			StartLabel: "Person", EndLabel: "Person", Properties: props,
		}
	}

	tr := NewTriplets()
	tr.AddRelationship(rel(Properties{"since": {"2020"}}))
	tr.AddRelationship(rel(Properties{"since": {"2021"}}))

	if len(tr.Relationships) != 1 {
		t.Fatalf("expected 1 relationship after duplicate add, got %d", len(tr.Relationships))
	}
	want := Properties{"since": {"2020", "2021"}}
	if !tr.Relationships[0].Properties.Equal(want) {
		t.Errorf("properties = %v, want %v", tr.Relationships[0].Properties, want)
	}
}

func TestTripletsDirectionMatters(t *testing.T) {
	tr := NewTriplets()
	tr.AddRelationship(&Relationship{Type: "KNOWS", StartNode: "Alice", EndNode: "Bob", StartLabel: "Person", EndLabel: "Person"})
	tr.AddRelationship(&Relationship{Type: "KNOWS", StartNode: "Bob", EndNode: "Alice", StartLabel: "Person", EndLabel: "Person"})

	if len(tr.Relationships) != 2 {
		t.Errorf("reversed edges are distinct, got %d relationships", len(tr.Relationships))
	}
}

func TestTripletsUnion(t *testing.T) {
	a := NewTriplets()
	a.AddNode(&Node{Label: "Person", Name: "Alice"})
	b := NewTriplets()
	b.AddNode(&Node{Label: "Person", Name: "Alice"})
	b.AddNode(&Node{Label: "Person", Name: "Bob"})

	a.Union(b)
	if len(a.Nodes) != 2 {
		t.Errorf("union should hold 2 distinct nodes, got %d", len(a.Nodes))
	}
}

func TestTripletsUnionCopiesEntries(t *testing.T) {
	src := NewTriplets()
	src.AddNode(&Node{Label: "Person", Name: "Alice", Properties: Properties{"hobby": {"chess"}}})
	src.AddRelationship(&Relationship{
		Type: "KNOWS", StartNode: "Alice", EndNode: "Bob",
		StartLabel: "Person", EndLabel: "Person",
		Properties: Properties{"since": {"2020"}},
	})

	dst := NewTriplets()
	dst.Union(src)

	later := NewTriplets()
	later.AddNode(&Node{Label: "Person", Name: "Alice", Properties: Properties{"hobby": {"hiking"}}})
	later.AddRelationship(&Relationship{
		Type: "KNOWS", StartNode: "Alice", EndNode: "Bob",
		StartLabel: "Person", EndLabel: "Person",
		Properties: Properties{"since": {"2021"}},
	})
	dst.Union(later)

	wantNode := Properties{"hobby": {"chess"}}
	if !src.Nodes[0].Properties.Equal(wantNode) {
		t.Errorf("source node mutated through union destination: %v, want %v",
			src.Nodes[0].Properties, wantNode)
	}
	wantRel := Properties{"since": {"2020"}}
	if !src.Relationships[0].Properties.Equal(wantRel) {
		t.Errorf("source relationship mutated through union destination: %v, want %v",
			src.Relationships[0].Properties, wantRel)
	}

	wantMerged := Properties{"hobby": {"chess", "hiking"}}
	if !dst.Nodes[0].Properties.Equal(wantMerged) {
		t.Errorf("destination missed the merge: %v, want %v",
			dst.Nodes[0].Properties, wantMerged)
	}
}

func TestExtractionResultDropsMalformed(t *testing.T) {
	res := &ExtractionResult{
		Nodes: []*Node{
			{Label: "Person", Name: "Alice"},
			{Label: "", Name: "ghost"},
		},
		Relationships: []*Relationship{
			{Type: "KNOWS", StartNode: "Alice", EndNode: "Bob", StartLabel: "Person", EndLabel: "Person"},
			{Type: "", StartNode: "Alice", EndNode: "Bob", StartLabel: "Person", EndLabel: "Person"},
			{Type: "KNOWS", StartNode: "", EndNode: "Bob", StartLabel: "Person", EndLabel: "Person"},
		},
	}

	tr, dropped := res.Triplets()
	if len(tr.Nodes) != 1 {
		t.Errorf("expected 1 valid node, got %d", len(tr.Nodes))
	}
	if len(tr.Relationships) != 1 {
		t.Errorf("expected 1 valid relationship, got %d", len(tr.Relationships))
	}
	if len(dropped) != 2 {
		t.Errorf("expected 2 dropped relationships, got %d", len(dropped))
	}
}

func TestFactSelfRelated(t *testing.T) {
	tests := []struct {
		name string
		fact Fact
		want bool
	}{
		{"distinct subject and object", Fact{Subject: []string{"Alice", "Person"}, Object: []string{"Bob", "Person"}}, false},
		{"same name", Fact{Subject: []string{"Alice", "Person"}, Object: []string{"Alice", "Person"}}, true},
		{"case-insensitive match", Fact{Subject: []string{"Alice"}, Object: []string{"alice"}}, true},
		{"missing object", Fact{Subject: []string{"Alice"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fact.SelfRelated(); got != tt.want {
				t.Errorf("SelfRelated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNodeKnownAs(t *testing.T) {
	n := &Node{Label: "Person", Name: "Alice", NameVariation: []string{"Ally", "Al"}}
	if !n.KnownAs("Alice") || !n.KnownAs("Ally") {
		t.Error("KnownAs should match name and variations")
	}
	if n.KnownAs("Bob") {
		t.Error("KnownAs matched an unrelated name")
	}
}

func TestSystemLabelValidation(t *testing.T) {
	n := &Node{Label: LabelMessage, Name: "20240101T000000"}
	if err := n.Validate(); err == nil {
		t.Error("entity validation must reject system labels")
	}
}
