package types

import "strings"

// Fact is one subject-predicate-object unit produced by the extraction
// service. Subject and Object are [name, label] pairs, Predicate is a
// [surface form, relationship type] pair; any slot past the name may be
// empty when the extractor could not commit to it.
type Fact struct {
	Subject   []string `json:"subject"`
	Predicate []string `json:"predicate"`
	Object    []string `json:"object"`
	Time      string   `json:"time,omitempty"`
}

// SubjectName returns the subject surface name, or "".
func (f *Fact) SubjectName() string { return factSlot(f.Subject, 0) }

// SubjectLabel returns the subject label, or "".
func (f *Fact) SubjectLabel() string { return factSlot(f.Subject, 1) }

// ObjectName returns the object surface name, or "".
func (f *Fact) ObjectName() string { return factSlot(f.Object, 0) }

// ObjectLabel returns the object label, or "".
func (f *Fact) ObjectLabel() string { return factSlot(f.Object, 1) }

// RelationType returns the predicate's relationship type, or "".
func (f *Fact) RelationType() string { return factSlot(f.Predicate, 1) }

// SelfRelated reports whether subject and object name the same entity.
// A fact cannot self-relate as two distinct nodes.
func (f *Fact) SelfRelated() bool {
	s, o := f.SubjectName(), f.ObjectName()
	return o == "" || strings.EqualFold(s, o)
}

// Validate rejects facts without a usable subject.
func (f *Fact) Validate() error {
	if f.SubjectName() == "" {
		return ErrEmptyName
	}
	return nil
}

func factSlot(slot []string, i int) string {
	if i < len(slot) {
		return strings.TrimSpace(slot[i])
	}
	return ""
}

// ExtractionResult is the structured output of the extraction service for
// one utterance. Either list may be empty, and individual relationships may
// be malformed; the ingestion pipeline drops those one at a time.
type ExtractionResult struct {
	Nodes         []*Node         `json:"nodes"`
	Relationships []*Relationship `json:"relationships"`
}

// Triplets converts the result into a deduplicated collection, dropping
// relationships that fail validation. Dropped keys are returned so the
// caller can log them.
func (e *ExtractionResult) Triplets() (*Triplets, []string) {
	t := NewTriplets()
	var dropped []string
	for _, n := range e.Nodes {
		if n == nil || n.Label == "" || n.Name == "" {
			continue
		}
		t.AddNode(n)
	}
	for _, r := range e.Relationships {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			dropped = append(dropped, r.Key().String())
			continue
		}
		t.AddRelationship(r)
	}
	return t, dropped
}
