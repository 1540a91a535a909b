package types

// Properties maps a property key to an ordered, deduplicated list of string
// values. A property is never a scalar that gets silently overwritten:
// merging appends values that are not already present, preserving insertion
// order. Scalar inputs are coerced to singleton lists once, at the ingestion
// boundary (see Coerce), never inside merge logic.
type Properties map[string][]string

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, vs := range p {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

// Merge unions incoming into p key-wise. For every incoming key the value
// lists are set-unioned; existing order is preserved and new values are
// appended in their incoming order. The "name" key is identity, not data,
// and is never modified once set. Merge reports whether anything changed.
func (p Properties) Merge(incoming Properties) bool {
	changed := false
	for k, vs := range incoming {
		if k == "name" {
			if _, ok := p[k]; ok {
				continue
			}
		}
		existing := p[k]
		for _, v := range vs {
			if !containsString(existing, v) {
				existing = append(existing, v)
				changed = true
			}
		}
		p[k] = existing
	}
	return changed
}

// Diff returns the subset of incoming that is not already present in p,
// key by key. It is used to record the property delta a single turn
// introduced, as opposed to the merged final state.
func (p Properties) Diff(incoming Properties) Properties {
	delta := Properties{}
	for k, vs := range incoming {
		existing := p[k]
		var fresh []string
		for _, v := range vs {
			if !containsString(existing, v) {
				fresh = append(fresh, v)
			}
		}
		if len(fresh) > 0 {
			delta[k] = fresh
		}
	}
	return delta
}

// Equal reports key-wise set equality, ignoring value order.
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for k, vs := range p {
		ovs, ok := other[k]
		if !ok || len(vs) != len(ovs) {
			return false
		}
		for _, v := range vs {
			if !containsString(ovs, v) {
				return false
			}
		}
	}
	return true
}

// Coerce converts loosely shaped extractor output into Properties.
// Scalars become singleton lists, lists keep their order with duplicates
// dropped, and non-string values are stringified by the caller beforehand.
// Nil input yields an empty, non-nil map so callers can merge into it.
func Coerce(raw map[string]any) Properties {
	out := Properties{}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = []string{val}
		case []string:
			out[k] = dedupeStrings(val)
		case []any:
			var vs []string
			for _, item := range val {
				if s, ok := item.(string); ok && !containsString(vs, s) {
					vs = append(vs, s)
				}
			}
			if len(vs) > 0 {
				out[k] = vs
			}
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !containsString(out, s) {
			out = append(out, s)
		}
	}
	return out
}
