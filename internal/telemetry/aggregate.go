package telemetry

import "strings"

// Reducer combines the Content values collected from an Aggregate pattern
// match into a single summary Content (e.g. summing matchedCount across
// all rules/*).
type Reducer func([]Content) Content

// SumReducer adds up every Scalar/ScalarWithUnit value collected, ignoring
// (skipping) any Dict entries since they have no single numeric value.
func SumReducer(unit string) Reducer {
	return func(vals []Content) Content {
		var total float64
		for _, v := range vals {
			switch x := v.(type) {
			case Scalar:
				total += float64(x)
			case ScalarWithUnit:
				total += x.Value
			}
		}
		if unit == "" {
			return Scalar(total)
		}
		return ScalarWithUnit{Value: total, Unit: unit}
	}
}

// Aggregate resolves pattern (a slash-separated path where any segment may
// be "*", matching any immediate child name at that depth) and
// reduces every matched leaf's Content with reducer.
func (t *Tree) Aggregate(pattern string, reducer Reducer) (Content, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	segs := strings.Split(strings.Trim(pattern, "/"), "/")
	matches := t.collect(t.root, segs)
	if len(matches) == 0 {
		return nil, false
	}

	vals := make([]Content, 0, len(matches))
	for _, n := range matches {
		vals = append(vals, t.readNode(n))
	}
	return reducer(vals), true
}

func (t *Tree) collect(n *node, segs []string) []*node {
	if len(segs) == 0 {
		return []*node{n}
	}

	head, rest := segs[0], segs[1:]
	var out []*node
	if head == "*" {
		for _, child := range n.children {
			out = append(out, t.collect(child, rest)...)
		}
		return out
	}

	child, ok := n.children[head]
	if !ok {
		return nil
	}
	return t.collect(child, rest)
}
