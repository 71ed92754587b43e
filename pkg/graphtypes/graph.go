package graphtypes

import (
	"fmt"

	"github.com/orneryd/nornic-bolt-go/pkg/structure"
)

const (
	TagNode                byte = 0x4E
	TagRelationship        byte = 0x52
	TagUnboundRelationship byte = 0x72
	TagPath                byte = 0x50
)

func nodeTransformer(elementID bool) structure.Transformer {
	count := 3
	if elementID {
		count = 4
	}
	return structure.Transformer{
		Tag:        TagNode,
		FieldCount: count,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(*Node)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			n := v.(*Node)
			labels := make([]any, len(n.Labels))
			for i, l := range n.Labels {
				labels[i] = l
			}
			fields := []any{n.ID, labels, propsOrEmpty(n.Props)}
			if elementID {
				fields = append(fields, n.ElementID)
			}
			return &structure.Structure{Tag: TagNode, Fields: fields}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			n := &Node{
				ID:     s.Fields[0].(int64),
				Labels: toStringSlice(s.Fields[1]),
				Props:  s.Fields[2].(map[string]any),
			}
			if elementID {
				n.ElementID = s.Fields[3].(string)
			}
			return n, nil
		},
	}
}

func relationshipTransformer(elementID bool) structure.Transformer {
	count := 5
	if elementID {
		count = 8
	}
	return structure.Transformer{
		Tag:        TagRelationship,
		FieldCount: count,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(*Relationship)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			r := v.(*Relationship)
			fields := []any{r.ID, r.StartID, r.EndID, r.Type, propsOrEmpty(r.Props)}
			if elementID {
				fields = append(fields, r.ElementID, r.StartElementID, r.EndElementID)
			}
			return &structure.Structure{Tag: TagRelationship, Fields: fields}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			r := &Relationship{
				ID:      s.Fields[0].(int64),
				StartID: s.Fields[1].(int64),
				EndID:   s.Fields[2].(int64),
				Type:    s.Fields[3].(string),
				Props:   s.Fields[4].(map[string]any),
			}
			if elementID {
				r.ElementID = s.Fields[5].(string)
				r.StartElementID = s.Fields[6].(string)
				r.EndElementID = s.Fields[7].(string)
			}
			return r, nil
		},
	}
}

func unboundRelationshipTransformer(elementID bool) structure.Transformer {
	count := 3
	if elementID {
		count = 4
	}
	return structure.Transformer{
		Tag:        TagUnboundRelationship,
		FieldCount: count,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(*UnboundRelationship)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			u := v.(*UnboundRelationship)
			fields := []any{u.ID, u.Type, propsOrEmpty(u.Props)}
			if elementID {
				fields = append(fields, u.ElementID)
			}
			return &structure.Structure{Tag: TagUnboundRelationship, Fields: fields}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			u := &UnboundRelationship{
				ID:    s.Fields[0].(int64),
				Type:  s.Fields[1].(string),
				Props: s.Fields[2].(map[string]any),
			}
			if elementID {
				u.ElementID = s.Fields[3].(string)
			}
			return u, nil
		},
	}
}

// pathTransformer hydrates a Path from its nodes/rels/sequence fields
// (spec §4.5). Dehydration is intentionally unsupported: a Path is not
// a transportable value and the Open Question decision in DESIGN.md
// rejects it (and any other graph value) as a query parameter
// uniformly across versions via IsGraphValue, checked before packing
// ever reaches this transformer.
func pathTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagPath,
		FieldCount: 3,
		IsTypeInstance: func(v any) bool {
			return false
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			return nil, fmt.Errorf("graphtypes: Path is not a transportable value")
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			nodesRaw := s.Fields[0].([]any)
			relsRaw := s.Fields[1].([]any)
			seqRaw := s.Fields[2].([]any)

			nodes := make([]*Node, len(nodesRaw))
			for i, n := range nodesRaw {
				nodes[i] = n.(*Node)
			}
			unbound := make([]*UnboundRelationship, len(relsRaw))
			for i, r := range relsRaw {
				unbound[i] = r.(*UnboundRelationship)
			}
			seq := make([]int64, len(seqRaw))
			for i, v := range seqRaw {
				seq[i] = v.(int64)
			}

			p := &Path{Nodes: nodes}
			if len(nodes) == 0 {
				return p, nil
			}

			prev := nodes[0]
			for i := 0; i+1 < len(seq); i += 2 {
				relIdx := seq[i]
				nextIdx := seq[i+1]
				next := nodes[nextIdx]

				var rel *Relationship
				if relIdx > 0 {
					u := unbound[relIdx-1]
					rel = bindRelationship(u, prev.ID, next.ID)
				} else {
					u := unbound[-relIdx-1]
					rel = bindRelationship(u, next.ID, prev.ID)
				}

				p.Rels = append(p.Rels, rel)
				p.Segments = append(p.Segments, PathSegment{Prev: prev, Rel: rel, Next: next})
				prev = next
			}
			return p, nil
		},
	}
}

func bindRelationship(u *UnboundRelationship, startID, endID int64) *Relationship {
	return &Relationship{
		ID:             u.ID,
		StartID:        startID,
		EndID:          endID,
		Type:           u.Type,
		Props:          u.Props,
		ElementID:      u.ElementID,
		StartElementID: "",
		EndElementID:   "",
	}
}

// IsGraphValue reports whether v is a graph value (Node, Relationship,
// UnboundRelationship, Path, or PathSegment) that the Open Question
// decision in DESIGN.md forbids as an outgoing query parameter.
func IsGraphValue(v any) bool {
	switch v.(type) {
	case *Node, *Relationship, *UnboundRelationship, *Path, PathSegment, *PathSegment:
		return true
	default:
		return false
	}
}

func propsOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toStringSlice(v any) []string {
	list := v.([]any)
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.(string)
	}
	return out
}
