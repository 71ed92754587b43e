package graphtypes

import "github.com/orneryd/nornic-bolt-go/pkg/structure"

const (
	TagPoint2D byte = 0x58
	TagPoint3D byte = 0x59
)

func point2DTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagPoint2D,
		FieldCount: 3,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(Point2D)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			p := v.(Point2D)
			return &structure.Structure{Tag: TagPoint2D, Fields: []any{p.SRID, p.X, p.Y}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return Point2D{
				SRID: s.Fields[0].(int64),
				X:    s.Fields[1].(float64),
				Y:    s.Fields[2].(float64),
			}, nil
		},
	}
}

func point3DTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagPoint3D,
		FieldCount: 4,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(Point3D)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			p := v.(Point3D)
			return &structure.Structure{Tag: TagPoint3D, Fields: []any{p.SRID, p.X, p.Y, p.Z}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return Point3D{
				SRID: s.Fields[0].(int64),
				X:    s.Fields[1].(float64),
				Y:    s.Fields[2].(float64),
				Z:    s.Fields[3].(float64),
			}, nil
		},
	}
}
