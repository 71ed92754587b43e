package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point2D struct {
	SRID int64
	X, Y float64
}

func point2DTransformer() Transformer {
	return Transformer{
		Tag:        0x58,
		FieldCount: 3,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(point2D)
			return ok
		},
		ToStruct: func(v any) (*Structure, error) {
			p := v.(point2D)
			return &Structure{Tag: 0x58, Fields: []any{p.SRID, p.X, p.Y}}, nil
		},
		FromStruct: func(s *Structure) (any, error) {
			return point2D{
				SRID: s.Fields[0].(int64),
				X:    s.Fields[1].(float64),
				Y:    s.Fields[2].(float64),
			}, nil
		},
	}
}

func TestRegistryDehydrateHydrateRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(point2DTransformer())

	p := point2D{SRID: 7203, X: 1.0, Y: 2.0}
	s, ok, err := reg.Dehydrate(p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0x58), s.Tag)

	got, err := reg.Hydrate(s)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestHydrateRejectsFieldCountMismatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(point2DTransformer())

	bad := &Structure{Tag: 0x58, Fields: []any{int64(1), 2.0}}
	_, err := reg.Hydrate(bad)
	require.Error(t, err)
	var fcErr *ErrFieldCount
	require.ErrorAs(t, err, &fcErr)
	assert.Equal(t, 3, fcErr.Expected)
	assert.Equal(t, 2, fcErr.Got)
}

func TestHydrateUnknownTagErrors(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Hydrate(&Structure{Tag: 0x99})
	require.Error(t, err)
}

func TestExtendWithOverridesSelectively(t *testing.T) {
	base := point2DTransformer()
	called := false
	ext := base.ExtendWith(Transformer{
		FromStruct: func(s *Structure) (any, error) {
			called = true
			return base.FromStruct(s)
		},
	})

	assert.Equal(t, base.Tag, ext.Tag)
	assert.NotNil(t, ext.IsTypeInstance)

	_, err := ext.FromStruct(&Structure{Tag: 0x58, Fields: []any{int64(1), 1.0, 2.0}})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCloneIsIndependent(t *testing.T) {
	reg := NewRegistry()
	reg.Register(point2DTransformer())

	clone := reg.Clone()
	clone.Register(Transformer{Tag: 0x59, FieldCount: 4,
		IsTypeInstance: func(v any) bool { return false },
		FromStruct:     func(s *Structure) (any, error) { return nil, nil },
	})

	_, ok := reg.Transformer(0x59)
	assert.False(t, ok)
	_, ok = clone.Transformer(0x59)
	assert.True(t, ok)
}
