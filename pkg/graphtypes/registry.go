package graphtypes

import "github.com/orneryd/nornic-bolt-go/pkg/structure"

// Options controls which field shapes and tags the registry's
// transformers use, selected per negotiated Bolt version (spec §4.5).
type Options struct {
	// ElementID enables the element_id fields added to Node,
	// Relationship, and UnboundRelationship from Bolt 5.0.
	ElementID bool
	// UTCPatch selects the UTC-patched DateTime tags (0x49/0x69)
	// instead of the legacy local-second tags (0x46/0x66). Mandatory
	// from Bolt 5.0; negotiable via HELLO's patch_bolt from 4.4.
	UTCPatch bool
	// WarnAmbiguousWallClock, if non-nil, is invoked whenever hydrating
	// a legacy (non-UTC-patched) DateTimeZoneID resolves a local
	// wall-clock second that fell in a DST-ambiguous or -nonexistent
	// window (spec §4.5's "driver MUST emit a warning").
	WarnAmbiguousWallClock func(zoneID string, localSecond int64)
}

// NewRegistry builds a structure.Registry with every graphtypes
// transformer registered for the given version characteristics.
// protocol.New calls it for every negotiated version, V1 included, so
// V1 connections carry the spatial and temporal transformers too.
func NewRegistry(opts Options) *structure.Registry {
	reg := structure.NewRegistry()
	reg.Register(point2DTransformer())
	reg.Register(point3DTransformer())
	reg.Register(durationTransformer())
	reg.Register(dateTransformer())
	reg.Register(localTimeTransformer())
	reg.Register(offsetTimeTransformer())
	reg.Register(localDateTimeTransformer())
	reg.Register(dateTimeOffsetTransformer(opts.UTCPatch))
	reg.Register(dateTimeZoneIDTransformer(opts.UTCPatch, opts.WarnAmbiguousWallClock))
	reg.Register(nodeTransformer(opts.ElementID))
	reg.Register(relationshipTransformer(opts.ElementID))
	reg.Register(unboundRelationshipTransformer(opts.ElementID))
	reg.Register(pathTransformer())
	return reg
}
