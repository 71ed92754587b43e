package graphtypes

import (
	"time"

	"github.com/orneryd/nornic-bolt-go/pkg/structure"
)

const (
	TagDuration  byte = 0x45
	TagDate      byte = 0x44
	TagLocalTime byte = 0x74
	TagTime      byte = 0x54

	TagLocalDateTime byte = 0x64

	// DateTime with offset: legacy (local-second) vs UTC-patched.
	TagDateTimeOffsetLegacy byte = 0x46
	TagDateTimeOffsetUTC    byte = 0x49

	// DateTime with zone id: legacy (local-second) vs UTC-patched.
	TagDateTimeZoneIDLegacy byte = 0x66
	TagDateTimeZoneIDUTC    byte = 0x69
)

func durationTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagDuration,
		FieldCount: 4,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(Duration)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			d := v.(Duration)
			return &structure.Structure{Tag: TagDuration, Fields: []any{d.Months, d.Days, d.Seconds, int64(d.Nanos)}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return Duration{
				Months:  s.Fields[0].(int64),
				Days:    s.Fields[1].(int64),
				Seconds: s.Fields[2].(int64),
				Nanos:   int32(s.Fields[3].(int64)),
			}, nil
		},
	}
}

func dateTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagDate,
		FieldCount: 1,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(Date)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			return &structure.Structure{Tag: TagDate, Fields: []any{v.(Date).EpochDay}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return Date{EpochDay: s.Fields[0].(int64)}, nil
		},
	}
}

func localTimeTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagLocalTime,
		FieldCount: 1,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(LocalTime)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			return &structure.Structure{Tag: TagLocalTime, Fields: []any{v.(LocalTime).NanoOfDay}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return LocalTime{NanoOfDay: s.Fields[0].(int64)}, nil
		},
	}
}

func offsetTimeTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagTime,
		FieldCount: 2,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(OffsetTime)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			t := v.(OffsetTime)
			return &structure.Structure{Tag: TagTime, Fields: []any{t.NanoOfDay, int64(t.OffsetSeconds)}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return OffsetTime{
				NanoOfDay:     s.Fields[0].(int64),
				OffsetSeconds: int32(s.Fields[1].(int64)),
			}, nil
		},
	}
}

func localDateTimeTransformer() structure.Transformer {
	return structure.Transformer{
		Tag:        TagLocalDateTime,
		FieldCount: 2,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(LocalDateTime)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			d := v.(LocalDateTime)
			return &structure.Structure{Tag: TagLocalDateTime, Fields: []any{d.EpochSecond, int64(d.Nano)}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			return LocalDateTime{
				EpochSecond: s.Fields[0].(int64),
				Nano:        int32(s.Fields[1].(int64)),
			}, nil
		},
	}
}

// dateTimeOffsetTransformer builds the transformer for DateTimeOffset
// under either the legacy local-second tag or the UTC-patched tag,
// selected by utcPatch.
func dateTimeOffsetTransformer(utcPatch bool) structure.Transformer {
	tag := TagDateTimeOffsetLegacy
	if utcPatch {
		tag = TagDateTimeOffsetUTC
	}
	return structure.Transformer{
		Tag:        tag,
		FieldCount: 3,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(DateTimeOffset)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			d := v.(DateTimeOffset)
			first := d.UTCSecond
			if !utcPatch {
				first = d.UTCSecond + int64(d.OffsetSeconds)
			}
			return &structure.Structure{Tag: tag, Fields: []any{first, int64(d.Nano), int64(d.OffsetSeconds)}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			first := s.Fields[0].(int64)
			offset := int32(s.Fields[2].(int64))
			utc := first
			if !utcPatch {
				utc = first - int64(offset)
			}
			return DateTimeOffset{
				UTCSecond:     utc,
				Nano:          int32(s.Fields[1].(int64)),
				OffsetSeconds: offset,
			}, nil
		},
	}
}

// dateTimeZoneIDTransformer builds the transformer for DateTimeZoneID
// under either the legacy local-second tag or the UTC-patched tag. warn,
// if non-nil, is called when hydrating a legacy-tagged value resolves a
// DST-ambiguous or -nonexistent local wall-clock second (spec §4.5).
func dateTimeZoneIDTransformer(utcPatch bool, warn func(zoneID string, localSecond int64)) structure.Transformer {
	tag := TagDateTimeZoneIDLegacy
	if utcPatch {
		tag = TagDateTimeZoneIDUTC
	}
	return structure.Transformer{
		Tag:        tag,
		FieldCount: 3,
		IsTypeInstance: func(v any) bool {
			_, ok := v.(DateTimeZoneID)
			return ok
		},
		ToStruct: func(v any) (*structure.Structure, error) {
			d := v.(DateTimeZoneID)
			first := d.UTCSecond
			if !utcPatch {
				offset, err := ZoneOffsetSeconds(d.ZoneID, d.UTCSecond)
				if err != nil {
					return nil, err
				}
				first = d.UTCSecond + int64(offset)
			}
			return &structure.Structure{Tag: tag, Fields: []any{first, int64(d.Nano), d.ZoneID}}, nil
		},
		FromStruct: func(s *structure.Structure) (any, error) {
			first := s.Fields[0].(int64)
			nano := int32(s.Fields[1].(int64))
			zoneID := s.Fields[2].(string)
			if utcPatch {
				return DateTimeZoneID{UTCSecond: first, Nano: nano, ZoneID: zoneID}, nil
			}
			dt, ambiguous, err := ResolveZoneWallClock(first, nano, zoneID, nil)
			if err != nil {
				return nil, err
			}
			if ambiguous && warn != nil {
				warn(zoneID, first)
			}
			return dt, nil
		},
	}
}

// ZoneOffsetSeconds returns the zone's UTC offset, in seconds, at the
// given UTC instant.
func ZoneOffsetSeconds(zoneID string, utcSecond int64) (int32, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return 0, err
	}
	_, offset := time.Unix(utcSecond, 0).In(loc).Zone()
	return int32(offset), nil
}

// ResolveAmbiguousLocalSecond implements spec §4.5's iterative
// zone-offset computation for a DateTime supplied as a local
// wall-clock second plus a zone id, with no explicit offset: (a)
// convert local wallclock to a candidate epoch treating it as UTC;
// (b) apply the zone to that candidate and measure the difference δ₁;
// (c) subtract δ₁ from the candidate to form a guessed UTC; (d) apply
// the zone to the guess and measure δ₂ — the true offset. It returns
// the resolved UTC second and whether the local time fell in a
// DST-ambiguous or -nonexistent window (the caller must then warn, per
// spec).
func ResolveAmbiguousLocalSecond(localSecond int64, zoneID string) (utcSecond int64, ambiguous bool, err error) {
	candidate := localSecond
	delta1, err := ZoneOffsetSeconds(zoneID, candidate)
	if err != nil {
		return 0, false, err
	}
	guess := candidate - int64(delta1)
	delta2, err := ZoneOffsetSeconds(zoneID, guess)
	if err != nil {
		return 0, false, err
	}
	utcSecond = localSecond - int64(delta2)
	// The wall-clock second is unambiguous only when exactly one of the
	// offsets in force a day either side of it maps back onto it: none
	// means it fell in a gap, two means it repeats at a fall-back.
	before, err := ZoneOffsetSeconds(zoneID, localSecond-86400)
	if err != nil {
		return 0, false, err
	}
	after, err := ZoneOffsetSeconds(zoneID, localSecond+86400)
	if err != nil {
		return 0, false, err
	}
	matches := 0
	for _, off := range []int32{before, after} {
		if back, _ := ZoneOffsetSeconds(zoneID, localSecond-int64(off)); back == off {
			matches++
		}
		if before == after {
			break
		}
	}
	ambiguous = matches != 1
	return utcSecond, ambiguous, nil
}

// ResolveZoneWallClock resolves a DateTime supplied by a caller as a
// local wall-clock (localSecond, nano) plus a zone id into a
// DateTimeZoneID. If explicitOffsetSeconds is non-nil it is trusted
// directly and no ambiguity resolution is performed; otherwise the
// offset is computed via ResolveAmbiguousLocalSecond and ambiguous
// reports whether the driver must warn the caller about DST
// fall-back ambiguity.
func ResolveZoneWallClock(localSecond int64, nano int32, zoneID string, explicitOffsetSeconds *int32) (dt DateTimeZoneID, ambiguous bool, err error) {
	if explicitOffsetSeconds != nil {
		return DateTimeZoneID{
			UTCSecond: localSecond - int64(*explicitOffsetSeconds),
			Nano:      nano,
			ZoneID:    zoneID,
		}, false, nil
	}
	utc, ambiguous, err := ResolveAmbiguousLocalSecond(localSecond, zoneID)
	if err != nil {
		return DateTimeZoneID{}, false, err
	}
	return DateTimeZoneID{UTCSecond: utc, Nano: nano, ZoneID: zoneID}, ambiguous, nil
}
