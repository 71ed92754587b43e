// Package packstream implements the PackStream typed self-describing
// binary encoding used inside Bolt messages (spec §4.3): variable
// length markers, sized integers, UTF-8 strings, lists, dictionaries,
// and tagged application structures.
package packstream

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/orneryd/nornic-bolt-go/pkg/buffer"
	"github.com/orneryd/nornic-bolt-go/pkg/structure"
)

// Packer writes PackStream-encoded values into a buffer. A Packer is
// owned exclusively by its caller; it is not safe for concurrent use.
type Packer struct {
	buf *buffer.Buffer
	reg *structure.Registry
}

// NewPacker creates a Packer writing into buf. reg may be nil, in
// which case only the closed PackStream variant (null/bool/int/float/
// string/list/dict/*structure.Structure) is packable — application
// types require a non-nil registry to dehydrate through.
func NewPacker(buf *buffer.Buffer, reg *structure.Registry) *Packer {
	return &Packer{buf: buf, reg: reg}
}

// PackNull writes the null marker.
func (p *Packer) PackNull() {
	p.buf.WriteByte(Null)
}

// PackBool writes a boolean marker.
func (p *Packer) PackBool(v bool) {
	if v {
		p.buf.WriteByte(True)
	} else {
		p.buf.WriteByte(False)
	}
}

// PackInt writes v using the smallest marker width that holds it,
// per spec §4.3's integer packing policy.
func (p *Packer) PackInt(v int64) {
	switch {
	case v >= -16 && v <= 127:
		p.buf.WriteByte(byte(int8(v)))
	case v >= -128 && v <= 127:
		p.buf.WriteByte(Int8)
		p.buf.WriteByte(byte(int8(v)))
	case v >= -32768 && v <= 32767:
		p.buf.WriteByte(Int16)
		p.buf.WriteU16(uint16(int16(v)))
	case v >= -2147483648 && v <= 2147483647:
		p.buf.WriteByte(Int32)
		p.buf.WriteI32(int32(v))
	default:
		p.buf.WriteByte(Int64)
		p.buf.WriteI64(v)
	}
}

// PackFloat writes a float64 marker and its big-endian bits.
func (p *Packer) PackFloat(v float64) {
	p.buf.WriteByte(Float)
	p.buf.WriteF64(v)
}

// PackString writes a UTF-8 string with the smallest applicable
// length marker.
func (p *Packer) PackString(s string) {
	n := len(s)
	switch {
	case n <= 15:
		p.buf.WriteByte(TinyStringMin + byte(n))
	case n <= 0xFF:
		p.buf.WriteByte(String8)
		p.buf.WriteByte(byte(n))
	case n <= 0xFFFF:
		p.buf.WriteByte(String16)
		p.buf.WriteU16(uint16(n))
	default:
		p.buf.WriteByte(String32)
		p.buf.WriteI32(int32(n))
	}
	p.buf.WriteBytes([]byte(s))
}

// PackListHeader writes a list marker for n upcoming elements; the
// caller packs each element itself.
func (p *Packer) PackListHeader(n int) {
	switch {
	case n <= 15:
		p.buf.WriteByte(TinyListMin + byte(n))
	case n <= 0xFF:
		p.buf.WriteByte(List8)
		p.buf.WriteByte(byte(n))
	case n <= 0xFFFF:
		p.buf.WriteByte(List16)
		p.buf.WriteU16(uint16(n))
	default:
		p.buf.WriteByte(List32)
		p.buf.WriteI32(int32(n))
	}
}

// PackDictHeader writes a dict marker for n upcoming key/value pairs;
// the caller packs each key (string) then value itself.
func (p *Packer) PackDictHeader(n int) {
	switch {
	case n <= 15:
		p.buf.WriteByte(TinyDictMin + byte(n))
	case n <= 0xFF:
		p.buf.WriteByte(Dict8)
		p.buf.WriteByte(byte(n))
	case n <= 0xFFFF:
		p.buf.WriteByte(Dict16)
		p.buf.WriteU16(uint16(n))
	default:
		p.buf.WriteByte(Dict32)
		p.buf.WriteI32(int32(n))
	}
}

// PackStructHeader writes a structure marker for tag with n upcoming
// fields; the caller packs each field itself.
func (p *Packer) PackStructHeader(tag byte, n int) {
	switch {
	case n <= 15:
		p.buf.WriteByte(TinyStructMin + byte(n))
	case n <= 0xFF:
		p.buf.WriteByte(Struct8)
		p.buf.WriteByte(byte(n))
	default:
		p.buf.WriteByte(Struct16)
		p.buf.WriteU16(uint16(n))
	}
	p.buf.WriteByte(tag)
}

// PackStruct writes a fully-formed Structure: header, tag, then every
// field via Pack.
func (p *Packer) PackStruct(s *structure.Structure) error {
	p.PackStructHeader(s.Tag, len(s.Fields))
	for _, f := range s.Fields {
		if err := p.Pack(f); err != nil {
			return err
		}
	}
	return nil
}

// Pack writes v, dispatching on its dynamic type. Supported closed
// variant types are nil, bool, int, int64, float64, string,
// []any, map[string]any, and *structure.Structure. Any other type is
// first offered to the registry (if non-nil) for dehydration into a
// Structure.
func (p *Packer) Pack(v any) error {
	switch t := v.(type) {
	case nil:
		p.PackNull()
	case bool:
		p.PackBool(t)
	case int:
		p.PackInt(int64(t))
	case int32:
		p.PackInt(int64(t))
	case int64:
		p.PackInt(t)
	case float64:
		p.PackFloat(t)
	case string:
		p.PackString(t)
	case []any:
		p.PackListHeader(len(t))
		for _, el := range t {
			if err := p.Pack(el); err != nil {
				return err
			}
		}
	case map[string]any:
		p.PackDictHeader(len(t))
		keys := maps.Keys(t)
		slices.Sort(keys)
		for _, k := range keys {
			p.PackString(k)
			if err := p.Pack(t[k]); err != nil {
				return err
			}
		}
	case *structure.Structure:
		return p.PackStruct(t)
	default:
		if p.reg == nil {
			return fmt.Errorf("packstream: no transformer registry available for value of type %T", v)
		}
		s, ok, err := p.reg.Dehydrate(v)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("packstream: no transformer registered for value of type %T", v)
		}
		return p.PackStruct(s)
	}
	return nil
}
