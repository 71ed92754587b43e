package packstream

import (
	"fmt"
	"math/big"

	"github.com/orneryd/nornic-bolt-go/pkg/buffer"
	"github.com/orneryd/nornic-bolt-go/pkg/structure"
)

// IntegerPolicy controls how the Unpacker represents decoded integers
// (spec §3.3, §6.4); it applies to every integer, whatever its
// magnitude. The default, PreservePrecision, keeps the full int64 value.
type IntegerPolicy int

const (
	// PreservePrecision returns every integer as int64 (the default).
	PreservePrecision IntegerPolicy = iota
	// LossyFloat converts every integer to float64, matching
	// disable_lossless_integers.
	LossyFloat
	// UseBigInt converts every integer to *big.Int, matching
	// use_big_int.
	UseBigInt
)

// Unpacker reads PackStream-encoded values from a buffer. An Unpacker
// is owned exclusively by its caller; it is not safe for concurrent
// use.
type Unpacker struct {
	buf    *buffer.Buffer
	reg    *structure.Registry
	policy IntegerPolicy
}

// NewUnpacker creates an Unpacker reading from buf. reg may be nil, in
// which case structures decode as *structure.Structure rather than
// being hydrated into application types.
func NewUnpacker(buf *buffer.Buffer, reg *structure.Registry, policy IntegerPolicy) *Unpacker {
	return &Unpacker{buf: buf, reg: reg, policy: policy}
}

// PeekMarker returns the next marker byte without consuming it.
func (u *Unpacker) PeekMarker() (byte, error) {
	return u.buf.PeekByte()
}

// UnpackInt reads an integer of any width and returns it as int64,
// preserving the full value regardless of width (spec requirement:
// the unpacker MUST accept any width).
func (u *Unpacker) UnpackInt() (int64, error) {
	m, err := u.buf.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case m <= TinyIntPosMax:
		return int64(int8(m)), nil
	case m >= TinyIntNegMin:
		return int64(int8(m)), nil
	case m == Int8:
		v, err := u.buf.ReadI8()
		return int64(v), err
	case m == Int16:
		v, err := u.buf.ReadI16()
		return int64(v), err
	case m == Int32:
		v, err := u.buf.ReadI32()
		return int64(v), err
	case m == Int64:
		return u.buf.ReadI64()
	}
	return 0, fmt.Errorf("packstream: marker 0x%02X is not an integer", m)
}

// UnpackString reads a UTF-8 string of any length marker.
func (u *Unpacker) UnpackString() (string, error) {
	n, err := u.readStringLen()
	if err != nil {
		return "", err
	}
	s, err := u.buf.ReadSlice(n)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (u *Unpacker) readStringLen() (int, error) {
	m, err := u.buf.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case m >= TinyStringMin && m <= TinyStringMax:
		return int(m - TinyStringMin), nil
	case m == String8:
		v, err := u.buf.ReadByte()
		return int(v), err
	case m == String16:
		v, err := u.buf.ReadU16()
		return int(v), err
	case m == String32:
		v, err := u.buf.ReadI32()
		return int(v), err
	}
	return 0, fmt.Errorf("packstream: marker 0x%02X is not a string", m)
}

func (u *Unpacker) readCollectionLen(tinyMin, tinyMax, m8, m16, m32 byte) (int, error) {
	m, err := u.buf.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case m >= tinyMin && m <= tinyMax:
		return int(m - tinyMin), nil
	case m == m8:
		v, err := u.buf.ReadByte()
		return int(v), err
	case m == m16:
		v, err := u.buf.ReadU16()
		return int(v), err
	case m == m32:
		v, err := u.buf.ReadI32()
		return int(v), err
	}
	return 0, fmt.Errorf("packstream: marker 0x%02X is not the expected collection type", m)
}

// UnpackListHeader reads a list marker and returns its element count.
func (u *Unpacker) UnpackListHeader() (int, error) {
	return u.readCollectionLen(TinyListMin, TinyListMax, List8, List16, List32)
}

// UnpackDictHeader reads a dict marker and returns its pair count.
func (u *Unpacker) UnpackDictHeader() (int, error) {
	return u.readCollectionLen(TinyDictMin, TinyDictMax, Dict8, Dict16, Dict32)
}

// UnpackStructHeader reads a structure marker and returns its field
// count and tag.
func (u *Unpacker) UnpackStructHeader() (fieldCount int, tag byte, err error) {
	m, err := u.buf.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case m >= TinyStructMin && m <= TinyStructMax:
		fieldCount = int(m - TinyStructMin)
	case m == Struct8:
		v, err := u.buf.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		fieldCount = int(v)
	case m == Struct16:
		v, err := u.buf.ReadU16()
		if err != nil {
			return 0, 0, err
		}
		fieldCount = int(v)
	default:
		return 0, 0, fmt.Errorf("packstream: marker 0x%02X is not a structure", m)
	}
	tag, err = u.buf.ReadByte()
	return fieldCount, tag, err
}

// Unpack reads and decodes the next value of any PackStream type,
// recursively. Structures are hydrated through the registry when one
// is configured and a transformer is registered for the tag;
// otherwise they are returned as *structure.Structure.
func (u *Unpacker) Unpack() (any, error) {
	m, err := u.PeekMarker()
	if err != nil {
		return nil, err
	}

	switch {
	case m == Null:
		u.buf.ReadByte()
		return nil, nil
	case m == True:
		u.buf.ReadByte()
		return true, nil
	case m == False:
		u.buf.ReadByte()
		return false, nil
	case m == Float:
		u.buf.ReadByte()
		return u.buf.ReadF64()
	case m <= TinyIntPosMax || m >= TinyIntNegMin || m == Int8 || m == Int16 || m == Int32 || m == Int64:
		v, err := u.UnpackInt()
		if err != nil {
			return nil, err
		}
		switch u.policy {
		case LossyFloat:
			return float64(v), nil
		case UseBigInt:
			return big.NewInt(v), nil
		default:
			return v, nil
		}
	case (m >= TinyStringMin && m <= TinyStringMax) || m == String8 || m == String16 || m == String32:
		return u.UnpackString()
	case (m >= TinyListMin && m <= TinyListMax) || m == List8 || m == List16 || m == List32:
		n, err := u.UnpackListHeader()
		if err != nil {
			return nil, err
		}
		list := make([]any, n)
		for i := 0; i < n; i++ {
			v, err := u.Unpack()
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case (m >= TinyDictMin && m <= TinyDictMax) || m == Dict8 || m == Dict16 || m == Dict32:
		n, err := u.UnpackDictHeader()
		if err != nil {
			return nil, err
		}
		dict := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := u.UnpackString()
			if err != nil {
				return nil, err
			}
			v, err := u.Unpack()
			if err != nil {
				return nil, err
			}
			dict[k] = v
		}
		return dict, nil
	case (m >= TinyStructMin && m <= TinyStructMax) || m == Struct8 || m == Struct16:
		n, tag, err := u.UnpackStructHeader()
		if err != nil {
			return nil, err
		}
		fields := make([]any, n)
		for i := 0; i < n; i++ {
			v, err := u.Unpack()
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		s := &structure.Structure{Tag: tag, Fields: fields}
		if u.reg != nil {
			if _, ok := u.reg.Transformer(tag); ok {
				return u.reg.Hydrate(s)
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("packstream: unrecognised marker 0x%02X", m)
}
