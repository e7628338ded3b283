package s7

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Area represents an S7 memory area.
type Area int

const (
	AreaDB     Area = iota // Data block
	AreaInput              // Process image input (I)
	AreaOutput             // Process image output (Q)
	AreaMerker             // Flag memory (M)
	AreaTimer              // Timers (T)
	AreaCounter            // Counters (C)
)

// String returns the area's address prefix.
func (a Area) String() string {
	switch a {
	case AreaDB:
		return "DB"
	case AreaInput:
		return "I"
	case AreaOutput:
		return "Q"
	case AreaMerker:
		return "M"
	case AreaTimer:
		return "T"
	case AreaCounter:
		return "C"
	default:
		return "?"
	}
}

// code returns the wire area code used in item specifications.
func (a Area) code() byte {
	switch a {
	case AreaInput:
		return areaCodeInput
	case AreaOutput:
		return areaCodeOutput
	case AreaMerker:
		return areaCodeMerker
	case AreaTimer:
		return areaCodeTimer
	case AreaCounter:
		return areaCodeCounter
	default:
		return areaCodeDB
	}
}

// ElementType is the access width of one addressed element.
type ElementType int

const (
	ElemBit   ElementType = iota // single bit (X)
	ElemByte                     // 8-bit byte (B)
	ElemWord                     // 16-bit word (W)
	ElemDWord                    // 32-bit double word (D)
)

// Size returns the size of one element in bytes. Bit elements occupy one
// byte each in read results and write values.
func (e ElementType) Size() int {
	switch e {
	case ElemWord:
		return 2
	case ElemDWord:
		return 4
	default:
		return 1
	}
}

// qualifier returns the address grammar letter of the element type.
func (e ElementType) qualifier() byte {
	switch e {
	case ElemBit:
		return 'X'
	case ElemByte:
		return 'B'
	case ElemWord:
		return 'W'
	default:
		return 'D'
	}
}

// transportSize returns the item specification transport size code.
func (e ElementType) transportSize() byte {
	switch e {
	case ElemBit:
		return tsBit
	case ElemByte:
		return tsByte
	case ElemWord:
		return tsWord
	default:
		return tsDWord
	}
}

// Address identifies a run of elements in PLC memory.
//
// Invariants: BitOffset is meaningful only when ElementType is ElemBit (and
// is 0..7); DBNumber is meaningful only when Area is AreaDB; Count is at
// least 1. ParseAddress only produces addresses satisfying all three.
type Address struct {
	Area        Area
	DBNumber    uint16
	ByteOffset  uint32
	BitOffset   uint8
	ElementType ElementType
	Count       uint16
}

var (
	// DB1.DBX0.0, DB1.DBB0, DB1.DBW0[4], DB1.DBD8
	reDB = regexp.MustCompile(`^DB(\d+)\.DB([XBWD])(\d+)(?:\.(\d+))?(?:\[(\d+)\])?$`)

	// M0.0, MX0.0, MB0, MW0[2], ID4, QW2 — also I and Q forms
	reIQM = regexp.MustCompile(`^([IQM])([XBWD])?(\d+)(?:\.(\d+))?(?:\[(\d+)\])?$`)

	// T5, C2, T0[4]
	reTC = regexp.MustCompile(`^([TC])(\d+)(?:\[(\d+)\])?$`)
)

// ParseAddress parses a textual S7 variable address.
//
// Supported forms:
//   - DB<n>.DBX<byte>.<bit> — data block bit
//   - DB<n>.DBB<byte>, DB<n>.DBW<byte>, DB<n>.DBD<byte> — data block byte/word/dword
//   - I|Q|M<byte>.<bit> — input/output/flag bit (IX/QX/MX also accepted)
//   - IB|QB|MB, IW|QW|MW, ID|QD|MD + <byte> — input/output/flag byte/word/dword
//   - T<n>, C<n> — timers and counters (word-sized elements)
//
// Byte, word and dword forms accept an array suffix "[count]". Parsing is
// case-insensitive; String returns the canonical upper-case form.
func ParseAddress(s string) (Address, error) {
	text := strings.ToUpper(strings.TrimSpace(s))
	if text == "" {
		return Address{}, fmt.Errorf("%w: empty string", ErrInvalidAddress)
	}

	if m := reDB.FindStringSubmatch(text); m != nil {
		return parseDBAddress(s, m)
	}
	if m := reTC.FindStringSubmatch(text); m != nil {
		return parseTCAddress(s, m)
	}
	if m := reIQM.FindStringSubmatch(text); m != nil {
		return parseIQMAddress(s, m)
	}

	return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
}

func parseDBAddress(orig string, m []string) (Address, error) {
	dbNum, err := strconv.ParseUint(m[1], 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: db number in %q", ErrInvalidAddress, orig)
	}
	offset, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: byte offset in %q", ErrInvalidAddress, orig)
	}

	addr := Address{
		Area:       AreaDB,
		DBNumber:   uint16(dbNum),
		ByteOffset: uint32(offset),
		Count:      1,
	}

	return finishTypedAddress(orig, addr, m[2], m[4], m[5])
}

func parseIQMAddress(orig string, m []string) (Address, error) {
	var area Area
	switch m[1] {
	case "I":
		area = AreaInput
	case "Q":
		area = AreaOutput
	case "M":
		area = AreaMerker
	}

	offset, err := strconv.ParseUint(m[3], 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: byte offset in %q", ErrInvalidAddress, orig)
	}

	addr := Address{
		Area:       area,
		ByteOffset: uint32(offset),
		Count:      1,
	}

	qualifier := m[2]
	if qualifier == "" {
		// Bare forms like M5 or M5.3 are bit access.
		qualifier = "X"
		if m[4] == "" {
			m = append([]string{}, m...)
			m[4] = "0"
		}
	}

	return finishTypedAddress(orig, addr, qualifier, m[4], m[5])
}

func parseTCAddress(orig string, m []string) (Address, error) {
	var area Area
	switch m[1] {
	case "T":
		area = AreaTimer
	case "C":
		area = AreaCounter
	}

	num, err := strconv.ParseUint(m[2], 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: number in %q", ErrInvalidAddress, orig)
	}

	count := uint64(1)
	if m[3] != "" {
		count, err = strconv.ParseUint(m[3], 10, 16)
		if err != nil || count == 0 {
			return Address{}, fmt.Errorf("%w: element count in %q", ErrInvalidAddress, orig)
		}
	}

	return Address{
		Area:        area,
		ByteOffset:  uint32(num),
		ElementType: ElemWord,
		Count:       uint16(count),
	}, nil
}

// finishTypedAddress applies the qualifier, bit index and array count groups
// shared by the DB and I/Q/M grammars.
func finishTypedAddress(orig string, addr Address, qualifier, bitStr, countStr string) (Address, error) {
	switch qualifier {
	case "X":
		if bitStr == "" {
			return Address{}, fmt.Errorf("%w: bit access requires a bit index in %q", ErrInvalidAddress, orig)
		}
		bit, err := strconv.ParseUint(bitStr, 10, 8)
		if err != nil || bit > 7 {
			return Address{}, fmt.Errorf("%w: bit index must be 0-7 in %q", ErrInvalidAddress, orig)
		}
		if countStr != "" {
			return Address{}, fmt.Errorf("%w: bit access cannot carry an array count in %q", ErrInvalidAddress, orig)
		}
		addr.ElementType = ElemBit
		addr.BitOffset = uint8(bit)

		return addr, nil

	case "B", "W", "D":
		if bitStr != "" {
			return Address{}, fmt.Errorf("%w: bit index is only valid for bit access in %q", ErrInvalidAddress, orig)
		}
		switch qualifier {
		case "B":
			addr.ElementType = ElemByte
		case "W":
			addr.ElementType = ElemWord
		case "D":
			addr.ElementType = ElemDWord
		}
		if countStr != "" {
			count, err := strconv.ParseUint(countStr, 10, 16)
			if err != nil || count == 0 {
				return Address{}, fmt.Errorf("%w: element count in %q", ErrInvalidAddress, orig)
			}
			addr.Count = uint16(count)
		}

		return addr, nil

	default:
		return Address{}, fmt.Errorf("%w: qualifier %q in %q", ErrInvalidAddress, qualifier, orig)
	}
}

// String formats the address in its canonical textual form. It is the exact
// inverse of ParseAddress for every address the grammar accepts.
func (a Address) String() string {
	var sb strings.Builder

	switch a.Area {
	case AreaDB:
		fmt.Fprintf(&sb, "DB%d.DB%c%d", a.DBNumber, a.ElementType.qualifier(), a.ByteOffset)
		if a.ElementType == ElemBit {
			fmt.Fprintf(&sb, ".%d", a.BitOffset)
		}

	case AreaTimer, AreaCounter:
		fmt.Fprintf(&sb, "%s%d", a.Area, a.ByteOffset)

	default:
		if a.ElementType == ElemBit {
			fmt.Fprintf(&sb, "%s%d.%d", a.Area, a.ByteOffset, a.BitOffset)
		} else {
			fmt.Fprintf(&sb, "%s%c%d", a.Area, a.ElementType.qualifier(), a.ByteOffset)
		}
	}

	if a.Count > 1 && a.ElementType != ElemBit {
		fmt.Fprintf(&sb, "[%d]", a.Count)
	}

	return sb.String()
}

// DataSize returns the number of data bytes a read of this address yields,
// or a write of it must supply. Bit elements occupy one byte each.
func (a Address) DataSize() int {
	return a.ElementType.Size() * int(a.Count)
}

// bitAddress returns the 24-bit start address: byte offset shifted by three,
// plus the bit offset for bit access.
func (a Address) bitAddress() uint32 {
	addr := a.ByteOffset << 3
	if a.ElementType == ElemBit {
		addr |= uint32(a.BitOffset)
	}
	return addr
}
