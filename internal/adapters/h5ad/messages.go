package h5ad

import (
	"fmt"
)

// --- Dataspace ---------------------------------------------------------------

// parseDataspace returns the dataset dimensions. Scalar spaces return an
// empty slice; null spaces return nil with ok=false semantics folded into
// a zero-element dim list.
func parseDataspace(b []byte) ([]uint64, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("short dataspace message")
	}
	version := b[0]
	rank := int(b[1])
	var off int
	switch version {
	case 1:
		if len(b) < 8 {
			return nil, fmt.Errorf("short dataspace message")
		}
		off = 8 // version, rank, flags, reserved(5)
	case 2:
		off = 4 // version, rank, flags, type
	default:
		return nil, fmt.Errorf("%w: dataspace version %d", ErrUnsupported, version)
	}
	if len(b) < off+8*rank {
		return nil, fmt.Errorf("dataspace message truncated")
	}
	dims := make([]uint64, rank)
	for i := 0; i < rank; i++ {
		dims[i] = le.Uint64(b[off+8*i : off+8*i+8])
	}
	return dims, nil
}

// --- Datatype ----------------------------------------------------------------

// Datatype classes (low nibble of the class/version byte).
const (
	classFixed    = 0
	classFloat    = 1
	classTime     = 2
	classString   = 3
	classBitfield = 4
	classOpaque   = 5
	classCompound = 6
	classRef      = 7
	classEnum     = 8
	classVlen     = 9
	classArray    = 10
)

// Datatype describes an element type within the supported subset.
type Datatype struct {
	Class  int
	Size   int  // element size in bytes (vlen: size of the heap reference)
	Signed bool // fixed-point only
	BigEnd bool
	Vlen   bool      // variable-length string
	Base   *Datatype // vlen base type
}

// parseDatatype decodes a datatype message body (also used inside attribute
// messages). Returns the datatype and the number of bytes consumed.
func parseDatatype(b []byte) (*Datatype, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("short datatype message")
	}
	class := int(b[0] & 0x0F)
	version := int(b[0] >> 4)
	if version < 1 || version > 3 {
		return nil, 0, fmt.Errorf("%w: datatype version %d", ErrUnsupported, version)
	}
	bits0 := b[1]
	size := int(le.Uint32(b[4:8]))

	dt := &Datatype{Class: class, Size: size, BigEnd: bits0&0x01 != 0}

	switch class {
	case classFixed:
		dt.Signed = bits0&0x08 != 0
		// properties: bit offset(2) + precision(2)
		return dt, 8 + 4, nil
	case classFloat:
		// properties: 12 bytes of bit-field layout; size alone determines
		// float32 vs float64 for IEEE types, which is all h5py writes.
		return dt, 8 + 12, nil
	case classString:
		// padding and charset live in the bit fields; fixed-size payload.
		return dt, 8, nil
	case classVlen:
		vtype := int(bits0 & 0x0F)
		base, n, err := parseDatatype(b[8:])
		if err != nil {
			return nil, 0, err
		}
		dt.Base = base
		dt.Vlen = vtype == 1 || base.Class == classString
		if !dt.Vlen {
			return nil, 0, fmt.Errorf("%w: variable-length non-string data", ErrUnsupported)
		}
		return dt, 8 + n, nil
	case classEnum:
		// Enum of a fixed-point base: read it as its base type. h5py writes
		// pandas booleans this way.
		base, _, err := parseDatatype(b[8:])
		if err != nil {
			return nil, 0, err
		}
		base.Size = size
		return base, len(b), nil
	case classCompound:
		return nil, 0, fmt.Errorf("%w: compound datatype (legacy anndata obs/var tables)", ErrUnsupported)
	}
	return nil, 0, fmt.Errorf("%w: datatype class %d", ErrUnsupported, class)
}

// parseSharedDatatype resolves a shared datatype message (flag bit 1 set on
// the header message): version(1) type(1) then the address of the object
// header holding the real datatype message.
func (f *File) parseSharedDatatype(b []byte) (*Datatype, error) {
	if len(b) < 10 {
		return nil, fmt.Errorf("short shared message")
	}
	version := b[0]
	var addr uint64
	switch version {
	case 1:
		if len(b) < 2+6+8 {
			return nil, fmt.Errorf("short shared message v1")
		}
		addr = le.Uint64(b[8:16])
	case 2, 3:
		addr = le.Uint64(b[2:10])
	default:
		return nil, fmt.Errorf("%w: shared message version %d", ErrUnsupported, version)
	}
	obj, err := f.object(addr)
	if err != nil {
		return nil, err
	}
	m, ok := obj.find(msgDatatype)
	if !ok {
		return nil, fmt.Errorf("shared datatype target has no datatype message")
	}
	dt, _, err := parseDatatype(m.data)
	return dt, err
}

// datatype returns the object's element datatype, resolving sharing.
func (o *Object) datatype() (*Datatype, error) {
	m, ok := o.find(msgDatatype)
	if !ok {
		return nil, fmt.Errorf("object at %d has no datatype", o.addr)
	}
	if m.shared() {
		return o.f.parseSharedDatatype(m.data)
	}
	dt, _, err := parseDatatype(m.data)
	return dt, err
}

// --- Data layout -------------------------------------------------------------

const (
	layoutCompact    = 0
	layoutContiguous = 1
	layoutChunked    = 2
)

type layout struct {
	class     int
	data      []byte   // compact
	addr      uint64   // contiguous data / chunked B-tree root
	size      uint64   // contiguous byte count
	chunkDims []uint64 // chunked: rank+1 dims, last = element size
}

func parseLayout(b []byte) (*layout, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("short layout message")
	}
	version := b[0]
	switch version {
	case 3:
		class := int(b[1])
		l := &layout{class: class}
		switch class {
		case layoutCompact:
			n := int(le.Uint16(b[2:4]))
			if len(b) < 4+n {
				return nil, fmt.Errorf("compact layout truncated")
			}
			l.data = b[4 : 4+n]
		case layoutContiguous:
			if len(b) < 18 {
				return nil, fmt.Errorf("contiguous layout truncated")
			}
			l.addr = le.Uint64(b[2:10])
			l.size = le.Uint64(b[10:18])
		case layoutChunked:
			rank := int(b[2]) // includes the trailing element-size dimension
			if len(b) < 11+4*rank {
				return nil, fmt.Errorf("chunked layout truncated")
			}
			l.addr = le.Uint64(b[3:11])
			l.chunkDims = make([]uint64, rank)
			for i := 0; i < rank; i++ {
				l.chunkDims[i] = uint64(le.Uint32(b[11+4*i : 15+4*i]))
			}
		default:
			return nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, class)
		}
		return l, nil
	case 4:
		// v4 is written for libver="latest" only; h5ad files use v3.
		return nil, fmt.Errorf("%w: data layout version 4", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: data layout version %d", ErrUnsupported, version)
}

// --- Filter pipeline ---------------------------------------------------------

const (
	filterDeflate  = 1
	filterShuffle  = 2
	filterFletcher = 3
)

type filter struct {
	id    uint16
	cdata []uint32
}

func parseFilters(b []byte) ([]filter, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("short filter pipeline message")
	}
	version := b[0]
	n := int(b[1])
	var off int
	switch version {
	case 1:
		off = 8
	case 2:
		off = 2
	default:
		return nil, fmt.Errorf("%w: filter pipeline version %d", ErrUnsupported, version)
	}

	out := make([]filter, 0, n)
	for i := 0; i < n; i++ {
		if off+8 > len(b) {
			return nil, fmt.Errorf("filter pipeline truncated")
		}
		id := le.Uint16(b[off : off+2])
		nameLen := int(le.Uint16(b[off+2 : off+4]))
		nvals := int(le.Uint16(b[off+6 : off+8]))
		off += 8
		if version == 2 && id < 256 {
			nameLen = 0
		}
		if version == 1 {
			// name is padded to a multiple of 8
			nameLen = (nameLen + 7) &^ 7
		}
		off += nameLen
		if off+4*nvals > len(b) {
			return nil, fmt.Errorf("filter pipeline truncated")
		}
		vals := make([]uint32, nvals)
		for k := 0; k < nvals; k++ {
			vals[k] = le.Uint32(b[off+4*k : off+4*k+4])
		}
		off += 4 * nvals
		if version == 1 && nvals%2 == 1 {
			off += 4 // pad to 8-byte multiple
		}
		out = append(out, filter{id: id, cdata: vals})
	}
	return out, nil
}

// --- Links and symbol tables -------------------------------------------------

type link struct {
	name string
	addr uint64
}

// parseLink decodes a v2 hard link message. Soft/external links are skipped
// by returning ok=false.
func parseLink(b []byte) (link, bool, error) {
	if len(b) < 3 {
		return link{}, false, fmt.Errorf("short link message")
	}
	if b[0] != 1 {
		return link{}, false, fmt.Errorf("%w: link message version %d", ErrUnsupported, b[0])
	}
	flags := b[1]
	off := 2

	linkType := 0
	if flags&0x08 != 0 {
		linkType = int(b[off])
		off++
	}
	if flags&0x04 != 0 {
		off += 8 // creation order
	}
	if flags&0x10 != 0 {
		off++ // charset
	}
	nameLenSize := 1 << (flags & 0x3)
	if off+nameLenSize > len(b) {
		return link{}, false, fmt.Errorf("link message truncated")
	}
	var nameLen uint64
	for i := nameLenSize - 1; i >= 0; i-- {
		nameLen = nameLen<<8 | uint64(b[off+i])
	}
	off += nameLenSize
	if off+int(nameLen) > len(b) {
		return link{}, false, fmt.Errorf("link message truncated")
	}
	name := string(b[off : off+int(nameLen)])
	off += int(nameLen)

	if linkType != 0 {
		return link{}, false, nil // soft or external link: not a child object
	}
	if off+8 > len(b) {
		return link{}, false, fmt.Errorf("link message truncated")
	}
	return link{name: name, addr: le.Uint64(b[off : off+8])}, true, nil
}

type symbolTable struct {
	btree uint64
	heap  uint64
}

func parseSymbolTable(b []byte) (symbolTable, error) {
	if len(b) < 16 {
		return symbolTable{}, fmt.Errorf("short symbol table message")
	}
	return symbolTable{btree: le.Uint64(b[0:8]), heap: le.Uint64(b[8:16])}, nil
}
