package h5ad

// Test-only HDF5 writer: assembles minimal valid files covering the subset
// the reader supports. Checksums are zero-filled (the reader skips them).

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
)

func u16b(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32b(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func u64b(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

const sbReserve = 128 // space reserved for the superblock at offset 0

type builder struct {
	buf []byte
}

func newBuilder() *builder {
	return &builder{buf: make([]byte, sbReserve)}
}

// alloc appends data and returns its file address.
func (b *builder) alloc(data []byte) uint64 {
	addr := uint64(len(b.buf))
	b.buf = append(b.buf, data...)
	return addr
}

// finishV2 writes a version-2 superblock pointing at the root header.
func (b *builder) finishV2(root uint64) []byte {
	sb := cat(
		hdf5Signature,
		[]byte{2, 8, 8, 0}, // version, size of offsets, size of lengths, flags
		u64b(0),            // base address
		u64b(undefAddr),    // superblock extension
		u64b(uint64(len(b.buf))), // EOF
		u64b(root),
		u32b(0), // checksum (unverified)
	)
	copy(b.buf, sb)
	return b.buf
}

// finishV0 writes a version-0 superblock whose root symbol table entry
// points at the root group header.
func (b *builder) finishV0(root uint64) []byte {
	sb := cat(
		hdf5Signature,
		[]byte{0, 0, 0, 0, 0, 8, 8, 0},
		u16b(4), u16b(16), // leaf K, internal K
		u32b(0),                  // consistency flags
		u64b(0),                  // base address
		u64b(undefAddr),          // free space
		u64b(uint64(len(b.buf))), // EOF
		u64b(undefAddr),          // driver info
		// root symbol table entry
		u64b(0), u64b(root), u32b(0), u32b(0), make([]byte, 16),
	)
	copy(b.buf, sb)
	return b.buf
}

// --- messages ----------------------------------------------------------------

// v2msg serializes one object header message.
func v2msg(kind uint8, body []byte) []byte {
	return cat([]byte{kind}, u16b(uint16(len(body))), []byte{0}, body)
}

// ohdrV2 builds a version-2 object header from serialized messages.
func ohdrV2(msgs ...[]byte) []byte {
	block := cat(msgs...)
	if len(block) > 255 {
		panic("test object header too large for 1-byte chunk size")
	}
	return cat(
		[]byte("OHDR"), []byte{2, 0},
		[]byte{uint8(len(block))},
		block,
		u32b(0), // checksum
	)
}

func dataspace1D(n int) []byte {
	return cat([]byte{2, 1, 0, 1}, u64b(uint64(n)))
}

func dataspace2D(r, c int) []byte {
	return cat([]byte{2, 2, 0, 1}, u64b(uint64(r)), u64b(uint64(c)))
}

func dataspaceScalar() []byte {
	return []byte{2, 0, 0, 0}
}

func dtFloat64() []byte {
	return cat([]byte{0x11, 0, 0, 0}, u32b(8), make([]byte, 12))
}

func dtInt(size int) []byte {
	return cat([]byte{0x10, 0x08, 0, 0}, u32b(uint32(size)), u16b(0), u16b(uint16(size*8)))
}

func dtString(size int) []byte {
	return cat([]byte{0x13, 0, 0, 0}, u32b(uint32(size)))
}

func dtVlenString() []byte {
	return cat([]byte{0x19, 0x01, 0, 0}, u32b(16), dtString(1))
}

func layoutContig(addr, size uint64) []byte {
	return cat([]byte{3, 1}, u64b(addr), u64b(size))
}

func chunkedLayoutMsg(btree uint64, chunkDims []uint32) []byte {
	out := cat([]byte{3, 2, uint8(len(chunkDims))}, u64b(btree))
	for _, d := range chunkDims {
		out = append(out, u32b(d)...)
	}
	return out
}

func linkMsg(name string, addr uint64) []byte {
	return v2msg(msgLink, cat([]byte{1, 0, uint8(len(name))}, []byte(name), u64b(addr)))
}

// attrMsg serializes a version-2 attribute message.
func attrMsg(name string, dt, ds, data []byte) []byte {
	n := []byte(name + "\x00")
	return v2msg(msgAttribute, cat(
		[]byte{2, 0},
		u16b(uint16(len(n))), u16b(uint16(len(dt))), u16b(uint16(len(ds))),
		n, dt, ds, data,
	))
}

func strAttr(name, value string) []byte {
	return attrMsg(name, dtString(len(value)), dataspaceScalar(), []byte(value))
}

func int64ArrayAttr(name string, vals ...int64) []byte {
	var data []byte
	for _, v := range vals {
		data = append(data, u64b(uint64(v))...)
	}
	return attrMsg(name, dtInt(8), dataspace1D(len(vals)), data)
}

// --- dataset helpers ---------------------------------------------------------

func float64Bytes(vals []float64) []byte {
	var out []byte
	for _, v := range vals {
		out = append(out, u64b(math.Float64bits(v))...)
	}
	return out
}

func intBytes(vals []int64, size int) []byte {
	var out []byte
	for _, v := range vals {
		full := u64b(uint64(v))
		out = append(out, full[:size]...)
	}
	return out
}

// floats1D allocates a contiguous 1-D float64 dataset.
func (b *builder) floats1D(vals []float64) uint64 {
	data := float64Bytes(vals)
	addr := b.alloc(data)
	return b.alloc(ohdrV2(
		v2msg(msgDataspace, dataspace1D(len(vals))),
		v2msg(msgDatatype, dtFloat64()),
		v2msg(msgLayout, layoutContig(addr, uint64(len(data)))),
	))
}

// floats2D allocates a contiguous 2-D float64 dataset.
func (b *builder) floats2D(rows, cols int, vals []float64) uint64 {
	data := float64Bytes(vals)
	addr := b.alloc(data)
	return b.alloc(ohdrV2(
		v2msg(msgDataspace, dataspace2D(rows, cols)),
		v2msg(msgDatatype, dtFloat64()),
		v2msg(msgLayout, layoutContig(addr, uint64(len(data)))),
	))
}

// ints1D allocates a contiguous 1-D signed integer dataset.
func (b *builder) ints1D(vals []int64, size int) uint64 {
	data := intBytes(vals, size)
	addr := b.alloc(data)
	return b.alloc(ohdrV2(
		v2msg(msgDataspace, dataspace1D(len(vals))),
		v2msg(msgDatatype, dtInt(size)),
		v2msg(msgLayout, layoutContig(addr, uint64(len(data)))),
	))
}

// strings1D allocates a fixed-size string dataset, padding values with NULs.
func (b *builder) strings1D(vals []string, size int) uint64 {
	var data []byte
	for _, v := range vals {
		s := make([]byte, size)
		copy(s, v)
		data = append(data, s...)
	}
	addr := b.alloc(data)
	return b.alloc(ohdrV2(
		v2msg(msgDataspace, dataspace1D(len(vals))),
		v2msg(msgDatatype, dtString(size)),
		v2msg(msgLayout, layoutContig(addr, uint64(len(data)))),
	))
}

// vlenStrings1D allocates a variable-length string dataset backed by one
// global heap collection.
func (b *builder) vlenStrings1D(vals []string) uint64 {
	// Global heap collection.
	var objs []byte
	for i, v := range vals {
		padded := append([]byte(v), make([]byte, (8-len(v)%8)%8)...)
		objs = append(objs, cat(
			u16b(uint16(i+1)), u16b(1), u32b(0),
			u64b(uint64(len(v))),
			padded,
		)...)
	}
	objs = append(objs, cat(u16b(0), u16b(0), u32b(0), u64b(0))...) // terminator
	col := cat([]byte("GCOL"), []byte{1, 0, 0, 0}, u64b(uint64(16+len(objs))), objs)
	gaddr := b.alloc(col)

	var data []byte
	for i, v := range vals {
		data = append(data, cat(u32b(uint32(len(v))), u64b(gaddr), u32b(uint32(i+1)))...)
	}
	addr := b.alloc(data)
	return b.alloc(ohdrV2(
		v2msg(msgDataspace, dataspace1D(len(vals))),
		v2msg(msgDatatype, dtVlenString()),
		v2msg(msgLayout, layoutContig(addr, uint64(len(data)))),
	))
}

// chunkedFloats1D allocates a deflate-compressed chunked 1-D float64 dataset.
func (b *builder) chunkedFloats1D(vals []float64, chunk int) uint64 {
	type chunkRef struct {
		offset uint64
		addr   uint64
		stored uint32
	}
	var refs []chunkRef
	for off := 0; off < len(vals); off += chunk {
		end := off + chunk
		if end > len(vals) {
			end = len(vals)
		}
		// Full-size chunk buffer; edge chunks are padded on disk.
		padded := make([]float64, chunk)
		copy(padded, vals[off:end])

		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		zw.Write(float64Bytes(padded))
		zw.Close()

		refs = append(refs, chunkRef{
			offset: uint64(off),
			addr:   b.alloc(z.Bytes()),
			stored: uint32(z.Len()),
		})
	}

	// Leaf chunk B-tree: key0 child0 key1 child1 ... keyN.
	node := cat(
		[]byte("TREE"), []byte{1, 0}, u16b(uint16(len(refs))),
		u64b(undefAddr), u64b(undefAddr),
	)
	key := func(stored uint32, offset uint64) []byte {
		return cat(u32b(stored), u32b(0), u64b(offset), u64b(0))
	}
	for _, r := range refs {
		node = append(node, key(r.stored, r.offset)...)
		node = append(node, u64b(r.addr)...)
	}
	node = append(node, key(0, uint64(len(vals)))...)
	btree := b.alloc(node)

	pipeline := cat(
		[]byte{1, 1}, make([]byte, 6),
		u16b(filterDeflate), u16b(0), u16b(1), u16b(0),
	)
	return b.alloc(ohdrV2(
		v2msg(msgDataspace, dataspace1D(len(vals))),
		v2msg(msgDatatype, dtFloat64()),
		v2msg(msgFilters, pipeline),
		v2msg(msgLayout, chunkedLayoutMsg(btree, []uint32{uint32(chunk), 8})),
	))
}

// group allocates a group header whose children are link messages; extra
// raw messages (attributes) may be appended.
func (b *builder) group(children map[string]uint64, extra ...[]byte) uint64 {
	var msgs [][]byte
	for _, name := range sortedKeys(children) {
		msgs = append(msgs, linkMsg(name, children[name]))
	}
	msgs = append(msgs, extra...)
	return b.alloc(ohdrV2(msgs...))
}

func sortedKeys(m map[string]uint64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
