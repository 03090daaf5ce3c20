package h5ad

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"math"
)

// Dims returns the dataset's dimensions (empty for scalar).
func (o *Object) Dims() ([]uint64, error) {
	m, ok := o.find(msgDataspace)
	if !ok {
		return nil, fmt.Errorf("object at %d has no dataspace", o.addr)
	}
	return parseDataspace(m.data)
}

// elemCount multiplies out a dim list; scalar = 1 element.
func elemCount(dims []uint64) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return n
}

// raw reads the dataset's element bytes in row-major order, applying the
// filter pipeline. Unallocated storage reads as zeroes (the fill value
// h5py uses for numeric data).
func (o *Object) raw() ([]byte, *Datatype, []uint64, error) {
	dt, err := o.datatype()
	if err != nil {
		return nil, nil, nil, err
	}
	dims, err := o.Dims()
	if err != nil {
		return nil, nil, nil, err
	}
	m, ok := o.find(msgLayout)
	if !ok {
		return nil, nil, nil, fmt.Errorf("object at %d has no data layout", o.addr)
	}
	l, err := parseLayout(m.data)
	if err != nil {
		return nil, nil, nil, err
	}

	total := elemCount(dims) * dt.Size

	switch l.class {
	case layoutCompact:
		if len(l.data) < total {
			return nil, nil, nil, fmt.Errorf("compact data shorter than dataspace")
		}
		return l.data[:total], dt, dims, nil

	case layoutContiguous:
		if l.addr == undefAddr {
			return make([]byte, total), dt, dims, nil
		}
		n := int(l.size)
		if n > total {
			n = total
		}
		buf, err := o.f.at(l.addr, n)
		if err != nil {
			return nil, nil, nil, err
		}
		if n < total {
			buf = append(buf, make([]byte, total-n)...)
		}
		return buf, dt, dims, nil

	case layoutChunked:
		var filters []filter
		if fm, ok := o.find(msgFilters); ok {
			filters, err = parseFilters(fm.data)
			if err != nil {
				return nil, nil, nil, err
			}
		}
		buf := make([]byte, total)
		if l.addr != undefAddr {
			if err := o.f.readChunks(l, dims, dt.Size, filters, buf); err != nil {
				return nil, nil, nil, err
			}
		}
		return buf, dt, dims, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, l.class)
}

// readChunks walks the v1 chunk B-tree and scatters every chunk into dst.
func (f *File) readChunks(l *layout, dims []uint64, elemSize int, filters []filter, dst []byte) error {
	ndims := len(l.chunkDims) // rank + 1 (element-size dimension)
	rank := ndims - 1
	if rank != len(dims) {
		return fmt.Errorf("chunk rank %d does not match dataspace rank %d", rank, len(dims))
	}
	if rank < 1 || rank > 2 {
		return fmt.Errorf("%w: rank-%d chunked dataset", ErrUnsupported, rank)
	}
	return f.walkChunkBTree(l.addr, l, dims, elemSize, filters, dst)
}

func (f *File) walkChunkBTree(addr uint64, l *layout, dims []uint64, elemSize int, filters []filter, dst []byte) error {
	hdr, err := f.at(addr, 24)
	if err != nil {
		return err
	}
	if !bytes.Equal(hdr[0:4], treeSig) {
		return fmt.Errorf("B-tree signature missing at %d", addr)
	}
	if hdr[4] != 1 {
		return fmt.Errorf("expected chunk B-tree at %d, got node type %d", addr, hdr[4])
	}
	level := int(hdr[5])
	entries := int(le.Uint16(hdr[6:8]))

	ndims := len(l.chunkDims)
	keySize := 8 + 8*ndims
	body, err := f.at(addr+24, entries*(keySize+8)+keySize)
	if err != nil {
		return err
	}

	for i := 0; i < entries; i++ {
		key := body[i*(keySize+8) : i*(keySize+8)+keySize]
		child := le.Uint64(body[i*(keySize+8)+keySize : (i+1)*(keySize+8)])

		if level > 0 {
			if err := f.walkChunkBTree(child, l, dims, elemSize, filters, dst); err != nil {
				return err
			}
			continue
		}

		stored := int(le.Uint32(key[0:4]))
		offsets := make([]uint64, ndims-1)
		for d := range offsets {
			offsets[d] = le.Uint64(key[8+8*d : 16+8*d])
		}

		chunk, err := f.at(child, stored)
		if err != nil {
			return err
		}
		chunk, err = applyFilters(chunk, filters, elemSize)
		if err != nil {
			return err
		}
		if err := scatterChunk(chunk, offsets, l.chunkDims[:ndims-1], dims, elemSize, dst); err != nil {
			return err
		}
	}
	return nil
}

// applyFilters undoes the pipeline in reverse write order.
func applyFilters(chunk []byte, filters []filter, elemSize int) ([]byte, error) {
	for i := len(filters) - 1; i >= 0; i-- {
		switch filters[i].id {
		case filterDeflate:
			zr, err := zlib.NewReader(bytes.NewReader(chunk))
			if err != nil {
				return nil, fmt.Errorf("deflate filter: %w", err)
			}
			out, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("deflate filter: %w", err)
			}
			chunk = out
		case filterShuffle:
			chunk = unshuffle(chunk, elemSize)
		case filterFletcher:
			if len(chunk) >= 4 {
				chunk = chunk[:len(chunk)-4] // checksum not verified
			}
		default:
			return nil, fmt.Errorf("%w: filter id %d", ErrUnsupported, filters[i].id)
		}
	}
	return chunk, nil
}

// unshuffle reverses the byte-shuffle filter: input groups byte 0 of every
// element, then byte 1, and so on.
func unshuffle(b []byte, elemSize int) []byte {
	if elemSize <= 1 || len(b)%elemSize != 0 {
		return b
	}
	n := len(b) / elemSize
	out := make([]byte, len(b))
	for j := 0; j < elemSize; j++ {
		for i := 0; i < n; i++ {
			out[i*elemSize+j] = b[j*n+i]
		}
	}
	return out
}

// scatterChunk copies a decoded chunk into the row-major destination,
// clipping edge chunks to the dataspace bounds.
func scatterChunk(chunk []byte, offsets, chunkDims, dims []uint64, elemSize int, dst []byte) error {
	switch len(dims) {
	case 1:
		o0, c0, d0 := int(offsets[0]), int(chunkDims[0]), int(dims[0])
		n := c0
		if o0+n > d0 {
			n = d0 - o0
		}
		if n <= 0 {
			return nil
		}
		if len(chunk) < n*elemSize {
			return fmt.Errorf("chunk shorter than expected")
		}
		copy(dst[o0*elemSize:], chunk[:n*elemSize])
		return nil
	case 2:
		o0, c0, d0 := int(offsets[0]), int(chunkDims[0]), int(dims[0])
		o1, c1, d1 := int(offsets[1]), int(chunkDims[1]), int(dims[1])
		rows := c0
		if o0+rows > d0 {
			rows = d0 - o0
		}
		cols := c1
		if o1+cols > d1 {
			cols = d1 - o1
		}
		if rows <= 0 || cols <= 0 {
			return nil
		}
		if len(chunk) < ((rows-1)*c1+cols)*elemSize {
			return fmt.Errorf("chunk shorter than expected")
		}
		for r := 0; r < rows; r++ {
			src := chunk[r*c1*elemSize : (r*c1+cols)*elemSize]
			copy(dst[((o0+r)*d1+o1)*elemSize:], src)
		}
		return nil
	}
	return fmt.Errorf("%w: rank-%d chunk", ErrUnsupported, len(dims))
}

// --- Element decoding --------------------------------------------------------

// ReadFloats reads any numeric dataset as float64s.
func (o *Object) ReadFloats() ([]float64, error) {
	buf, dt, dims, err := o.raw()
	if err != nil {
		return nil, err
	}
	return decodeFloats(buf, dt, elemCount(dims))
}

// ReadInts reads an integer dataset as int64s (floats are truncated).
func (o *Object) ReadInts() ([]int64, error) {
	fs, err := o.ReadFloats()
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(fs))
	for i, v := range fs {
		out[i] = int64(v)
	}
	return out, nil
}

// ReadStrings reads a fixed or variable-length string dataset.
func (o *Object) ReadStrings() ([]string, error) {
	buf, dt, dims, err := o.raw()
	if err != nil {
		return nil, err
	}
	return o.f.decodeStrings(buf, dt, elemCount(dims))
}

func decodeFloats(buf []byte, dt *Datatype, n int) ([]float64, error) {
	if dt.BigEnd {
		return nil, fmt.Errorf("%w: big-endian data", ErrUnsupported)
	}
	if len(buf) < n*dt.Size {
		return nil, fmt.Errorf("data shorter than dataspace")
	}
	out := make([]float64, n)
	switch dt.Class {
	case classFloat:
		switch dt.Size {
		case 4:
			for i := 0; i < n; i++ {
				out[i] = float64(math.Float32frombits(le.Uint32(buf[i*4:])))
			}
		case 8:
			for i := 0; i < n; i++ {
				out[i] = math.Float64frombits(le.Uint64(buf[i*8:]))
			}
		default:
			return nil, fmt.Errorf("%w: float%d", ErrUnsupported, dt.Size*8)
		}
	case classFixed, classBitfield, classEnum:
		for i := 0; i < n; i++ {
			var u uint64
			for b := dt.Size - 1; b >= 0; b-- {
				u = u<<8 | uint64(buf[i*dt.Size+b])
			}
			if dt.Signed {
				shift := uint(64 - 8*dt.Size)
				out[i] = float64(int64(u<<shift) >> shift)
			} else {
				out[i] = float64(u)
			}
		}
	default:
		return nil, fmt.Errorf("%w: numeric read of datatype class %d", ErrUnsupported, dt.Class)
	}
	return out, nil
}

func (f *File) decodeStrings(buf []byte, dt *Datatype, n int) ([]string, error) {
	out := make([]string, n)
	switch {
	case dt.Class == classString:
		if len(buf) < n*dt.Size {
			return nil, fmt.Errorf("data shorter than dataspace")
		}
		for i := 0; i < n; i++ {
			s := buf[i*dt.Size : (i+1)*dt.Size]
			if j := bytes.IndexByte(s, 0); j >= 0 {
				s = s[:j]
			}
			out[i] = string(bytes.TrimRight(s, " "))
		}
	case dt.Class == classVlen && dt.Vlen:
		if len(buf) < n*16 {
			return nil, fmt.Errorf("data shorter than dataspace")
		}
		for i := 0; i < n; i++ {
			e := buf[i*16 : (i+1)*16]
			size := int(le.Uint32(e[0:4]))
			addr := le.Uint64(e[4:12])
			idx := le.Uint32(e[12:16])
			if addr == undefAddr || addr == 0 {
				continue // NULL vlen: empty string
			}
			data, err := f.globalHeapObject(addr, idx)
			if err != nil {
				return nil, err
			}
			if size < len(data) {
				data = data[:size]
			}
			out[i] = string(data)
		}
	default:
		return nil, fmt.Errorf("%w: string read of datatype class %d", ErrUnsupported, dt.Class)
	}
	return out, nil
}

var gcolSig = []byte("GCOL")

// globalHeapObject returns one object's bytes from a global heap collection,
// caching parsed collections.
func (f *File) globalHeapObject(addr uint64, index uint32) ([]byte, error) {
	f.mu.Lock()
	col, ok := f.gheaps[addr]
	f.mu.Unlock()

	if !ok {
		hdr, err := f.at(addr, 16)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(hdr[0:4], gcolSig) {
			return nil, fmt.Errorf("global heap signature missing at %d", addr)
		}
		size := le.Uint64(hdr[8:16])
		if size < 16 {
			return nil, fmt.Errorf("global heap too small at %d", addr)
		}
		body, err := f.at(addr+16, int(size)-16)
		if err != nil {
			return nil, err
		}

		col = make(map[uint32][]byte)
		for off := 0; off+16 <= len(body); {
			idx := le.Uint16(body[off : off+2])
			objSize := int(le.Uint64(body[off+8 : off+16]))
			off += 16
			if idx == 0 {
				break // free space object terminates the collection
			}
			if off+objSize > len(body) {
				return nil, fmt.Errorf("global heap object overruns collection at %d", addr)
			}
			col[uint32(idx)] = body[off : off+objSize]
			off += (objSize + 7) &^ 7
		}

		f.mu.Lock()
		f.gheaps[addr] = col
		f.mu.Unlock()
	}

	data, ok := col[index]
	if !ok {
		return nil, fmt.Errorf("global heap object %d missing at %d", index, addr)
	}
	return data, nil
}
