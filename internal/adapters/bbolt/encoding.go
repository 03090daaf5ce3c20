// Binary encoding for per-cell assignment blobs.
//
// A run over a stereo-seq section carries tens of thousands of cells; the
// assignment arrays dominate the record size, so they get a compact binary
// format instead of JSON. Labels repeat heavily and are interned into a
// table referenced by index.
//
// Blob format v1 (little-endian):
//
//	labelCount: uint32
//	per label:
//	  len:   uint16
//	  bytes: [len]byte
//	cellCount: uint32
//	per cell:
//	  idLen:    uint16
//	  id:       [idLen]byte
//	  labelIdx: uint32
//	  score:    float64 bits (uint64)
package bbolt

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// encodeAssignments packs parallel cell/label/score arrays into one blob.
// The label table is sorted for deterministic output. A single buffer is
// pre-allocated to avoid repeated growth.
func encodeAssignments(ids, labels []string, scores []float64) ([]byte, error) {
	seen := make(map[string]uint32)
	var table []string
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = 0
			table = append(table, l)
		}
	}
	sort.Strings(table)
	for i, l := range table {
		seen[l] = uint32(i)
	}

	totalSize := 4
	for _, l := range table {
		totalSize += 2 + len(l)
	}
	totalSize += 4
	for _, id := range ids {
		totalSize += 2 + len(id) + 4 + 8
	}

	buf := make([]byte, totalSize)
	offset := 0

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(table)))
	offset += 4
	for _, l := range table {
		if len(l) > 65535 {
			return nil, fmt.Errorf("label too long: %d bytes", len(l))
		}
		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(l)))
		offset += 2
		copy(buf[offset:], l)
		offset += len(l)
	}

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(ids)))
	offset += 4
	for i, id := range ids {
		if len(id) > 65535 {
			return nil, fmt.Errorf("cell ID too long: %d bytes", len(id))
		}
		binary.LittleEndian.PutUint16(buf[offset:], uint16(len(id)))
		offset += 2
		copy(buf[offset:], id)
		offset += len(id)
		binary.LittleEndian.PutUint32(buf[offset:], seen[labels[i]])
		offset += 4
		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(scores[i]))
		offset += 8
	}

	return buf, nil
}

// decodeAssignments unpacks a blob back into parallel arrays.
// Every read is bounds-checked to avoid panics on corrupt data.
func decodeAssignments(data []byte) (ids, labels []string, scores []float64, err error) {
	offset := 0

	if offset+4 > len(data) {
		return nil, nil, nil, fmt.Errorf("blob too short: %d bytes", len(data))
	}
	labelCount := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	table := make([]string, labelCount)
	for i := uint32(0); i < labelCount; i++ {
		if offset+2 > len(data) {
			return nil, nil, nil, fmt.Errorf("truncated at label %d length (offset %d)", i, offset)
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n > len(data) {
			return nil, nil, nil, fmt.Errorf("truncated at label %d (offset %d, need %d)", i, offset, n)
		}
		table[i] = string(data[offset : offset+n])
		offset += n
	}

	if offset+4 > len(data) {
		return nil, nil, nil, fmt.Errorf("truncated at cell count (offset %d)", offset)
	}
	cellCount := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	ids = make([]string, cellCount)
	labels = make([]string, cellCount)
	scores = make([]float64, cellCount)
	for i := uint32(0); i < cellCount; i++ {
		if offset+2 > len(data) {
			return nil, nil, nil, fmt.Errorf("truncated at cell %d ID length (offset %d)", i, offset)
		}
		n := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if offset+n+12 > len(data) {
			return nil, nil, nil, fmt.Errorf("truncated at cell %d (offset %d, need %d)", i, offset, n+12)
		}
		ids[i] = string(data[offset : offset+n])
		offset += n
		idx := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if idx >= labelCount {
			return nil, nil, nil, fmt.Errorf("cell %d: label index %d out of range (%d labels)", i, idx, labelCount)
		}
		labels[i] = table[idx]
		scores[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
		offset += 8
	}

	return ids, labels, scores, nil
}
