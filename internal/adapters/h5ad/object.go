package h5ad

import (
	"bytes"
	"fmt"
)

// Header message types used by the reader.
const (
	msgNil          = 0x00
	msgDataspace    = 0x01
	msgLinkInfo     = 0x02
	msgDatatype     = 0x03
	msgFillValueOld = 0x04
	msgFillValue    = 0x05
	msgLink         = 0x06
	msgLayout       = 0x08
	msgGroupInfo    = 0x0A
	msgFilters      = 0x0B
	msgAttribute    = 0x0C
	msgContinuation = 0x10
	msgSymbolTable  = 0x11
	msgAttrInfo     = 0x15
)

// message is one raw header message.
type message struct {
	kind  uint16
	flags uint8
	data  []byte
}

// shared reports whether the message body is a pointer to a shared message.
func (m *message) shared() bool { return m.flags&0x02 != 0 }

var ohdrSig = []byte("OHDR")
var ochkSig = []byte("OCHK")

// readObjectHeader parses a version 1 or 2 object header, following
// continuation messages, and returns all messages in file order.
func (f *File) readObjectHeader(addr uint64) ([]message, error) {
	probe, err := f.at(addr, 4)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(probe, ohdrSig) {
		return f.readObjectHeaderV2(addr)
	}
	if probe[0] == 1 {
		return f.readObjectHeaderV1(addr)
	}
	return nil, fmt.Errorf("%w: object header version %d at %d", ErrUnsupported, probe[0], addr)
}

// readObjectHeaderV1 parses the prefix at addr and every continuation block.
// V1 prefix: version(1) reserved(1) message count(2) ref count(4)
// header size(4), then 4 bytes of padding before the first message.
func (f *File) readObjectHeaderV1(addr uint64) ([]message, error) {
	prefix, err := f.at(addr, 16)
	if err != nil {
		return nil, err
	}
	total := int(le.Uint16(prefix[2:4]))
	hdrSize := int(le.Uint32(prefix[8:12]))

	var msgs []message
	block, err := f.at(addr+16, hdrSize)
	if err != nil {
		return nil, err
	}

	// Continuation blocks in v1 are raw message runs.
	blocks := [][]byte{block}
	for bi := 0; bi < len(blocks) && len(msgs) < total; bi++ {
		b := blocks[bi]
		for off := 0; off+8 <= len(b) && len(msgs) < total; {
			kind := le.Uint16(b[off : off+2])
			size := int(le.Uint16(b[off+2 : off+4]))
			flags := b[off+4]
			off += 8
			if off+size > len(b) {
				return nil, fmt.Errorf("object header at %d: message overruns block", addr)
			}
			body := b[off : off+size]
			off += size

			if kind == msgContinuation {
				if len(body) < 16 {
					return nil, fmt.Errorf("object header at %d: short continuation", addr)
				}
				caddr := le.Uint64(body[0:8])
				clen := le.Uint64(body[8:16])
				cb, err := f.at(caddr, int(clen))
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, cb)
				msgs = append(msgs, message{kind: kind, flags: flags})
				continue
			}
			msgs = append(msgs, message{kind: kind, flags: flags, data: body})
		}
	}
	return msgs, nil
}

// readObjectHeaderV2 parses an OHDR header and its OCHK continuation blocks.
func (f *File) readObjectHeaderV2(addr uint64) ([]message, error) {
	head, err := f.at(addr, 16)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head[0:4], ohdrSig) || head[4] != 2 {
		return nil, fmt.Errorf("%w: bad OHDR prefix at %d", ErrUnsupported, addr)
	}
	flags := head[5]

	off := uint64(6)
	if flags&0x20 != 0 {
		off += 16 // access/mod/change/birth times
	}
	if flags&0x10 != 0 {
		off += 4 // max compact / min dense attribute counts
	}
	csBytes := 1 << (flags & 0x3)
	csBuf, err := f.at(addr+off, csBytes)
	if err != nil {
		return nil, err
	}
	var chunkSize uint64
	for i := csBytes - 1; i >= 0; i-- {
		chunkSize = chunkSize<<8 | uint64(csBuf[i])
	}
	off += uint64(csBytes)

	block, err := f.at(addr+off, int(chunkSize))
	if err != nil {
		return nil, err
	}

	trackOrder := flags&0x04 != 0
	var msgs []message
	blocks := [][]byte{block}
	for bi := 0; bi < len(blocks); bi++ {
		b := blocks[bi]
		// Each chunk ends with a 4-byte checksum (not verified); a gap
		// shorter than a message header may precede it.
		end := len(b)
		for off := 0; off+4 <= end; {
			kind := uint16(b[off])
			size := int(le.Uint16(b[off+1 : off+3]))
			mflags := b[off+3]
			off += 4
			if trackOrder {
				off += 2
			}
			if off+size > end {
				break // gap + checksum
			}
			body := b[off : off+size]
			off += size

			if kind == msgContinuation {
				if len(body) < 16 {
					return nil, fmt.Errorf("object header at %d: short continuation", addr)
				}
				caddr := le.Uint64(body[0:8])
				clen := le.Uint64(body[8:16])
				cb, err := f.at(caddr, int(clen))
				if err != nil {
					return nil, err
				}
				if len(cb) < 8 || !bytes.Equal(cb[0:4], ochkSig) {
					return nil, fmt.Errorf("object header at %d: continuation without OCHK", addr)
				}
				// Strip signature and trailing checksum.
				blocks = append(blocks, cb[4:len(cb)-4])
				continue
			}
			if kind == msgNil {
				continue
			}
			msgs = append(msgs, message{kind: kind, flags: mflags, data: body})
		}
	}
	return msgs, nil
}

// Object is a node in the HDF5 hierarchy: a group or a dataset.
type Object struct {
	f    *File
	addr uint64
	msgs []message

	links    map[string]uint64 // lazily built child name -> header address
	linkKeys []string
}

// find returns the first message of the given kind.
func (o *Object) find(kind uint16) (*message, bool) {
	for i := range o.msgs {
		if o.msgs[i].kind == kind {
			return &o.msgs[i], true
		}
	}
	return nil, false
}

// IsDataset reports whether the object carries a data layout.
func (o *Object) IsDataset() bool {
	_, ok := o.find(msgLayout)
	return ok
}

// IsGroup reports whether the object is a group (old-style symbol table or
// new-style link storage).
func (o *Object) IsGroup() bool {
	if _, ok := o.find(msgSymbolTable); ok {
		return true
	}
	if _, ok := o.find(msgLinkInfo); ok {
		return true
	}
	if _, ok := o.find(msgLink); ok {
		return true
	}
	_, hasGI := o.find(msgGroupInfo)
	return hasGI && !o.IsDataset()
}
