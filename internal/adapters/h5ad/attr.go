package h5ad

import (
	"fmt"
)

// Attr reads and decodes the named attribute. Scalar strings decode to
// string, string arrays to []string, numerics to float64 / []float64.
// ok=false means the attribute is absent.
func (o *Object) Attr(name string) (any, bool, error) {
	for i := range o.msgs {
		if o.msgs[i].kind != msgAttribute {
			continue
		}
		aname, val, err := o.f.parseAttribute(o.msgs[i].data)
		if err != nil {
			return nil, false, err
		}
		if aname == name {
			return val, true, nil
		}
	}
	return nil, false, nil
}

// AttrString reads a string attribute, returning ok=false when absent or
// non-string.
func (o *Object) AttrString(name string) (string, bool) {
	v, ok, err := o.Attr(name)
	if err != nil || !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AttrStrings reads a string-array attribute.
func (o *Object) AttrStrings(name string) ([]string, bool) {
	v, ok, err := o.Attr(name)
	if err != nil || !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return s, true
	case string:
		return []string{s}, true
	}
	return nil, false
}

// AttrInts reads a numeric attribute as int64s.
func (o *Object) AttrInts(name string) ([]int64, bool) {
	v, ok, err := o.Attr(name)
	if err != nil || !ok {
		return nil, false
	}
	var fs []float64
	switch t := v.(type) {
	case float64:
		fs = []float64{t}
	case []float64:
		fs = t
	default:
		return nil, false
	}
	out := make([]int64, len(fs))
	for i, f := range fs {
		out[i] = int64(f)
	}
	return out, true
}

// parseAttribute decodes an attribute message (versions 1-3).
func (f *File) parseAttribute(b []byte) (string, any, error) {
	if len(b) < 8 {
		return "", nil, fmt.Errorf("short attribute message")
	}
	version := b[0]
	if version < 1 || version > 3 {
		return "", nil, fmt.Errorf("%w: attribute message version %d", ErrUnsupported, version)
	}
	flags := b[1] // reserved in v1
	nameSize := int(le.Uint16(b[2:4]))
	dtSize := int(le.Uint16(b[4:6]))
	dsSize := int(le.Uint16(b[6:8]))

	off := 8
	if version == 3 {
		off++ // name character set encoding
	}

	pad := func(n int) int {
		if version == 1 {
			return (n + 7) &^ 7
		}
		return n
	}

	if off+pad(nameSize) > len(b) {
		return "", nil, fmt.Errorf("attribute message truncated")
	}
	name := cString(b[off : off+nameSize])
	off += pad(nameSize)

	if off+pad(dtSize) > len(b) {
		return "", nil, fmt.Errorf("attribute message truncated")
	}
	var dt *Datatype
	var err error
	if version >= 2 && flags&0x01 != 0 {
		dt, err = f.parseSharedDatatype(b[off : off+dtSize])
	} else {
		dt, _, err = parseDatatype(b[off : off+dtSize])
	}
	if err != nil {
		return "", nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	off += pad(dtSize)

	if off+pad(dsSize) > len(b) {
		return "", nil, fmt.Errorf("attribute message truncated")
	}
	dims, err := parseDataspace(b[off : off+dsSize])
	if err != nil {
		return "", nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	off += pad(dsSize)

	n := elemCount(dims)
	data := b[off:]
	scalar := len(dims) == 0

	switch dt.Class {
	case classString, classVlen:
		ss, err := f.decodeStrings(data, dt, n)
		if err != nil {
			return "", nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		if scalar && len(ss) == 1 {
			return name, ss[0], nil
		}
		return name, ss, nil
	default:
		fs, err := decodeFloats(data, dt, n)
		if err != nil {
			return "", nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		if scalar && len(fs) == 1 {
			return name, fs[0], nil
		}
		return name, fs, nil
	}
}

// cString trims a trailing NUL from a name buffer.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
