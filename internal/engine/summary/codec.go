// Package summary encodes the per-file header persisted next to the occurrence
// facts, so a placeholder file stub can be rebuilt without reparsing.
//
// Record layout, sequential and unpadded:
//
//	name           package (mandatory)
//	byte           script flag
//	name-or-null   facade fq name
//	name-or-null   part simple name
//	int32 (BE)     part count N
//	N × name-or-null
//
// Names are uvarint handles into a NameTable; handle 0 is null.
package summary

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"stubindex/internal/core/errors"
	"stubindex/internal/engine/stub"
)

// NullHandle encodes an absent name.
const NullHandle uint32 = 0

// NameTable interns names to stable non-zero handles.
type NameTable interface {
	Intern(name string) (uint32, error)
	Name(handle uint32) (string, error)
}

// Encode serializes h, interning every name through names.
func Encode(h stub.FileHeader, names NameTable) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, h, names); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. Trailing bytes are rejected.
func Decode(data []byte, names NameTable) (stub.FileHeader, error) {
	r := bytes.NewReader(data)
	h, err := Read(r, names)
	if err != nil {
		return stub.FileHeader{}, err
	}
	if r.Len() > 0 {
		return stub.FileHeader{}, errors.Newf(errors.CodeDecode, "%d trailing bytes after file summary", r.Len())
	}
	return h, nil
}

func Write(w io.Writer, h stub.FileHeader, names NameTable) error {
	if len(h.PartNames) > math.MaxInt32 {
		return errors.Newf(errors.CodeValidationError, "too many part names: %d", len(h.PartNames))
	}

	e := encoder{names: names}
	e.name(&h.PackageFqName)
	e.boolean(h.Script)
	e.name(h.FacadeFqName)
	e.name(h.PartSimpleName)
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(h.PartNames)))
	for _, part := range h.PartNames {
		e.name(part)
	}
	if e.err != nil {
		return e.err
	}

	_, err := w.Write(e.buf)
	return err
}

// Read decodes one record from r.
func Read(r io.ByteReader, names NameTable) (stub.FileHeader, error) {
	d := decoder{r: r, names: names}

	pkg := d.name()
	if d.err == nil && pkg == nil {
		return stub.FileHeader{}, errors.New(errors.CodeDecode, "file summary has no package name")
	}
	h := stub.FileHeader{}
	if pkg != nil {
		h.PackageFqName = *pkg
	}
	h.Script = d.boolean()
	h.FacadeFqName = d.name()
	h.PartSimpleName = d.name()

	n := d.int32()
	if d.err == nil && n < 0 {
		return stub.FileHeader{}, errors.Newf(errors.CodeDecode, "negative part count %d", n)
	}
	if d.err == nil && n > 0 {
		h.PartNames = make([]*string, 0, min(int(n), 64))
		for i := int32(0); i < n && d.err == nil; i++ {
			h.PartNames = append(h.PartNames, d.name())
		}
	}

	if d.err != nil {
		return stub.FileHeader{}, d.err
	}
	return h, nil
}

type encoder struct {
	names NameTable
	buf   []byte
	err   error
}

func (e *encoder) name(s *string) {
	if e.err != nil {
		return
	}
	handle := NullHandle
	if s != nil {
		var err error
		handle, err = e.names.Intern(*s)
		if err != nil {
			e.err = errors.Wrap(err, errors.CodeInternal, "intern name")
			return
		}
		if handle == NullHandle {
			e.err = errors.Newf(errors.CodeInternal, "name table returned null handle for %q", *s)
			return
		}
	}
	e.buf = binary.AppendUvarint(e.buf, uint64(handle))
}

func (e *encoder) boolean(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

type decoder struct {
	r     io.ByteReader
	names NameTable
	err   error
}

func (d *decoder) fail(err error, what string) {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		d.err = errors.New(errors.CodeDecode, "truncated file summary reading "+what)
		return
	}
	d.err = errors.Wrap(err, errors.CodeDecode, "read "+what)
}

func (d *decoder) name() *string {
	if d.err != nil {
		return nil
	}
	v, err := binary.ReadUvarint(d.r)
	if err != nil {
		d.fail(err, "name handle")
		return nil
	}
	if v > math.MaxUint32 {
		d.err = errors.Newf(errors.CodeDecode, "name handle %d out of range", v)
		return nil
	}
	if uint32(v) == NullHandle {
		return nil
	}
	s, err := d.names.Name(uint32(v))
	if err != nil {
		d.err = errors.Wrap(err, errors.CodeDecode, "resolve name handle")
		return nil
	}
	return &s
}

func (d *decoder) boolean() bool {
	if d.err != nil {
		return false
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail(err, "script flag")
		return false
	}
	switch b {
	case 0:
		return false
	case 1:
		return true
	}
	d.err = errors.Newf(errors.CodeDecode, "invalid boolean byte 0x%02x", b)
	return false
}

func (d *decoder) int32() int32 {
	if d.err != nil {
		return 0
	}
	var raw [4]byte
	for i := range raw {
		b, err := d.r.ReadByte()
		if err != nil {
			d.fail(err, "part count")
			return 0
		}
		raw[i] = b
	}
	return int32(binary.BigEndian.Uint32(raw[:]))
}
