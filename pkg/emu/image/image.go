// Package image reads and writes the NACHO program image format, the
// container for guest code, data and the import table that names every
// symbolic call target.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/nacholabs/nacho/pkg/utils"
)

var ErrBadImage = errors.New("malformed program image")

// Magic bytes opening every program image
var Magic = [4]byte{'N', 'C', 'H', 'O'}

// Version of the image format implemented by this package
const Version uint16 = 1

// Image is a parsed program image: code and data sections with their load
// addresses, the entry point, and the import table mapping call slots to
// symbol names.
type Image struct {
	Entry    uint64
	CodeBase uint64
	Code     []byte
	DataBase uint64
	Data     []byte
	Imports  []string
}

// ImportName resolves an import slot to its symbol name
func (img *Image) ImportName(slot uint32) (string, error) {
	if int(slot) >= len(img.Imports) {
		return "", utils.MakeError(ErrBadImage, "import slot %d out of range (%d imports)", slot, len(img.Imports))
	}
	return img.Imports[slot], nil
}

// ImportSlot resolves a symbol name to its import slot
func (img *Image) ImportSlot(name string) (uint32, bool) {
	for slot, importName := range img.Imports {
		if importName == name {
			return uint32(slot), true
		}
	}
	return 0, false
}

// Parse decodes a program image from its binary representation
func Parse(data []byte) (*Image, error) {
	r := &reader{data: data}
	img := &Image{}

	var magic [4]byte
	if err := r.read(&magic, "magic"); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, utils.MakeError(ErrBadImage, "bad magic %q", magic[:])
	}

	var version uint16
	if err := r.read(&version, "version"); err != nil {
		return nil, err
	}
	if version != Version {
		return nil, utils.MakeError(ErrBadImage, "unsupported version %d", version)
	}

	var entry, codeBase, dataBase uint32
	if err := r.read(&entry, "entry"); err != nil {
		return nil, err
	}
	if err := r.read(&codeBase, "code base"); err != nil {
		return nil, err
	}

	code, err := r.readSection("code")
	if err != nil {
		return nil, err
	}

	if err := r.read(&dataBase, "data base"); err != nil {
		return nil, err
	}

	section, err := r.readSection("data")
	if err != nil {
		return nil, err
	}

	var importCount uint16
	if err := r.read(&importCount, "import count"); err != nil {
		return nil, err
	}

	imports := make([]string, importCount)
	for i := range imports {
		var nameLen uint16
		if err := r.read(&nameLen, "import name length"); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if err := r.read(name, "import name"); err != nil {
			return nil, err
		}
		imports[i] = string(name)
	}

	img.Entry = uint64(entry)
	img.CodeBase = uint64(codeBase)
	img.Code = code
	img.DataBase = uint64(dataBase)
	img.Data = section
	img.Imports = imports

	if img.Entry < img.CodeBase || img.Entry >= img.CodeBase+uint64(len(img.Code)) {
		return nil, utils.MakeError(ErrBadImage, "entry 0x%08X outside code section", img.Entry)
	}

	return img, nil
}

// Encode writes the binary representation of the image
func (img *Image) Encode() []byte {
	var buf bytes.Buffer

	buf.Write(Magic[:])
	write(&buf, Version)
	write(&buf, uint32(img.Entry))
	write(&buf, uint32(img.CodeBase))
	write(&buf, uint32(len(img.Code)))
	buf.Write(img.Code)
	write(&buf, uint32(img.DataBase))
	write(&buf, uint32(len(img.Data)))
	buf.Write(img.Data)
	write(&buf, uint16(len(img.Imports)))
	for _, name := range img.Imports {
		write(&buf, uint16(len(name)))
		buf.WriteString(name)
	}

	return buf.Bytes()
}

func write(buf *bytes.Buffer, value any) {
	// bytes.Buffer writes never fail
	_ = binary.Write(buf, binary.LittleEndian, value)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) read(out any, field string) error {
	rest := bytes.NewReader(r.data[min(r.pos, len(r.data)):])
	before := rest.Len()

	if err := binary.Read(rest, binary.LittleEndian, out); err != nil {
		return utils.MakeError(ErrBadImage, "truncated %s at offset %d", field, r.pos)
	}

	r.pos += before - rest.Len()
	return nil
}

func (r *reader) readSection(name string) ([]byte, error) {
	var length uint32
	if err := r.read(&length, name+" length"); err != nil {
		return nil, err
	}
	if r.pos+int(length) > len(r.data) {
		return nil, utils.MakeError(ErrBadImage, "truncated %s section at offset %d", name, r.pos)
	}
	section := make([]byte, length)
	copy(section, r.data[r.pos:])
	r.pos += int(length)
	return section, nil
}
