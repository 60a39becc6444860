package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/3leaps/appimage-installer/internal/model"
)

var (
	elfMagic      = []byte("\x7fELF")
	squashfsMagic = []byte("hsqs")
)

const (
	elfClass32   = 1
	elfClass64   = 2
	elfDataLSB   = 1
	elfDataMSB   = 2
	appImageType = 2
)

// ImageOffset returns where the filesystem image starts inside an AppImage.
// A type 2 AppImage is an ELF runtime followed directly by a squashfs image,
// and the runtime ends with its section header table.
func ImageOffset(r io.ReaderAt) (int64, error) {
	var hdr [64]byte
	n, err := r.ReadAt(hdr[:], 0)
	if n < 52 {
		if err == nil || err == io.EOF {
			return 0, fmt.Errorf("%w: file too short for an ELF header", model.ErrMalformedArchive)
		}
		return 0, fmt.Errorf("%w: read header: %w", model.ErrUnreadableArchive, err)
	}

	if !bytes.Equal(hdr[:4], elfMagic) {
		return 0, fmt.Errorf("%w: not an ELF executable", model.ErrMalformedArchive)
	}
	if hdr[8] != 'A' || hdr[9] != 'I' {
		return 0, fmt.Errorf("%w: no AppImage magic", model.ErrMalformedArchive)
	}
	if hdr[10] != appImageType {
		return 0, fmt.Errorf("%w: unsupported AppImage type %d", model.ErrMalformedArchive, hdr[10])
	}

	var order binary.ByteOrder
	switch hdr[5] {
	case elfDataLSB:
		order = binary.LittleEndian
	case elfDataMSB:
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("%w: unknown ELF byte order %d", model.ErrMalformedArchive, hdr[5])
	}

	var shoff, shentsize, shnum uint64
	switch hdr[4] {
	case elfClass32:
		shoff = uint64(order.Uint32(hdr[0x20:]))
		shentsize = uint64(order.Uint16(hdr[0x2E:]))
		shnum = uint64(order.Uint16(hdr[0x30:]))
	case elfClass64:
		if n < 64 {
			return 0, fmt.Errorf("%w: truncated ELF64 header", model.ErrMalformedArchive)
		}
		shoff = order.Uint64(hdr[0x28:])
		shentsize = uint64(order.Uint16(hdr[0x3A:]))
		shnum = uint64(order.Uint16(hdr[0x3C:]))
	default:
		return 0, fmt.Errorf("%w: unknown ELF class %d", model.ErrMalformedArchive, hdr[4])
	}

	end := shoff + shentsize*shnum
	if end == 0 || end > 1<<40 {
		return 0, fmt.Errorf("%w: implausible runtime size %d", model.ErrMalformedArchive, end)
	}

	var magic [4]byte
	if _, err := r.ReadAt(magic[:], int64(end)); err != nil { // #nosec G115 -- bounded above
		return 0, fmt.Errorf("%w: no filesystem image after runtime", model.ErrMalformedArchive)
	}
	if !bytes.Equal(magic[:], squashfsMagic) {
		return 0, fmt.Errorf("%w: no squashfs image at offset %d", model.ErrMalformedArchive, end)
	}
	return int64(end), nil // #nosec G115 -- bounded above
}

// Assemble writes an AppImage made of runtime and image, stamping the type 2
// magic into the runtime's ELF identification padding. It is used to build
// fixtures; runtime must be an ELF file whose section header table is its
// last structure.
func Assemble(w io.Writer, runtime []byte, image io.Reader) error {
	if len(runtime) < 64 || !bytes.Equal(runtime[:4], elfMagic) {
		return fmt.Errorf("runtime is not an ELF file")
	}
	head := append([]byte(nil), runtime...)
	head[8], head[9], head[10] = 'A', 'I', appImageType

	end, err := runtimeEnd(head)
	if err != nil {
		return err
	}
	if end > int64(len(head)) {
		return fmt.Errorf("runtime section table ends at %d beyond file size %d", end, len(head))
	}
	if _, err := w.Write(head[:end]); err != nil {
		return fmt.Errorf("write runtime: %w", err)
	}
	if _, err := io.Copy(w, image); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

func runtimeEnd(hdr []byte) (int64, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if hdr[5] == elfDataMSB {
		order = binary.BigEndian
	}
	switch hdr[4] {
	case elfClass32:
		return int64(order.Uint32(hdr[0x20:])) + int64(order.Uint16(hdr[0x2E:]))*int64(order.Uint16(hdr[0x30:])), nil
	case elfClass64:
		return int64(order.Uint64(hdr[0x28:])) + int64(order.Uint16(hdr[0x3A:]))*int64(order.Uint16(hdr[0x3C:])), nil // #nosec G115 -- fixture input
	default:
		return 0, fmt.Errorf("unknown ELF class %d", hdr[4])
	}
}
