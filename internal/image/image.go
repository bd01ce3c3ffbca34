// Package image parses the NISVC-EF executable container (spec.md §6) into
// a ready-to-map image: the concatenated static-data and program-rom bytes
// plus the entry point address.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the fixed 8-byte ASCII signature every NISVC-EF file begins
// with.
var Magic = []byte("NISVC-EF")

const headerSize = 8 + 8 + 8 + 8 // magic + static_len + program_len + entry_point

// Sentinel errors for the LoadError taxonomy (spec.md §7).
var (
	ErrBadSignature   = errors.New("bad signature")
	ErrTruncatedImage = errors.New("truncated image")
	ErrImageTooLarge  = errors.New("image too large")
)

// Error wraps a LoadError sentinel with a human-readable detail, matching
// spec.md §7's "<phase>: <kind>: <message>" diagnostic shape.
type Error struct {
	sentinel error
	detail   string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.sentinel, e.detail) }
func (e *Error) Unwrap() error { return e.sentinel }

// Image is the parsed, mappable result of loading a NISVC-EF file.
type Image struct {
	EntryPoint uint64
	// Bytes is static-data bytes followed by program-rom bytes, ready to be
	// written starting at address 0 of a memory.Memory.
	Bytes []byte
	StaticLen uint64
	ProgramLen uint64
}

// Parse validates and decodes raw as a NISVC-EF container. maxSize bounds
// the image against the configured physical memory size (ImageTooLarge).
func Parse(raw []byte, maxSize uint64) (*Image, error) {
	if len(raw) < headerSize {
		return nil, &Error{ErrTruncatedImage, fmt.Sprintf("file is %d bytes, shorter than the %d-byte header", len(raw), headerSize)}
	}
	if !bytes.Equal(raw[:8], Magic) {
		return nil, &Error{ErrBadSignature, fmt.Sprintf("expected %q, got %q", Magic, raw[:8])}
	}

	staticLen := binary.LittleEndian.Uint64(raw[8:16])
	programLen := binary.LittleEndian.Uint64(raw[16:24])
	entryPoint := binary.LittleEndian.Uint64(raw[24:32])

	// original_source/src/loader.rs additionally guards the section-length
	// sum against overflow before comparing to the file length; spec.md is
	// silent on this, so we follow the original (SPEC_FULL.md §4.11).
	total := staticLen + programLen
	if total < staticLen || total < programLen {
		return nil, &Error{ErrTruncatedImage, "static_len + program_len overflows"}
	}

	need := uint64(headerSize) + total
	if need < total || uint64(len(raw)) < need {
		return nil, &Error{ErrTruncatedImage, fmt.Sprintf("header claims %d section bytes but file has only %d bytes past the header", total, uint64(len(raw))-headerSize)}
	}

	if total > maxSize {
		return nil, &Error{ErrImageTooLarge, fmt.Sprintf("image of %d bytes exceeds configured memory size %d", total, maxSize)}
	}
	if entryPoint >= total {
		return nil, &Error{ErrTruncatedImage, fmt.Sprintf("entry point 0x%x falls outside the %d-byte image", entryPoint, total)}
	}

	body := make([]byte, total)
	copy(body, raw[headerSize:headerSize+total])

	return &Image{
		EntryPoint: entryPoint,
		Bytes:      body,
		StaticLen:  staticLen,
		ProgramLen: programLen,
	}, nil
}

// Serialize encodes static and program bytes plus an entry point into a
// NISVC-EF container, the inverse of Parse. Used by tests to construct
// fixture images without depending on an external assembler.
func Serialize(static, program []byte, entryPoint uint64) []byte {
	out := make([]byte, 0, headerSize+len(static)+len(program))
	out = append(out, Magic...)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(static)))
	out = append(out, lenBuf[:]...)
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(program)))
	out = append(out, lenBuf[:]...)
	binary.LittleEndian.PutUint64(lenBuf[:], entryPoint)
	out = append(out, lenBuf[:]...)

	out = append(out, static...)
	out = append(out, program...)
	return out
}
