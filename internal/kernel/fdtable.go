package kernel

import (
	"fmt"
	"io"
	"os"
)

// Standard descriptor numbers, pre-populated at construction per spec.md
// §3.
const (
	FDStdin  uint64 = 0
	FDStdout uint64 = 1
	FDStderr uint64 = 2

	firstDynamicFD uint64 = 3
)

type descriptor struct {
	std  bool
	file *os.File
}

// fdTable maps 64-bit guest descriptors to host files, per spec.md §3/§4.5.
type fdTable struct {
	entries map[uint64]*descriptor
	next    uint64

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newFDTable(stdin io.Reader, stdout, stderr io.Writer) *fdTable {
	return &fdTable{
		entries: map[uint64]*descriptor{
			FDStdin:  {std: true},
			FDStdout: {std: true},
			FDStderr: {std: true},
		},
		next:   firstDynamicFD,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

func (t *fdTable) open(path string) (uint64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, newError(ErrIOFailure, fmt.Sprintf("open %q: %s", path, err))
	}
	fd := t.next
	t.next++
	t.entries[fd] = &descriptor{file: f}
	return fd, nil
}

func (t *fdTable) lookup(fd uint64) (*descriptor, error) {
	d, ok := t.entries[fd]
	if !ok {
		return nil, newError(ErrBadFd, fmt.Sprintf("fd %d is not open", fd))
	}
	return d, nil
}

func (t *fdTable) write(fd uint64, data []byte) error {
	d, err := t.lookup(fd)
	if err != nil {
		return err
	}
	switch {
	case fd == FDStdout:
		_, werr := t.stdout.Write(data)
		if werr != nil {
			return newError(ErrIOFailure, werr.Error())
		}
	case fd == FDStderr:
		_, werr := t.stderr.Write(data)
		if werr != nil {
			return newError(ErrIOFailure, werr.Error())
		}
	case fd == FDStdin:
		return newError(ErrIOFailure, "stdin is not writable")
	case d.file != nil:
		if _, werr := d.file.Write(data); werr != nil {
			return newError(ErrIOFailure, werr.Error())
		}
	}
	return nil
}

func (t *fdTable) read(fd uint64, buf []byte) (int, error) {
	d, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	switch {
	case fd == FDStdin:
		n, rerr := t.stdin.Read(buf)
		if rerr != nil && rerr != io.EOF {
			return n, newError(ErrIOFailure, rerr.Error())
		}
		return n, nil
	case fd == FDStdout || fd == FDStderr:
		return 0, newError(ErrIOFailure, "standard output descriptors are not readable")
	case d.file != nil:
		n, rerr := d.file.Read(buf)
		if rerr != nil && rerr != io.EOF {
			return n, newError(ErrIOFailure, rerr.Error())
		}
		return n, nil
	}
	return 0, newError(ErrBadFd, fmt.Sprintf("fd %d has no backing file", fd))
}

func (t *fdTable) seek(fd uint64, offset int64, whence int) (int64, error) {
	d, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	if d.std {
		return 0, newError(ErrIOFailure, fmt.Sprintf("seek is not supported on standard fd %d", fd))
	}
	pos, serr := d.file.Seek(offset, whence)
	if serr != nil {
		return 0, newError(ErrIOFailure, serr.Error())
	}
	return pos, nil
}

func (t *fdTable) close(fd uint64) error {
	if fd == FDStdin || fd == FDStdout || fd == FDStderr {
		return newError(ErrClosedStandardFd, fmt.Sprintf("fd %d", fd))
	}
	d, err := t.lookup(fd)
	if err != nil {
		return err
	}
	if d.file != nil {
		if cerr := d.file.Close(); cerr != nil {
			return newError(ErrIOFailure, cerr.Error())
		}
	}
	delete(t.entries, fd)
	return nil
}

func (t *fdTable) length(fd uint64) (int64, error) {
	d, err := t.lookup(fd)
	if err != nil {
		return 0, err
	}
	if d.std {
		return 0, newError(ErrIOFailure, fmt.Sprintf("file_length is not supported on standard fd %d", fd))
	}
	info, serr := d.file.Stat()
	if serr != nil {
		return 0, newError(ErrIOFailure, serr.Error())
	}
	return info.Size(), nil
}

// closeAll releases every open non-standard file handle, for machine
// shutdown (spec.md §5 resource release).
func (t *fdTable) closeAll() {
	for fd, d := range t.entries {
		if !d.std && d.file != nil {
			d.file.Close()
			delete(t.entries, fd)
		}
	}
}
