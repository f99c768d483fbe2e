package memory

import (
	"errors"
	"fmt"
	"os"
)

// FileMemory stores pages in a single file. The file length is always a
// whole number of pages; growing the memory extends the file with zeros.
type FileMemory struct {
	file     *os.File
	path     string
	numPages uint64
}

// OpenFile opens the memory image at path, creating an empty one when the
// file does not exist.
func OpenFile(path string) (*FileMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if errors.Is(err, os.ErrNotExist) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	}

	if err != nil {
		return nil, fmt.Errorf("OpenFile %s: %w", path, err)
	}

	info, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		return nil, fmt.Errorf("OpenFile %s: stat: %w", path, statErr)
	}

	size := uint64(info.Size())
	if size%PageSize != 0 {
		f.Close()
		return nil, fmt.Errorf("OpenFile %s: size %d is not a page multiple: %w", path, size, ErrCorruption)
	}

	return &FileMemory{
		file:     f,
		path:     path,
		numPages: size / PageSize,
	}, nil
}

func (fm *FileMemory) Path() string {
	return fm.path
}

func (fm *FileMemory) Size() uint64 {
	return fm.numPages
}

func (fm *FileMemory) Grow(pages uint64) (uint64, error) {
	prev := fm.numPages
	if err := checkGrowth(prev, pages); err != nil {
		return 0, err
	}
	if fm.file == nil {
		return 0, fmt.Errorf("grow %s: %w", fm.path, ErrClosed)
	}
	if pages == 0 {
		return prev, nil
	}

	if err := fm.file.Truncate(int64((prev + pages) * PageSize)); err != nil {
		return 0, fmt.Errorf("grow %s: %v: %w", fm.path, err, ErrGrowthExhausted)
	}

	fm.numPages = prev + pages
	return prev, nil
}

func (fm *FileMemory) Read(offset uint64, dst []byte) {
	checkBounds(offset, len(dst), fm.numPages)
	if len(dst) == 0 {
		return
	}

	if _, err := fm.file.ReadAt(dst, int64(offset)); err != nil {
		panic(&IOError{Op: fmt.Sprintf("read %s at %d", fm.path, offset), Err: err})
	}
}

func (fm *FileMemory) Write(offset uint64, src []byte) {
	checkBounds(offset, len(src), fm.numPages)
	if len(src) == 0 {
		return
	}

	if _, err := fm.file.WriteAt(src, int64(offset)); err != nil {
		panic(&IOError{Op: fmt.Sprintf("write %s at %d", fm.path, offset), Err: err})
	}
}

func (fm *FileMemory) Sync() error {
	if fm.file == nil {
		return ErrClosed
	}
	return fm.file.Sync()
}

func (fm *FileMemory) Close() error {
	if fm.file == nil {
		return nil
	}

	err := fm.file.Sync()
	if cErr := fm.file.Close(); err == nil {
		err = cErr
	}
	fm.file = nil
	return err
}
