package ctrdecrypt

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// BlockDevice is a sector-addressed storage device.
type BlockDevice interface {
	io.ReaderAt
	// ReadSectors fills buf, whose length must be a multiple of the sector size, starting at the
	// given sector.
	ReadSectors(start int64, buf []byte) error
	// WriteSectors writes buf, whose length must be a multiple of the sector size, starting at
	// the given sector.
	WriteSectors(start int64, buf []byte) error
	SectorSize() int64
	Size() int64
}

// ReadWriterAt is what an image needs to back a BlockDevice. Write access is optional.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// ImageDevice is a BlockDevice backed by a raw NAND image or a raw device node.
type ImageDevice struct {
	rw         ReadWriterAt
	size       int64
	sectorSize int64
}

var _ BlockDevice = &ImageDevice{}

// NewImageDevice over rw, holding size bytes.
func NewImageDevice(rw ReadWriterAt, size, sectorSize int64) (*ImageDevice, error) {
	if sectorSize <= 0 {
		return nil, fmt.Errorf("device: invalid sector size %d", sectorSize)
	}
	if size%sectorSize != 0 {
		return nil, fmt.Errorf("device: size 0x%x is not a multiple of the sector size", size)
	}
	return &ImageDevice{rw: rw, size: size, sectorSize: sectorSize}, nil
}

// OpenImage opens a raw NAND image through fs.
func OpenImage(fs afero.Fs, name string, writable bool, sectorSize int64) (*ImageDevice, afero.File, error) {
	var file afero.File
	var err error
	if writable {
		file, err = fs.OpenFile(name, os.O_RDWR, 0)
	} else {
		file, err = fs.Open(name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("device: failed to open %s: %w", name, err)
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("device: failed to get size of %s: %w", name, err)
	}

	dev, err := NewImageDevice(file, size, sectorSize)
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return dev, file, nil
}

func (d *ImageDevice) checkRange(start int64, buf []byte) error {
	if int64(len(buf))%d.sectorSize != 0 {
		return fmt.Errorf("device: buffer size 0x%x is not a multiple of the sector size", len(buf))
	}
	if start < 0 || int64(len(buf)) > d.size || start > (d.size-int64(len(buf)))/d.sectorSize {
		return fmt.Errorf("device: sectors 0x%x+0x%x out of range", start, int64(len(buf))/d.sectorSize)
	}
	return nil
}

// ReadAt implements io.ReaderAt.
func (d *ImageDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= d.size {
		return 0, io.EOF
	}
	if remaining := d.size - off; int64(len(p)) > remaining {
		n, err := d.rw.ReadAt(p[:remaining], off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return d.rw.ReadAt(p, off)
}

// ReadSectors implements BlockDevice.
func (d *ImageDevice) ReadSectors(start int64, buf []byte) error {
	if err := d.checkRange(start, buf); err != nil {
		return err
	}
	n, err := d.rw.ReadAt(buf, start*d.sectorSize)
	if err != nil && n < len(buf) {
		return fmt.Errorf("device: failed to read sectors at 0x%x: %w", start, err)
	}
	return nil
}

// WriteSectors implements BlockDevice.
func (d *ImageDevice) WriteSectors(start int64, buf []byte) error {
	if err := d.checkRange(start, buf); err != nil {
		return err
	}
	if _, err := d.rw.WriteAt(buf, start*d.sectorSize); err != nil {
		return fmt.Errorf("device: failed to write sectors at 0x%x: %w", start, err)
	}
	return nil
}

// SectorSize implements BlockDevice.
func (d *ImageDevice) SectorSize() int64 {
	return d.sectorSize
}

// Size implements BlockDevice.
func (d *ImageDevice) Size() int64 {
	return d.size
}
