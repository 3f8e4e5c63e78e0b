package fat

import (
	"fmt"
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// MemDisk is an in-memory BlockDevice, used by this package's own tests and
// by callers exercising the engine without real hardware. It adapts a flat
// byte slice to block-addressed I/O through an io.ReadWriteSeeker rather
// than slicing a buffer by hand, the same wrapping a block cache uses to
// turn a []byte into a seekable stream.
type MemDisk struct {
	stream  io.ReadWriteSeeker
	sectors int64
}

// NewMemDisk allocates a zeroed MemDisk sized for numSectors 512-byte
// sectors.
func NewMemDisk(numSectors int64) *MemDisk {
	return NewMemDiskFromImage(make([]byte, numSectors*sectorSize))
}

// NewMemDiskFromImage wraps an existing disk image (its length must be a
// multiple of the sector size), letting callers load a prebuilt image
// without copying it sector by sector.
func NewMemDiskFromImage(data []byte) *MemDisk {
	return &MemDisk{
		stream:  bytesextra.NewReadWriteSeeker(data),
		sectors: int64(len(data)) / sectorSize,
	}
}

func (m *MemDisk) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if len(dst)%sectorSize != 0 {
		return 0, fmt.Errorf("fat.MemDisk: dst size %d not a multiple of sector size", len(dst))
	}
	off := startBlock * sectorSize
	end := off + int64(len(dst))
	if startBlock < 0 || end > m.sectors*sectorSize {
		return 0, fmt.Errorf("fat.MemDisk: read [%d:%d) out of range (len %d)", off, end, m.sectors*sectorSize)
	}
	if _, err := m.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(m.stream, dst)
}

func (m *MemDisk) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if len(data)%sectorSize != 0 {
		return 0, fmt.Errorf("fat.MemDisk: data size %d not a multiple of sector size", len(data))
	}
	off := startBlock * sectorSize
	end := off + int64(len(data))
	if startBlock < 0 || end > m.sectors*sectorSize {
		return 0, fmt.Errorf("fat.MemDisk: write [%d:%d) out of range (len %d)", off, end, m.sectors*sectorSize)
	}
	if _, err := m.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return m.stream.Write(data)
}

func (m *MemDisk) SectorCount() int64 { return m.sectors }
