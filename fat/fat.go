// Package fat implements a FAT12/16/32 volume engine on top of a sector
// addressable block device: boot-record parsing, FAT table decoding and
// mutation, directory-entry iteration with Long File Name assembly, path
// resolution, and byte-granular file read/write with write-back sector
// buffering.
//
// The engine is platform agnostic: it only requires a BlockDevice, a small
// interface satisfied by package card's *Card (and by MemDisk for tests).
package fat

import (
	"log/slog"
	"time"

	"tinyfat/ferrors"
)

// slogLevelTrace is a synthetic level below Debug; the mount summary is
// logged at this level.
const slogLevelTrace = slog.LevelDebug - 2

// Clock is the optional wall-clock hint a BlockDevice may implement (package
// card's *Card delegates to its link.Link's hint; MemDisk does not implement
// it). Directory-entry timestamping uses it when present and falls back to
// the fixed epoch 2000-01-01T00:00:00 otherwise, mirroring link.Clock's
// default so the engine never depends on a host OS clock.
type Clock interface {
	Now() (year, month, day, hour, min, sec int)
}

// BlockDevice is the sector-addressable storage this package requires. It is
// satisfied structurally by package card's *Card and by MemDisk.
type BlockDevice interface {
	// ReadBlocks reads len(dst)/sectorSize consecutive sectors starting at
	// startBlock into dst.
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	// WriteBlocks writes len(data)/sectorSize consecutive sectors starting
	// at startBlock.
	WriteBlocks(data []byte, startBlock int64) (int, error)
	// SectorCount reports the total addressable sectors on the device.
	SectorCount() int64
}

const (
	sectorSize   = 512
	dirEntrySize = 32

	// firstDataCluster is the lowest valid cluster number; 0 and 1 are
	// reserved and never allocated.
	firstDataCluster = 2

	// freeClustersUnknown is the sentinel cached free-cluster count meaning
	// "not yet computed".
	freeClustersUnknown = 0xFFFFFFFF
)

type kind uint8

const (
	kindUnknown kind = iota
	kindFAT12
	kindFAT16
	kindFAT32
)

func (k kind) String() string {
	switch k {
	case kindFAT12:
		return "FAT12"
	case kindFAT16:
		return "FAT16"
	case kindFAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// Volume holds the mounted state of one FAT filesystem: its geometry, the
// shared FAT sector buffer, and current-working-directory.
type Volume struct {
	dev BlockDevice
	log *slog.Logger

	mounted  bool
	readOnly bool
	typ      kind

	partitionStart int64

	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntryCount    uint16
	totalSectors      uint32
	sectorsPerFAT     uint32
	rootCluster       uint32 // FAT32 only.

	fatStartSector  int64
	rootStartSector int64
	dataStartSector int64
	rootSectorCount int64 // FAT12/16 fixed root, in sectors.

	clusterCount uint32
	clusterSize  uint32

	label  [11]byte
	serial uint32

	// cwdCluster of 0 means the FAT12/16 fixed root; for FAT32 the root is
	// rootCluster, never 0.
	cwdCluster uint32
	cwdPath    string

	table fatTable
}

// New constructs an unmounted Volume. Call Mount before any other operation.
func New(dev BlockDevice) *Volume {
	return &Volume{
		dev: dev,
		log: slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	}
}

// SetLogger attaches a structured logger. Each successful mount logs one
// trace-level record; FAT table and cluster-walk activity is not logged.
func (v *Volume) SetLogger(log *slog.Logger) { v.log = log }

// IsMounted reports whether Mount has completed successfully.
func (v *Volume) IsMounted() bool { return v.mounted }

// Type returns the FAT width decided at mount time.
func (v *Volume) Type() string { return v.typ.String() }

// Label returns the volume label, trimmed of trailing spaces.
func (v *Volume) Label() string { return trimSpaces(v.label[:]) }

// SerialNumber returns the 32-bit volume serial recorded in the boot sector.
func (v *Volume) SerialNumber() uint32 { return v.serial }

// ClusterSize returns the allocation unit size in bytes.
func (v *Volume) ClusterSize() uint32 { return v.clusterSize }

// ClusterCount returns the number of addressable data clusters.
func (v *Volume) ClusterCount() uint32 { return v.clusterCount }

// Mount parses the MBR/BPB on dev, derives the volume geometry, decides the
// FAT width, and leaves the volume positioned at its root directory.
func (v *Volume) Mount(dev BlockDevice, readOnly bool) error {
	if v.mounted {
		return ferrors.New(ferrors.AlreadyMounted, "fat.Mount")
	}
	v.dev = dev
	v.readOnly = readOnly
	if err := v.mountVolume(); err != nil {
		return err
	}
	v.mounted = true
	if v.typ == kindFAT32 {
		v.cwdCluster = v.rootCluster
	} else {
		v.cwdCluster = 0
	}
	v.cwdPath = "/"
	return nil
}

// Unmount flushes the shared FAT sector buffer (including mirror copies)
// and clears the mounted flag.
func (v *Volume) Unmount() error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Unmount")
	}
	if err := v.table.flush(); err != nil {
		return err
	}
	v.mounted = false
	return nil
}

// Sync flushes the shared FAT sector buffer without clearing the mounted flag.
func (v *Volume) Sync() error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Sync")
	}
	return v.table.flush()
}

// FreeBytes reports the number of unallocated bytes on the volume, scanning
// the FAT lazily the first time it is needed.
func (v *Volume) FreeBytes() (int64, error) {
	if !v.mounted {
		return 0, ferrors.New(ferrors.NotMounted, "fat.FreeBytes")
	}
	free, err := v.table.getFreeCount()
	if err != nil {
		return 0, err
	}
	if free == freeClustersUnknown {
		return 0, ferrors.New(ferrors.ReadHW, "fat.FreeBytes")
	}
	return int64(free) * int64(v.clusterSize), nil
}

// now returns the current timestamp for directory-entry stamping, taken
// from the underlying BlockDevice's Clock hint if it implements one, or the
// fixed epoch 2000-01-01T00:00:00 otherwise (§6, link.Clock default).
func (v *Volume) now() time.Time {
	clk, ok := v.dev.(Clock)
	if !ok {
		return time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	y, mo, d, h, mi, s := clk.Now()
	return time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC)
}

func (v *Volume) clusterToSector(cluster uint32) int64 {
	return v.dataStartSector + int64(cluster-firstDataCluster)*int64(v.sectorsPerCluster)
}

func trimSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
