package fat

import (
	"encoding/binary"

	bitmap "github.com/boljen/go-bitmap"

	"tinyfat/ferrors"
)

// fatTable is the shared FAT sector buffer and entry codec for all three
// widths (§4.3). Every FAT read/write funnels through loadSector so only one
// sector is resident at a time; flush mirrors it into every additional FAT
// copy.
type fatTable struct {
	dev           BlockDevice
	typ           kind
	fatStart      int64
	sectorsPerFAT uint32
	numFATs       uint8
	clusterCount  uint32

	buf       [sectorSize]byte
	bufSector int64 // -1 when empty.
	dirty     bool

	lastAlloc    uint32
	freeClusters uint32 // freeClustersUnknown when not cached.

	// freeBitmap mirrors free/used state for clusters firstDataCluster..
	// clusterCount+firstDataCluster, one bit per cluster. Built lazily by the
	// first getFreeCount call that needs it, then kept in sync by every
	// writeEntry so later allocate scans don't have to re-read the FAT.
	freeBitmap bitmap.Bitmap
}

func (t *fatTable) eocThreshold() uint32 {
	switch t.typ {
	case kindFAT12:
		return 0x0FF8
	case kindFAT16:
		return 0xFFF8
	default:
		return 0x0FFFFFF8
	}
}

func (t *fatTable) isEOC(v uint32) bool { return v >= t.eocThreshold() }

func (t *fatTable) eocValue() uint32 {
	switch t.typ {
	case kindFAT12:
		return 0x0FFF
	case kindFAT16:
		return 0xFFFF
	default:
		return 0x0FFFFFFF
	}
}

// loadSector brings the absolute sector into the resident window, flushing
// a dirty window first if its identity changes.
func (t *fatTable) loadSector(sector int64) error {
	if sector == t.bufSector {
		return nil
	}
	if err := t.flush(); err != nil {
		return err
	}
	if _, err := t.dev.ReadBlocks(t.buf[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.table:load")
	}
	t.bufSector = sector
	return nil
}

// flush writes the resident window back if dirty, mirroring it into every
// additional FAT copy.
func (t *fatTable) flush() error {
	if !t.dirty {
		return nil
	}
	if _, err := t.dev.WriteBlocks(t.buf[:], t.bufSector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.table:flush")
	}
	offsetInFAT := t.bufSector - t.fatStart
	for i := uint8(1); i < t.numFATs; i++ {
		mirror := t.fatStart + int64(i)*int64(t.sectorsPerFAT) + offsetInFAT
		if _, err := t.dev.WriteBlocks(t.buf[:], mirror); err != nil {
			return ferrors.New(ferrors.WriteHW, "fat.table:mirror")
		}
	}
	t.dirty = false
	return nil
}

// readU16 and writeU16 handle the one case that can straddle two sectors:
// a FAT12 entry sitting at the last byte of a sector.
func (t *fatTable) readU16(byteOffset int64) (uint16, error) {
	sector := t.fatStart + byteOffset/sectorSize
	pos := int(byteOffset % sectorSize)
	if err := t.loadSector(sector); err != nil {
		return 0, err
	}
	lo := t.buf[pos]
	if pos == sectorSize-1 {
		var next [sectorSize]byte
		if _, err := t.dev.ReadBlocks(next[:], sector+1); err != nil {
			return 0, ferrors.New(ferrors.ReadHW, "fat.table:straddle read")
		}
		return uint16(lo) | uint16(next[0])<<8, nil
	}
	return uint16(lo) | uint16(t.buf[pos+1])<<8, nil
}

func (t *fatTable) writeU16(byteOffset int64, val uint16) error {
	sector := t.fatStart + byteOffset/sectorSize
	pos := int(byteOffset % sectorSize)
	if err := t.loadSector(sector); err != nil {
		return err
	}
	t.buf[pos] = byte(val)
	t.dirty = true
	if pos == sectorSize-1 {
		return t.writeStraddleByte(sector+1, byte(val>>8))
	}
	t.buf[pos+1] = byte(val >> 8)
	return nil
}

// writeStraddleByte updates byte 0 of the sector following the resident
// window, mirroring it into every additional FAT copy immediately since it
// falls outside the cached window.
func (t *fatTable) writeStraddleByte(sector int64, b byte) error {
	var next [sectorSize]byte
	if _, err := t.dev.ReadBlocks(next[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.table:straddle write")
	}
	next[0] = b
	if _, err := t.dev.WriteBlocks(next[:], sector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.table:straddle write")
	}
	offsetInFAT := sector - t.fatStart
	for i := uint8(1); i < t.numFATs; i++ {
		mirror := t.fatStart + int64(i)*int64(t.sectorsPerFAT) + offsetInFAT
		if _, err := t.dev.WriteBlocks(next[:], mirror); err != nil {
			return ferrors.New(ferrors.WriteHW, "fat.table:straddle mirror")
		}
	}
	return nil
}

// readEntry returns the raw FAT entry for cluster, per the type-specific
// packing in §4.3.
func (t *fatTable) readEntry(cluster uint32) (uint32, error) {
	switch t.typ {
	case kindFAT12:
		byteOff := int64(cluster) + int64(cluster)/2
		v, err := t.readU16(byteOff)
		if err != nil {
			return 0, err
		}
		if cluster&1 == 0 {
			return uint32(v & 0x0FFF), nil
		}
		return uint32(v >> 4), nil
	case kindFAT16:
		v, err := t.readU16(int64(cluster) * 2)
		return uint32(v), err
	default: // FAT32
		sector := t.fatStart + int64(cluster)*4/sectorSize
		pos := int(int64(cluster) * 4 % sectorSize)
		if err := t.loadSector(sector); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(t.buf[pos:]) & 0x0FFFFFFF, nil
	}
}

// writeEntry stores value for cluster, preserving the reserved top 4 bits
// of the previous FAT32 value as required by §4.3.
func (t *fatTable) writeEntry(cluster, value uint32) error {
	var err error
	switch t.typ {
	case kindFAT12:
		byteOff := int64(cluster) + int64(cluster)/2
		var old uint16
		old, err = t.readU16(byteOff)
		if err == nil {
			var v uint16
			if cluster&1 == 0 {
				v = (old & 0xF000) | uint16(value&0x0FFF)
			} else {
				v = (old & 0x000F) | uint16(value&0x0FFF)<<4
			}
			err = t.writeU16(byteOff, v)
		}
	case kindFAT16:
		err = t.writeU16(int64(cluster)*2, uint16(value))
	default: // FAT32
		sector := t.fatStart + int64(cluster)*4/sectorSize
		pos := int(int64(cluster) * 4 % sectorSize)
		if err = t.loadSector(sector); err == nil {
			old := binary.LittleEndian.Uint32(t.buf[pos:])
			updated := (old & 0xF0000000) | (value & 0x0FFFFFFF)
			binary.LittleEndian.PutUint32(t.buf[pos:], updated)
			t.dirty = true
		}
	}
	if err != nil {
		return err
	}
	t.markFree(cluster, value == 0)
	return nil
}

// ensureBitmap builds freeBitmap by scanning every entry once, the same scan
// getFreeCount used to do on every unknown-sentinel call. Once built it is
// maintained incrementally by markFree instead of being rebuilt.
func (t *fatTable) ensureBitmap() error {
	if t.freeBitmap != nil {
		return nil
	}
	bm := bitmap.Bitmap(bitmap.NewSlice(int(t.clusterCount)))
	var free uint32
	for c := uint32(firstDataCluster); c < t.clusterCount+firstDataCluster; c++ {
		v, err := t.readEntry(c)
		if err != nil {
			return err
		}
		isFree := v == 0
		bm.Set(int(c-firstDataCluster), isFree)
		if isFree {
			free++
		}
	}
	t.freeBitmap = bm
	if t.freeClusters == freeClustersUnknown {
		t.freeClusters = free
	}
	return nil
}

// markFree updates the cached free/used bit for cluster. A no-op until
// ensureBitmap has built the cache for the first time.
func (t *fatTable) markFree(cluster uint32, free bool) {
	if t.freeBitmap == nil {
		return
	}
	idx := int(cluster) - firstDataCluster
	if idx < 0 || uint32(idx) >= t.clusterCount {
		return
	}
	t.freeBitmap.Set(idx, free)
}

// allocate scans for a free cluster starting at lastAlloc+1, wrapping at
// clusterCount+2 back to firstDataCluster. If prev is nonzero, it is linked
// to the newly allocated cluster; the new cluster is written with the
// end-of-chain marker.
func (t *fatTable) allocate(prev uint32) (uint32, error) {
	limit := t.clusterCount + firstDataCluster
	start := t.lastAlloc + 1
	if start >= limit {
		start = firstDataCluster
	}
	cluster := start
	for scanned := uint32(0); scanned < t.clusterCount; scanned++ {
		var isFree bool
		if t.freeBitmap != nil {
			isFree = t.freeBitmap.Get(int(cluster) - firstDataCluster)
		} else {
			v, err := t.readEntry(cluster)
			if err != nil {
				return 0, err
			}
			isFree = v == 0
		}
		if isFree {
			if err := t.writeEntry(cluster, t.eocValue()); err != nil {
				return 0, err
			}
			if prev != 0 {
				if err := t.writeEntry(prev, cluster); err != nil {
					return 0, err
				}
			}
			t.lastAlloc = cluster
			if t.freeClusters != freeClustersUnknown && t.freeClusters > 0 {
				t.freeClusters--
			}
			return cluster, nil
		}
		cluster++
		if cluster >= limit {
			cluster = firstDataCluster
		}
	}
	return 0, ferrors.New(ferrors.Full, "fat.table:allocate")
}

// freeChain walks from head, zeroing each entry, until an end-of-chain
// marker or a reserved cluster value is reached. The chain is first walked
// once without modification, so a cycle is reported as FatCorrupt before any
// entry is freed.
func (t *fatTable) freeChain(head uint32) error {
	for c, steps := head, uint32(0); c >= firstDataCluster && !t.isEOC(c); steps++ {
		if steps > t.clusterCount {
			return ferrors.New(ferrors.FatCorrupt, "fat.table:freeChain cycle")
		}
		next, err := t.readEntry(c)
		if err != nil {
			return err
		}
		c = next
	}
	cluster := head
	for steps := uint32(0); cluster >= firstDataCluster; steps++ {
		if steps > t.clusterCount {
			return ferrors.New(ferrors.FatCorrupt, "fat.table:freeChain cycle")
		}
		next, err := t.readEntry(cluster)
		if err != nil {
			return err
		}
		if err := t.writeEntry(cluster, 0); err != nil {
			return err
		}
		if t.freeClusters != freeClustersUnknown {
			t.freeClusters++
		}
		if t.isEOC(next) {
			break
		}
		cluster = next
	}
	return nil
}

// getFreeCount returns the cached free-cluster count, scanning the whole
// table once lazily if it is not yet known.
func (t *fatTable) getFreeCount() (uint32, error) {
	if t.freeClusters != freeClustersUnknown {
		return t.freeClusters, nil
	}
	if err := t.ensureBitmap(); err != nil {
		// A transient I/O error aborts the scan; report the unknown sentinel
		// rather than fail the caller, the same tolerance readEntry callers
		// elsewhere in this table get from a lazily-rebuilt cache.
		return freeClustersUnknown, nil
	}
	return t.freeClusters, nil
}
