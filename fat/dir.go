package fat

import (
	"encoding/binary"

	"tinyfat/ferrors"
	"tinyfat/internal/utf16x"
)

// Entry is one resolved directory entry: a short name plus, if present, its
// assembled Long File Name.
type Entry struct {
	Name      string // LFN when available, otherwise the lower-cased 8.3 name.
	ShortName string
	Attr      byte
	Size      uint32
	Cluster   uint32

	// sector/offset locate the 8.3 slot on disk, for callers that need to
	// rewrite it in place (unlink, rename, close).
	sector int64
	offset int
}

func (e Entry) IsDir() bool { return e.Attr&attrDirectory != 0 }

// dirCursor iterates the 32-byte slots of one directory, across sector and
// cluster boundaries, assembling LFN fragments into names (§4.4).
type dirCursor struct {
	vol *Volume

	fixedRoot  bool
	fixedIndex int64 // sector index within the fixed FAT12/16 root run.

	cluster         uint32
	sectorInCluster uint8

	buf     [sectorSize]byte
	loaded  bool
	sector  int64
	slot    int // next slot of the current sector that next() examines.
	atEnd   bool

	lfnName        [256]uint16
	lfnLen         int
	lfnChecksum    byte
	lfnExpectedOrd int // 0 means no active run.
	lfnValid       bool

	clusterSteps uint32 // clusters visited so far, bounds cyclic chains.
}

// newDirCursor returns a cursor over the directory whose first cluster is
// cluster. cluster == 0 on a non-FAT32 volume selects the fixed root run.
func newDirCursor(v *Volume, cluster uint32) *dirCursor {
	c := &dirCursor{vol: v}
	if cluster == 0 && v.typ != kindFAT32 {
		c.fixedRoot = true
	} else {
		c.cluster = cluster
	}
	return c
}

func (c *dirCursor) currentSector() int64 {
	if c.fixedRoot {
		return c.vol.rootStartSector + c.fixedIndex
	}
	return c.vol.clusterToSector(c.cluster) + int64(c.sectorInCluster)
}

func (c *dirCursor) loadSector() error {
	sector := c.currentSector()
	if c.loaded && sector == c.sector {
		return nil
	}
	if _, err := c.vol.dev.ReadBlocks(c.buf[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.dir:load")
	}
	c.sector = sector
	c.loaded = true
	return nil
}

func (c *dirCursor) writeSector() error {
	if _, err := c.vol.dev.WriteBlocks(c.buf[:], c.sector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.dir:write")
	}
	return nil
}

// advance moves to the next sector, returning ferrors.Eof when the
// directory's sector run or cluster chain is exhausted.
func (c *dirCursor) advance() error {
	if c.fixedRoot {
		c.fixedIndex++
		if c.fixedIndex >= c.vol.rootSectorCount {
			c.atEnd = true
			return ferrors.New(ferrors.Eof, "fat.dir:advance")
		}
		return nil
	}
	c.sectorInCluster++
	if c.sectorInCluster < c.vol.sectorsPerCluster {
		return nil
	}
	c.clusterSteps++
	if c.clusterSteps > c.vol.clusterCount {
		return ferrors.New(ferrors.FatCorrupt, "fat.dir:advance cycle")
	}
	next, err := c.vol.table.readEntry(c.cluster)
	if err != nil {
		return err
	}
	if c.vol.table.isEOC(next) {
		c.atEnd = true
		return ferrors.New(ferrors.Eof, "fat.dir:advance")
	}
	c.cluster = next
	c.sectorInCluster = 0
	return nil
}

// rewind returns the cursor to the first slot of the directory.
func (c *dirCursor) rewind(firstCluster uint32) {
	*c = *newDirCursor(c.vol, firstCluster)
}

// next scans forward to the next non-LFN, non-volume-id entry, assembling
// any immediately preceding LFN run into Entry.Name.
func (c *dirCursor) next() (Entry, error) {
	for {
		if err := c.loadSector(); err != nil {
			return Entry{}, err
		}
		for ; c.slot < sectorSize/dirEntrySize; c.slot++ {
			off := c.slot * dirEntrySize
			d := dirEntry{b: c.buf[off : off+dirEntrySize]}
			if d.isEndMarker() {
				return Entry{}, ferrors.New(ferrors.Eof, "fat.dir:next")
			}
			if d.b[dirNameOff] == nameFreeMarker {
				c.lfnExpectedOrd = 0
				c.lfnValid = false
				continue
			}
			if d.isLFN() {
				c.absorbLFN(lfnEntry{b: d.b})
				continue
			}
			if d.attr()&attrVolumeID != 0 {
				c.lfnExpectedOrd = 0
				c.lfnValid = false
				continue
			}
			entry := c.buildEntry(d, off)
			c.lfnExpectedOrd = 0
			c.lfnValid = false
			c.slot++
			return entry, nil
		}
		if err := c.advance(); err != nil {
			return Entry{}, err
		}
		c.slot = 0
	}
}

func (c *dirCursor) absorbLFN(l lfnEntry) {
	ord := l.ordinal()
	if l.isLast() {
		c.lfnExpectedOrd = ord
		c.lfnChecksum = l.checksum()
		c.lfnLen = ord * lfnCharsPerEntry
		for i := range c.lfnName {
			c.lfnName[i] = 0xFFFF
		}
		c.lfnValid = true
	} else if !c.lfnValid || ord != c.lfnExpectedOrd-1 || l.checksum() != c.lfnChecksum {
		c.lfnValid = false
		return
	} else {
		c.lfnExpectedOrd = ord
	}
	base := (ord - 1) * lfnCharsPerEntry
	chars := l.chars()
	for i, ch := range chars {
		if base+i < len(c.lfnName) {
			c.lfnName[base+i] = ch
		}
	}
}

func (c *dirCursor) buildEntry(d dirEntry, slotOffset int) Entry {
	short := d.shortName()
	shortDisplay := shortNameDisplay(short)
	e := Entry{
		ShortName: shortDisplay,
		Name:      shortDisplay,
		Attr:      d.attr(),
		Size:      d.size(),
		Cluster:   d.cluster(),
		sector:    c.sector,
		offset:    slotOffset,
	}
	if c.lfnValid && c.lfnExpectedOrd == 1 && shortNameChecksum(short) == c.lfnChecksum {
		if name, ok := decodeLFN(c.lfnName[:c.lfnLen]); ok {
			e.Name = name
		}
	}
	return e
}

// decodeLFN converts accumulated UTF-16 code units into a Go string,
// stopping at the first NUL terminator. The code units are re-encoded as
// little-endian bytes and decoded through utf16x.ToUTF8, surrogate pairs
// included.
func decodeLFN(units []uint16) (string, bool) {
	n := 0
	for n < len(units) && units[n] != 0 {
		n++
	}
	if n == 0 {
		return "", false
	}
	raw := make([]byte, 2*n)
	for i, u := range units[:n] {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	dst := make([]byte, 4*n)
	written, err := utf16x.ToUTF8(dst, raw, binary.LittleEndian)
	if err != nil && written == 0 {
		return "", false
	}
	return string(dst[:written]), true
}
