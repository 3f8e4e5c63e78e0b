package fat

import (
	"tinyfat/ferrors"
)

// Mode is the bitset of flags passed to Volume.Open (§4.7). Any combination
// is accepted except where validate rejects it.
type Mode uint8

const (
	Read Mode = 1 << iota
	Write
	Append
	Create
	Truncate
	Excl
)

// validate rejects the two nonsensical combinations called out by name:
// Excl without Create, and Truncate on a handle that can never write.
func (m Mode) validate() error {
	if m&Excl != 0 && m&Create == 0 {
		return ferrors.New(ferrors.InvalidParam, "fat.Mode")
	}
	if m&Truncate != 0 && m&(Write|Append) == 0 {
		return ferrors.New(ferrors.InvalidParam, "fat.Mode")
	}
	return nil
}

// Whence selects the reference point for File.Seek.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// File is an open file handle. It owns one 512-byte sector buffer, per §4.7's
// ownership rule.
type File struct {
	vol  *Volume
	open bool
	mode Mode

	firstCluster uint32
	curCluster   uint32

	// clusterOffset is the byte distance from the start of curCluster to
	// pos. It can momentarily exceed the cluster size after a Seek past an
	// unallocated region; Write resolves the overshoot by allocating.
	clusterOffset int64
	pos           int64
	size          uint32

	entrySector int64
	entryOffset int

	buf       [sectorSize]byte
	bufSector int64
	bufLoaded bool
	dirty     bool
}

// Open resolves path relative to the volume's current directory (or
// absolutely, if path starts with "/"), applying mode per §4.7.
func (v *Volume) Open(path string, mode Mode) (*File, error) {
	if !v.mounted {
		return nil, ferrors.New(ferrors.NotMounted, "fat.Open")
	}
	if err := mode.validate(); err != nil {
		return nil, err
	}
	writing := mode&(Write|Append|Create|Truncate) != 0
	if v.readOnly && writing {
		return nil, ferrors.New(ferrors.ReadOnly, "fat.Open")
	}

	parentCluster, name, err := v.resolveParent(path)
	if err != nil {
		return nil, err
	}

	lookup, sector, offset, err := v.lookupInDir(parentCluster, name)
	if err != nil {
		return nil, err
	}

	f := &File{vol: v, mode: mode, bufSector: -1}

	switch {
	case lookup.found && lookup.entry.IsDir():
		return nil, ferrors.New(ferrors.NotFile, "fat.Open")
	case lookup.found && mode&(Excl|Create) == Excl|Create:
		return nil, ferrors.New(ferrors.Exists, "fat.Open")
	case lookup.found:
		f.firstCluster = lookup.entry.Cluster
		f.size = lookup.entry.Size
		f.entrySector = sector
		f.entryOffset = offset
		if mode&Truncate != 0 {
			if f.firstCluster >= firstDataCluster {
				if err := v.table.freeChain(f.firstCluster); err != nil {
					return nil, err
				}
			}
			f.firstCluster = 0
			f.size = 0
			if err := v.writeBackDirEntry(sector, offset, 0, 0); err != nil {
				return nil, err
			}
		}
	case mode&Create != 0:
		sec, off, err := v.createEntry(parentCluster, name, 0)
		if err != nil {
			return nil, err
		}
		f.entrySector, f.entryOffset = sec, off
	default:
		return nil, ferrors.New(ferrors.NotFound, "fat.Open")
	}

	f.curCluster = f.firstCluster
	f.open = true

	if mode&Append != 0 {
		f.pos = int64(f.size)
		f.clusterOffset = f.pos
		if f.firstCluster >= firstDataCluster {
			last, err := v.lastClusterInChain(f.firstCluster)
			if err != nil {
				return nil, err
			}
			f.curCluster = last
			base, err := v.clusterBaseOffset(f.firstCluster, last)
			if err != nil {
				return nil, err
			}
			f.clusterOffset = f.pos - base
		}
	}
	return f, nil
}

// resolveParent splits path into its parent directory's cluster and final
// component name, resolving the parent against the volume's cwd.
func (v *Volume) resolveParent(path string) (parentCluster uint32, name string, err error) {
	parentPath, name := splitParent(path)
	if parentPath == "" {
		if len(path) > 0 && path[0] == '/' {
			return v.rootDirCluster(), name, nil
		}
		return v.cwdCluster, name, nil
	}
	pr, err := v.resolvePath(v.cwdCluster, parentPath)
	if err != nil {
		return 0, "", err
	}
	if !pr.entry.IsDir() {
		return 0, "", ferrors.New(ferrors.NotDir, "fat.resolveParent")
	}
	return pr.cluster, name, nil
}

func (f *File) loadSector(sector int64) error {
	if f.bufLoaded && sector == f.bufSector {
		return nil
	}
	if err := f.flushSector(); err != nil {
		return err
	}
	if _, err := f.vol.dev.ReadBlocks(f.buf[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.File:load")
	}
	f.bufSector = sector
	f.bufLoaded = true
	return nil
}

func (f *File) flushSector() error {
	if !f.dirty {
		return nil
	}
	if _, err := f.vol.dev.WriteBlocks(f.buf[:], f.bufSector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.File:flush")
	}
	f.dirty = false
	return nil
}

// normalize walks the FAT forward while clusterOffset exceeds one cluster,
// following the existing chain. It stops at the last real cluster if the
// chain ends first, leaving the overshoot in clusterOffset for Write to
// resolve by allocating.
func (f *File) normalize() error {
	for f.curCluster >= firstDataCluster && f.clusterOffset >= int64(f.vol.clusterSize) {
		next, err := f.vol.table.readEntry(f.curCluster)
		if err != nil {
			return err
		}
		if f.vol.table.isEOC(next) {
			return nil
		}
		f.curCluster = next
		f.clusterOffset -= int64(f.vol.clusterSize)
	}
	return nil
}

// Read implements the read half of §4.7's data-transfer description.
func (f *File) Read(p []byte) (int, error) {
	if !f.open {
		return 0, ferrors.New(ferrors.InvalidHandle, "fat.File.Read")
	}
	if f.mode&Read == 0 {
		return 0, ferrors.New(ferrors.InvalidParam, "fat.File.Read")
	}
	if f.pos >= int64(f.size) {
		return 0, ferrors.New(ferrors.Eof, "fat.File.Read")
	}
	total := 0
	for total < len(p) && f.pos < int64(f.size) {
		if err := f.normalize(); err != nil {
			return total, err
		}
		if f.curCluster < firstDataCluster {
			break
		}
		sector := f.vol.clusterToSector(f.curCluster) + f.clusterOffset/sectorSize
		sectorOff := int(f.clusterOffset % sectorSize)
		if err := f.loadSector(sector); err != nil {
			return total, err
		}
		n := sectorSize - sectorOff
		if remaining := len(p) - total; n > remaining {
			n = remaining
		}
		if rem := int64(f.size) - f.pos; int64(n) > rem {
			n = int(rem)
		}
		copy(p[total:total+n], f.buf[sectorOff:sectorOff+n])
		total += n
		f.pos += int64(n)
		f.clusterOffset += int64(n)
	}
	return total, nil
}

// Write implements §4.7's allocate-on-demand write path.
func (f *File) Write(p []byte) (int, error) {
	if !f.open {
		return 0, ferrors.New(ferrors.InvalidHandle, "fat.File.Write")
	}
	if f.mode&(Write|Append) == 0 {
		return 0, ferrors.New(ferrors.ReadOnly, "fat.File.Write")
	}
	if f.firstCluster == 0 {
		c, err := f.vol.table.allocate(0)
		if err != nil {
			return 0, err
		}
		if err := f.vol.zeroCluster(c); err != nil {
			return 0, err
		}
		f.firstCluster = c
		f.curCluster = c
	}

	total := 0
	for total < len(p) {
		for f.clusterOffset >= int64(f.vol.clusterSize) {
			next, err := f.vol.table.readEntry(f.curCluster)
			if err != nil {
				return total, err
			}
			if f.vol.table.isEOC(next) {
				next, err = f.vol.table.allocate(f.curCluster)
				if err != nil {
					return total, err
				}
				if err := f.vol.zeroCluster(next); err != nil {
					return total, err
				}
			}
			f.curCluster = next
			f.clusterOffset -= int64(f.vol.clusterSize)
		}

		sector := f.vol.clusterToSector(f.curCluster) + f.clusterOffset/sectorSize
		sectorOff := int(f.clusterOffset % sectorSize)
		remaining := len(p) - total

		if sectorOff == 0 && remaining >= sectorSize {
			if err := f.flushSector(); err != nil {
				return total, err
			}
			if _, err := f.vol.dev.WriteBlocks(p[total:total+sectorSize], sector); err != nil {
				return total, ferrors.New(ferrors.WriteHW, "fat.File.Write")
			}
			if f.bufLoaded && f.bufSector == sector {
				f.bufLoaded = false
			}
			total += sectorSize
			f.pos += sectorSize
			f.clusterOffset += sectorSize
			continue
		}

		if err := f.loadSector(sector); err != nil {
			return total, err
		}
		n := sectorSize - sectorOff
		if n > remaining {
			n = remaining
		}
		copy(f.buf[sectorOff:sectorOff+n], p[total:total+n])
		f.dirty = true
		total += n
		f.pos += int64(n)
		f.clusterOffset += int64(n)
	}
	if uint32(f.pos) > f.size {
		f.size = uint32(f.pos)
	}
	return total, nil
}

// Seek repositions the handle per §4.7; it walks the FAT but never reads
// data sectors.
func (f *File) Seek(offset int64, whence Whence) (int64, error) {
	if !f.open {
		return 0, ferrors.New(ferrors.InvalidHandle, "fat.File.Seek")
	}
	var target int64
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = f.pos + offset
	case SeekEnd:
		target = int64(f.size) + offset
	default:
		return 0, ferrors.New(ferrors.InvalidParam, "fat.File.Seek")
	}
	if target < 0 {
		return 0, ferrors.New(ferrors.Seek, "fat.File.Seek")
	}
	if f.mode&(Write|Append) == 0 && target > int64(f.size) {
		target = int64(f.size)
	}

	if target < f.pos || f.curCluster < firstDataCluster {
		f.curCluster = f.firstCluster
		f.clusterOffset = target
		f.pos = target
	} else {
		f.clusterOffset += target - f.pos
		f.pos = target
	}
	if err := f.normalize(); err != nil {
		return 0, err
	}
	return f.pos, nil
}

func (f *File) Tell() int64  { return f.pos }
func (f *File) Eof() bool    { return f.pos >= int64(f.size) }
func (f *File) Size() uint32 { return f.size }
func (f *File) Flush() error { return f.flushSector() }

// Truncate cuts the file at the current position, per §4.7. Only whole
// clusters after the one holding the new end are freed; unused space inside
// that cluster stays allocated to the file.
func (f *File) Truncate() error {
	if !f.open {
		return ferrors.New(ferrors.InvalidHandle, "fat.File.Truncate")
	}
	if f.mode&(Write|Append) == 0 {
		return ferrors.New(ferrors.ReadOnly, "fat.File.Truncate")
	}
	switch {
	case f.clusterOffset == 0 && f.pos > 0 && f.curCluster >= firstDataCluster:
		prev, err := f.vol.findPredecessor(f.firstCluster, f.curCluster)
		if err != nil {
			return err
		}
		if err := f.vol.table.writeEntry(prev, f.vol.table.eocValue()); err != nil {
			return err
		}
		if err := f.vol.table.freeChain(f.curCluster); err != nil {
			return err
		}
		f.curCluster = prev
	case f.curCluster >= firstDataCluster:
		next, err := f.vol.table.readEntry(f.curCluster)
		if err != nil {
			return err
		}
		if err := f.vol.table.writeEntry(f.curCluster, f.vol.table.eocValue()); err != nil {
			return err
		}
		if !f.vol.table.isEOC(next) {
			if err := f.vol.table.freeChain(next); err != nil {
				return err
			}
		}
	}
	f.size = uint32(f.pos)
	return nil
}

// Close flushes the buffer and, for a handle opened with any write flag,
// writes the cluster pointer, size, and modification time back to the
// directory entry.
func (f *File) Close() error {
	if !f.open {
		return ferrors.New(ferrors.InvalidHandle, "fat.File.Close")
	}
	if err := f.flushSector(); err != nil {
		return err
	}
	if f.mode&(Write|Append|Create|Truncate) != 0 {
		if err := f.vol.writeBackDirEntry(f.entrySector, f.entryOffset, f.firstCluster, f.size); err != nil {
			return err
		}
	}
	f.open = false
	return nil
}

func (v *Volume) zeroCluster(cluster uint32) error {
	var zero [sectorSize]byte
	sector := v.clusterToSector(cluster)
	for i := uint8(0); i < v.sectorsPerCluster; i++ {
		if _, err := v.dev.WriteBlocks(zero[:], sector+int64(i)); err != nil {
			return ferrors.New(ferrors.WriteHW, "fat.zeroCluster")
		}
	}
	return nil
}

func (v *Volume) writeBackDirEntry(sector int64, offset int, cluster, size uint32) error {
	var buf [sectorSize]byte
	if _, err := v.dev.ReadBlocks(buf[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.writeBackDirEntry")
	}
	d := dirEntry{b: buf[offset : offset+dirEntrySize]}
	d.setCluster(cluster)
	d.setSize(size)
	d.setModified(v.now())
	if _, err := v.dev.WriteBlocks(buf[:], sector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.writeBackDirEntry")
	}
	return nil
}

func (v *Volume) lastClusterInChain(first uint32) (uint32, error) {
	c := first
	for steps := uint32(0); ; steps++ {
		if steps > v.clusterCount {
			return 0, ferrors.New(ferrors.FatCorrupt, "fat.lastClusterInChain cycle")
		}
		next, err := v.table.readEntry(c)
		if err != nil {
			return 0, err
		}
		if v.table.isEOC(next) {
			return c, nil
		}
		c = next
	}
}

// clusterBaseOffset returns the byte offset of the start of target within
// the chain beginning at first.
func (v *Volume) clusterBaseOffset(first, target uint32) (int64, error) {
	c := first
	var base int64
	for steps := uint32(0); c != target; steps++ {
		if steps > v.clusterCount {
			return 0, ferrors.New(ferrors.FatCorrupt, "fat.clusterBaseOffset cycle")
		}
		next, err := v.table.readEntry(c)
		if err != nil {
			return 0, err
		}
		if v.table.isEOC(next) {
			return 0, ferrors.New(ferrors.Internal, "fat.clusterBaseOffset")
		}
		c = next
		base += int64(v.clusterSize)
	}
	return base, nil
}

func (v *Volume) findPredecessor(first, target uint32) (uint32, error) {
	if first == target {
		return 0, ferrors.New(ferrors.Internal, "fat.findPredecessor")
	}
	c := first
	for steps := uint32(0); ; steps++ {
		if steps > v.clusterCount {
			return 0, ferrors.New(ferrors.FatCorrupt, "fat.findPredecessor cycle")
		}
		next, err := v.table.readEntry(c)
		if err != nil {
			return 0, err
		}
		if next == target {
			return c, nil
		}
		if v.table.isEOC(next) {
			return 0, ferrors.New(ferrors.FatCorrupt, "fat.findPredecessor")
		}
		c = next
	}
}

// createEntry scans the directory at parentCluster for a free slot, growing
// its cluster chain (or reporting RootFull for the fixed root) when none is
// found, and writes a fresh entry per §4.7's "creating a new entry".
func (v *Volume) createEntry(parentCluster uint32, name string, attr byte) (sector int64, offset int, err error) {
	short, err := toShortName(name)
	if err != nil {
		return 0, 0, err
	}
	cur := newDirCursor(v, parentCluster)
	now := v.now()
	for {
		if err := cur.loadSector(); err != nil {
			return 0, 0, err
		}
		for slot := 0; slot < sectorSize/dirEntrySize; slot++ {
			off := slot * dirEntrySize
			d := dirEntry{b: cur.buf[off : off+dirEntrySize]}
			if !d.isFree() {
				continue
			}
			d.setShortName(short)
			d.setAttr(attr | attrArchive)
			d.setCluster(0)
			d.setSize(0)
			d.setCreated(now)
			d.setModified(now)
			if err := cur.writeSector(); err != nil {
				return 0, 0, err
			}
			return cur.sector, off, nil
		}
		if err := cur.advance(); err != nil {
			if ferrors.KindOf(err) != ferrors.Eof {
				return 0, 0, err
			}
			if cur.fixedRoot {
				return 0, 0, ferrors.New(ferrors.RootFull, "fat.createEntry")
			}
			newCluster, aerr := v.table.allocate(cur.cluster)
			if aerr != nil {
				return 0, 0, aerr
			}
			if zerr := v.zeroCluster(newCluster); zerr != nil {
				return 0, 0, zerr
			}
			cur.cluster = newCluster
			cur.sectorInCluster = 0
			cur.atEnd = false
		}
	}
}

// Unlink removes a file entry and its preceding LFN fragments. It refuses a
// path naming a directory.
func (v *Volume) Unlink(path string) error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Unlink")
	}
	if v.readOnly {
		return ferrors.New(ferrors.ReadOnly, "fat.Unlink")
	}
	parentCluster, name, err := v.resolveParent(path)
	if err != nil {
		return err
	}
	lookup, sector, offset, err := v.lookupInDir(parentCluster, name)
	if err != nil {
		return err
	}
	if !lookup.found {
		return ferrors.New(ferrors.NotFound, "fat.Unlink")
	}
	if lookup.entry.IsDir() {
		return ferrors.New(ferrors.NotFile, "fat.Unlink")
	}
	if lookup.entry.Cluster >= firstDataCluster {
		if err := v.table.freeChain(lookup.entry.Cluster); err != nil {
			return err
		}
	}
	return v.freeDirSlotAndLFN(sector, offset)
}

// freeDirSlotAndLFN marks the 8.3 slot free and walks backward within the
// same sector marking any preceding LFN fragments free too, per §4.7.
func (v *Volume) freeDirSlotAndLFN(sector int64, offset int) error {
	var buf [sectorSize]byte
	if _, err := v.dev.ReadBlocks(buf[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.Unlink")
	}
	dirEntry{b: buf[offset : offset+dirEntrySize]}.markFree()
	for o := offset - dirEntrySize; o >= 0; o -= dirEntrySize {
		d := dirEntry{b: buf[o : o+dirEntrySize]}
		if !d.isLFN() {
			break
		}
		d.markFree()
	}
	if _, err := v.dev.WriteBlocks(buf[:], sector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.Unlink")
	}
	return nil
}

// Rename gives the entry at oldPath the short name newName, within the same
// parent directory. Moves across directories are out of scope, per §9.
func (v *Volume) Rename(oldPath, newName string) error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Rename")
	}
	if v.readOnly {
		return ferrors.New(ferrors.ReadOnly, "fat.Rename")
	}
	parentCluster, oldName, err := v.resolveParent(oldPath)
	if err != nil {
		return err
	}
	lookup, sector, offset, err := v.lookupInDir(parentCluster, oldName)
	if err != nil {
		return err
	}
	if !lookup.found {
		return ferrors.New(ferrors.NotFound, "fat.Rename")
	}
	dest, _, _, err := v.lookupInDir(parentCluster, newName)
	if err != nil {
		return err
	}
	if dest.found {
		return ferrors.New(ferrors.Exists, "fat.Rename")
	}
	short, err := toShortName(newName)
	if err != nil {
		return err
	}
	var buf [sectorSize]byte
	if _, err := v.dev.ReadBlocks(buf[:], sector); err != nil {
		return ferrors.New(ferrors.ReadHW, "fat.Rename")
	}
	dirEntry{b: buf[offset : offset+dirEntrySize]}.setShortName(short)
	for o := offset - dirEntrySize; o >= 0; o -= dirEntrySize {
		cand := dirEntry{b: buf[o : o+dirEntrySize]}
		if !cand.isLFN() {
			break
		}
		cand.markFree()
	}
	if _, err := v.dev.WriteBlocks(buf[:], sector); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.Rename")
	}
	return nil
}

var dotName = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
var dotDotName = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// Mkdir creates a new, empty subdirectory with freshly written "." and ".."
// entries.
func (v *Volume) Mkdir(path string) error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Mkdir")
	}
	if v.readOnly {
		return ferrors.New(ferrors.ReadOnly, "fat.Mkdir")
	}
	parentCluster, name, err := v.resolveParent(path)
	if err != nil {
		return err
	}
	lookup, _, _, err := v.lookupInDir(parentCluster, name)
	if err != nil {
		return err
	}
	if lookup.found {
		return ferrors.New(ferrors.Exists, "fat.Mkdir")
	}
	newCluster, err := v.table.allocate(0)
	if err != nil {
		return err
	}
	if err := v.zeroCluster(newCluster); err != nil {
		return err
	}
	if err := v.writeDotEntries(newCluster, parentCluster); err != nil {
		return err
	}
	sector, offset, err := v.createEntry(parentCluster, name, attrDirectory)
	if err != nil {
		return err
	}
	return v.writeBackDirEntry(sector, offset, newCluster, 0)
}

func (v *Volume) writeDotEntries(cluster, parentCluster uint32) error {
	var buf [sectorSize]byte
	now := v.now()

	self := dirEntry{b: buf[0:dirEntrySize]}
	self.setShortName(dotName)
	self.setAttr(attrDirectory)
	self.setCluster(cluster)
	self.setCreated(now)
	self.setModified(now)

	parentRef := parentCluster
	if v.typ != kindFAT32 && parentCluster == v.rootDirCluster() {
		parentRef = 0
	}
	up := dirEntry{b: buf[dirEntrySize : 2*dirEntrySize]}
	up.setShortName(dotDotName)
	up.setAttr(attrDirectory)
	up.setCluster(parentRef)
	up.setCreated(now)
	up.setModified(now)

	if _, err := v.dev.WriteBlocks(buf[:], v.clusterToSector(cluster)); err != nil {
		return ferrors.New(ferrors.WriteHW, "fat.Mkdir")
	}
	return nil
}

// Rmdir removes a directory containing only "." and ".." entries.
func (v *Volume) Rmdir(path string) error {
	if !v.mounted {
		return ferrors.New(ferrors.NotMounted, "fat.Rmdir")
	}
	if v.readOnly {
		return ferrors.New(ferrors.ReadOnly, "fat.Rmdir")
	}
	parentCluster, name, err := v.resolveParent(path)
	if err != nil {
		return err
	}
	lookup, sector, offset, err := v.lookupInDir(parentCluster, name)
	if err != nil {
		return err
	}
	if !lookup.found {
		return ferrors.New(ferrors.NotFound, "fat.Rmdir")
	}
	if !lookup.entry.IsDir() {
		return ferrors.New(ferrors.NotDir, "fat.Rmdir")
	}
	empty, err := v.dirOnlyHasDotEntries(lookup.entry.Cluster)
	if err != nil {
		return err
	}
	if !empty {
		return ferrors.New(ferrors.DirNotEmpty, "fat.Rmdir")
	}
	if lookup.entry.Cluster >= firstDataCluster {
		if err := v.table.freeChain(lookup.entry.Cluster); err != nil {
			return err
		}
	}
	return v.freeDirSlotAndLFN(sector, offset)
}

func (v *Volume) dirOnlyHasDotEntries(cluster uint32) (bool, error) {
	cur := newDirCursor(v, cluster)
	for {
		ent, err := cur.next()
		if err != nil {
			if ferrors.KindOf(err) == ferrors.Eof {
				return true, nil
			}
			return false, err
		}
		if ent.ShortName != "." && ent.ShortName != ".." {
			return false, nil
		}
	}
}

// Stat resolves path and returns the Entry describing it.
func (v *Volume) Stat(path string) (Entry, error) {
	if !v.mounted {
		return Entry{}, ferrors.New(ferrors.NotMounted, "fat.Stat")
	}
	r, err := v.resolvePath(v.cwdCluster, path)
	if err != nil {
		return Entry{}, err
	}
	return r.entry, nil
}

// Exists reports whether path resolves to an entry.
func (v *Volume) Exists(path string) bool {
	_, err := v.Stat(path)
	return err == nil
}
