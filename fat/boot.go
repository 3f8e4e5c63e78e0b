package fat

import (
	"encoding/binary"

	"tinyfat/ferrors"
	"tinyfat/internal/mbr"
)

// Byte offsets into the BIOS Parameter Block, common to FAT12/16/32.
const (
	bpbBytsPerSec = 11
	bpbSecPerClus = 13
	bpbRsvdSecCnt = 14
	bpbNumFATs    = 16
	bpbRootEntCnt = 17
	bpbTotSec16   = 19
	bpbFATSz16    = 22
	bpbTotSec32   = 32
	bs55AA        = 510

	// FAT32-only fields; the FAT12/16 boot sector layout does not use these
	// offsets for anything this engine reads.
	bpbFATSz32    = 36
	bpbRootClus32 = 44
	bsVolID32     = 67
	bsVolLab32    = 71

	// FAT12/16 boot sector offsets for the fields FAT32 relocates above.
	bsVolID16  = 39
	bsVolLab16 = 43
)

// bpb is a read-only little-endian accessor over a 512-byte boot sector.
type bpb struct {
	data []byte
}

func (b bpb) bytesPerSector() uint16   { return binary.LittleEndian.Uint16(b.data[bpbBytsPerSec:]) }
func (b bpb) sectorsPerCluster() uint8 { return b.data[bpbSecPerClus] }
func (b bpb) reservedSectors() uint16  { return binary.LittleEndian.Uint16(b.data[bpbRsvdSecCnt:]) }
func (b bpb) numFATs() uint8           { return b.data[bpbNumFATs] }
func (b bpb) rootEntryCount() uint16   { return binary.LittleEndian.Uint16(b.data[bpbRootEntCnt:]) }
func (b bpb) bootSignature() uint16    { return binary.LittleEndian.Uint16(b.data[bs55AA:]) }
func (b bpb) rootCluster() uint32      { return binary.LittleEndian.Uint32(b.data[bpbRootClus32:]) }

func (b bpb) totalSectors() uint32 {
	if v := binary.LittleEndian.Uint16(b.data[bpbTotSec16:]); v != 0 {
		return uint32(v)
	}
	return binary.LittleEndian.Uint32(b.data[bpbTotSec32:])
}

func (b bpb) sectorsPerFAT() uint32 {
	if v := binary.LittleEndian.Uint16(b.data[bpbFATSz16:]); v != 0 {
		return uint32(v)
	}
	return binary.LittleEndian.Uint32(b.data[bpbFATSz32:])
}

// isFAT32Layout reports whether this BPB should be read with the FAT32
// field relocations (root entry count of 0 is the standard discriminator
// prior to knowing the true cluster count).
func (b bpb) isFAT32Layout() bool {
	return b.rootEntryCount() == 0 && binary.LittleEndian.Uint16(b.data[bpbFATSz16:]) == 0
}

func (b bpb) volumeLabel() [11]byte {
	var label [11]byte
	if b.isFAT32Layout() {
		copy(label[:], b.data[bsVolLab32:])
	} else {
		copy(label[:], b.data[bsVolLab16:])
	}
	return label
}

func (b bpb) volumeSerial() uint32 {
	if b.isFAT32Layout() {
		return binary.LittleEndian.Uint32(b.data[bsVolID32:])
	}
	return binary.LittleEndian.Uint32(b.data[bsVolID16:])
}

func isPowerOfTwo(n uint8) bool { return n != 0 && n&(n-1) == 0 }

// classifyFATType applies the Microsoft FAT-width decision rule (§3) to a
// volume's data-cluster count. There is no override: FAT12 below 4085
// clusters, FAT16 below 65525, FAT32 otherwise.
func classifyFATType(clusterCount uint32) kind {
	switch {
	case clusterCount < 4085:
		return kindFAT12
	case clusterCount < 65525:
		return kindFAT16
	default:
		return kindFAT32
	}
}

// mountVolume implements §4.6: locate the BPB (directly or via the MBR
// partition table), validate it, and derive the volume's geometry.
func (v *Volume) mountVolume() error {
	var sector0 [sectorSize]byte
	if _, err := v.dev.ReadBlocks(sector0[:], 0); err != nil {
		return ferrors.New(ferrors.NoFs, "fat.Mount:sector0")
	}

	boot := bpb{data: sector0[:]}
	v.partitionStart = 0
	if boot.bootSignature() == 0xAA55 {
		mbrSector, err := mbr.ToBootSector(sector0[:])
		if err != nil {
			return ferrors.New(ferrors.InvalidFs, "fat.Mount:mbr")
		}
		pte := mbrSector.PartitionTable(0)
		if pte.PartitionType().IsFAT() {
			v.partitionStart = int64(pte.StartLBA())
			var partSector [sectorSize]byte
			if _, err := v.dev.ReadBlocks(partSector[:], v.partitionStart); err != nil {
				return ferrors.New(ferrors.NoFs, "fat.Mount:partition")
			}
			sector0 = partSector
			boot = bpb{data: sector0[:]}
			if boot.bootSignature() != 0xAA55 {
				return ferrors.New(ferrors.InvalidFs, "fat.Mount:partition signature")
			}
		}
	} else {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:signature")
	}

	if boot.bytesPerSector() != sectorSize {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:sector size")
	}
	spc := boot.sectorsPerCluster()
	if !isPowerOfTwo(spc) || spc > 128 {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:sectors per cluster")
	}
	reserved := boot.reservedSectors()
	if reserved == 0 {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:reserved sectors")
	}
	numFATs := boot.numFATs()
	if numFATs == 0 {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:num fats")
	}
	sectorsPerFAT := boot.sectorsPerFAT()
	if sectorsPerFAT == 0 {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:sectors per fat")
	}

	rootEntCnt := boot.rootEntryCount()
	fatStart := v.partitionStart + int64(reserved)
	rootStart := fatStart + int64(numFATs)*int64(sectorsPerFAT)
	rootSectors := int64((uint32(rootEntCnt)*dirEntrySize + sectorSize - 1) / sectorSize)

	var dataStart int64
	if rootEntCnt == 0 {
		dataStart = rootStart // FAT32: root is a normal cluster chain.
	} else {
		dataStart = rootStart + rootSectors
	}

	totalSectors := boot.totalSectors()
	dataSectors := int64(totalSectors) - (dataStart - v.partitionStart)
	if dataSectors < 0 {
		return ferrors.New(ferrors.InvalidFs, "fat.Mount:data sectors")
	}
	clusterCount := uint32(dataSectors / int64(spc))
	typ := classifyFATType(clusterCount)

	v.typ = typ
	v.sectorsPerCluster = spc
	v.reservedSectors = reserved
	v.numFATs = numFATs
	v.rootEntryCount = rootEntCnt
	v.totalSectors = totalSectors
	v.sectorsPerFAT = sectorsPerFAT
	v.fatStartSector = fatStart
	v.rootStartSector = rootStart
	v.rootSectorCount = rootSectors
	v.dataStartSector = dataStart
	v.clusterCount = clusterCount
	v.clusterSize = uint32(spc) * sectorSize
	v.label = boot.volumeLabel()
	v.serial = boot.volumeSerial()

	if typ == kindFAT32 {
		v.rootCluster = boot.rootCluster()
	}

	v.table = fatTable{
		dev:          v.dev,
		typ:          typ,
		fatStart:     fatStart,
		sectorsPerFAT: sectorsPerFAT,
		numFATs:      numFATs,
		clusterCount: clusterCount,
		bufSector:    -1,
		lastAlloc:    firstDataCluster - 1,
		freeClusters: freeClustersUnknown,
	}
	v.log.Log(nil, slogLevelTrace, "mounted volume",
		"type", typ.String(), "clusters", clusterCount, "clusterSize", v.clusterSize)
	return nil
}
