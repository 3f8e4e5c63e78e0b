package fat

import "encoding/binary"

// newFAT16Disk builds a minimal, directly-constructed FAT16 image: one
// reserved sector, two FAT copies, a 512-entry root directory, 4
// sectors-per-cluster. There is no mkfs in this engine (formatting a volume
// is out of scope), so tests synthesize the on-disk layout by hand, the way
// the geometry is derived in mountVolume.
func newFAT16Disk(numSectors int64) *MemDisk {
	const (
		reserved      = 1
		numFATs       = 2
		rootEntCnt    = 512
		spc           = 4
		sectorsPerFAT = 256
	)
	d := NewMemDisk(numSectors)

	var boot [sectorSize]byte
	binary.LittleEndian.PutUint16(boot[bpbBytsPerSec:], sectorSize)
	boot[bpbSecPerClus] = spc
	binary.LittleEndian.PutUint16(boot[bpbRsvdSecCnt:], reserved)
	boot[bpbNumFATs] = numFATs
	binary.LittleEndian.PutUint16(boot[bpbRootEntCnt:], rootEntCnt)
	if numSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(boot[bpbTotSec16:], uint16(numSectors))
	} else {
		binary.LittleEndian.PutUint32(boot[bpbTotSec32:], uint32(numSectors))
	}
	binary.LittleEndian.PutUint16(boot[bpbFATSz16:], sectorsPerFAT)
	binary.LittleEndian.PutUint32(boot[bsVolID16:], 0xDEADBEEF)
	copy(boot[bsVolLab16:], "TESTDISK   ")
	binary.LittleEndian.PutUint16(boot[bs55AA:], 0xAA55)

	d.WriteBlocks(boot[:], 0)
	return d
}

func mustMount(d *MemDisk) *Volume {
	v := New(d)
	if err := v.Mount(d, false); err != nil {
		panic(err)
	}
	return v
}

// newFAT32Disk builds a minimal FAT32 image: 32 reserved sectors, two FAT
// copies, root directory as cluster chain starting at cluster 2,
// sectors-per-cluster = spc.
func newFAT32Disk(numSectors int64, spc uint8) *MemDisk {
	const (
		reserved      = 32
		numFATs       = 2
		sectorsPerFAT = 512
		rootCluster   = 2
	)
	d := NewMemDisk(numSectors)

	var boot [sectorSize]byte
	binary.LittleEndian.PutUint16(boot[bpbBytsPerSec:], sectorSize)
	boot[bpbSecPerClus] = spc
	binary.LittleEndian.PutUint16(boot[bpbRsvdSecCnt:], reserved)
	boot[bpbNumFATs] = numFATs
	binary.LittleEndian.PutUint16(boot[bpbRootEntCnt:], 0) // FAT32 layout discriminator
	binary.LittleEndian.PutUint16(boot[bpbFATSz16:], 0)
	binary.LittleEndian.PutUint32(boot[bpbTotSec32:], uint32(numSectors))
	binary.LittleEndian.PutUint32(boot[bpbFATSz32:], sectorsPerFAT)
	binary.LittleEndian.PutUint32(boot[bpbRootClus32:], rootCluster)
	binary.LittleEndian.PutUint32(boot[bsVolID32:], 0xCAFEF00D)
	copy(boot[bsVolLab32:], "BIGDISK    ")
	binary.LittleEndian.PutUint16(boot[bs55AA:], 0xAA55)

	d.WriteBlocks(boot[:], 0)

	// Root directory's own cluster must exist as an end-of-chain entry so
	// the very first directory scan doesn't walk off a zeroed FAT.
	fatStart := int64(reserved)
	var fatSector [sectorSize]byte
	binary.LittleEndian.PutUint32(fatSector[rootCluster*4:], 0x0FFFFFFF)
	d.WriteBlocks(fatSector[:], fatStart)
	d.WriteBlocks(fatSector[:], fatStart+sectorsPerFAT) // mirror

	// Zero the root directory's cluster.
	var zero [sectorSize]byte
	dataStart := fatStart + numFATs*sectorsPerFAT
	for i := uint8(0); i < spc; i++ {
		d.WriteBlocks(zero[:], dataStart+int64(i))
	}
	return d
}

// newPartitionedFAT16Disk builds an MBR at sector 0 with a single FAT type
// 0x0C partition starting at partitionLBA, and writes a FAT16 BPB at that
// sector, mirroring scenario S4.
func newPartitionedFAT16Disk(numSectors, partitionLBA int64) *MemDisk {
	d := newFAT16Disk(numSectors)
	// Copy the BPB newFAT16Disk wrote to sector 0 into the partition's
	// first sector, then overwrite sector 0 with a bare MBR.
	var bpbSector [sectorSize]byte
	d.ReadBlocks(bpbSector[:], 0)
	d.WriteBlocks(bpbSector[:], partitionLBA)

	var mbrSector [sectorSize]byte
	const pteOff = 446
	mbrSector[pteOff+4] = 0x0C // PartitionTypeFAT32LBA, recognized FAT type byte.
	binary.LittleEndian.PutUint32(mbrSector[pteOff+8:], uint32(partitionLBA))
	binary.LittleEndian.PutUint32(mbrSector[pteOff+12:], uint32(numSectors-partitionLBA))
	binary.LittleEndian.PutUint16(mbrSector[bs55AA:], 0xAA55)
	d.WriteBlocks(mbrSector[:], 0)
	return d
}
