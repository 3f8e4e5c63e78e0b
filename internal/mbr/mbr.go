/*
package mbr implements a Master Boot Record parser.
*/
package mbr

import (
	"encoding/binary"
	"errors"
)

const (
	bootstrapLen     = 440
	uniqueDiskIDOff  = bootstrapLen
	uniqueDiskIDLen  = 4
	reservedLen      = 2
	pteOffset        = bootstrapLen + uniqueDiskIDLen + reservedLen
	pteLen           = 16 // partition table entry length
	bootSignatureOff = 510
	BootSignature    = 0xAA55
)

// ToBootSector wraps a 512-byte sector as an MBR BootSector, keeping a
// reference to the original slice rather than copying it.
func ToBootSector(start []byte) (BootSector, error) {
	if len(start) < 512 {
		return BootSector{}, errors.New("boot sector too short")
	}
	return BootSector{data: start[:512:512]}, nil
}

// BootSector is a Master Boot Record: bootstrap code, a four-entry partition
// table, and a boot signature. Only the fields this engine's mount path
// needs are exposed — there is no writer here, since formatting a volume is
// out of scope.
type BootSector struct {
	data []byte
}

// BootSignature returns the boot signature; a valid MBR has 0xAA55 here.
func (mbr *BootSector) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(mbr.data[bootSignatureOff : bootSignatureOff+2])
}

// PartitionTable returns the idx'th (0-3) partition table entry.
func (mbr *BootSector) PartitionTable(idx int) PartitionTableEntry {
	if idx > 3 {
		panic("invalid partition table index")
	}
	return PartitionTableEntry{
		data: [pteLen]byte(mbr.data[pteOffset+idx*pteLen : pteOffset+(idx+1)*pteLen]),
	}
}

// PartitionTableEntry represents one of the four partition table entries in
// the MBR: the partition's type, size and starting location.
// See https://en.wikipedia.org/wiki/Master_boot_record#PTE
type PartitionTableEntry struct {
	data [pteLen]byte
}

// PartitionType returns the type byte of the partition this entry refers to.
func (pte *PartitionTableEntry) PartitionType() PartitionType {
	return PartitionType(pte.data[4])
}

// StartLBA returns the starting sector of the partition (logical block address).
func (pte *PartitionTableEntry) StartLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[8:12])
}

// NumberOfLBA returns the number of sectors in the partition.
func (pte *PartitionTableEntry) NumberOfLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[12:16])
}

// PartitionType refers to the type of partition a Partition Table Entry
// refers to.
type PartitionType byte

const (
	PartitionTypeUnused   PartitionType = 0x00
	PartitionTypeFAT12    PartitionType = 0x01
	PartitionTypeFAT16    PartitionType = 0x04
	PartitionTypeExtended PartitionType = 0x05
	PartitionTypeFAT16B   PartitionType = 0x06 // FAT16, partition >32MiB.
	PartitionTypeFAT32CHS PartitionType = 0x0B
	PartitionTypeFAT32LBA PartitionType = 0x0C
	PartitionTypeFAT16LBA PartitionType = 0x0E
	PartitionTypeNTFS     PartitionType = 0x07 // Also includes exFAT.
	PartitionTypeLinux    PartitionType = 0x83
	PartitionTypeFreeBSD  PartitionType = 0xA5
	PartitionTypeAppleHFS PartitionType = 0xAF
)

// IsFAT reports whether t is one of the recognized FAT12/16/32 partition
// type bytes this engine knows how to mount.
func (t PartitionType) IsFAT() bool {
	switch t {
	case PartitionTypeFAT12, PartitionTypeFAT16, PartitionTypeFAT16B,
		PartitionTypeFAT32CHS, PartitionTypeFAT32LBA, PartitionTypeFAT16LBA:
		return true
	}
	return false
}
