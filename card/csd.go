package card

import "tinyfat/ferrors"

// decodeCSDCapacity derives total capacity and sector count from a raw CSD
// register, per §4.2 step 9. CSD_STRUCTURE (top 2 bits of byte 0) selects the
// v1 (byte addressing era) or v2 (SDHC/SDXC) layout.
func decodeCSDCapacity(csd *[16]byte) (capacityBytes, sectorCount int64, err error) {
	switch csd[0] >> 6 {
	case 0: // CSD version 1.0
		readBlLen := uint(csd[5] & 0x0F)
		cSize := uint32(csd[6]&0x03)<<10 | uint32(csd[7])<<2 | uint32(csd[8]>>6)
		cSizeMult := uint32(csd[9]&0x03)<<1 | uint32(csd[10]>>7)
		blockCount := int64(cSize+1) << (cSizeMult + 2)
		capacityBytes = blockCount << readBlLen
	case 1: // CSD version 2.0
		cSize := uint32(csd[7]&0x3F)<<16 | uint32(csd[8])<<8 | uint32(csd[9])
		capacityBytes = int64(cSize+1) * 512 * 1024
	default:
		return 0, 0, ferrors.New(ferrors.InvalidFs, "card:decodeCSDCapacity unsupported CSD version")
	}
	sectorCount = capacityBytes / blockSize
	return capacityBytes, sectorCount, nil
}
