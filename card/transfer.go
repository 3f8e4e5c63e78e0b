package card

import (
	"tinyfat/ferrors"
	"tinyfat/link"
)

const (
	tokenStartBlock      = 0xFE
	tokenStartMultiWrite = 0xFC
	tokenStopMultiWrite  = 0xFD

	dataResponseMask   = 0x1F
	dataResponseAccept = 0x05
	dataResponseCRC    = 0x0B
	dataResponseWrite  = 0x0D
)

// blockArg converts a sector index to the wire argument for a block
// command: the sector index itself on block-addressing (SDHC/SDXC) cards,
// or the equivalent byte offset otherwise.
func (c *Card) blockArg(sector int64) uint32 {
	if c.blockAddressing {
		return uint32(sector)
	}
	return uint32(sector * blockSize)
}

// waitNotBusy polls for a non-zero byte (the card releasing its busy
// signal) up to timeoutMs.
func (c *Card) waitNotBusy(timeoutMs uint32) error {
	deadline := c.l.Milliseconds() + timeoutMs
	for {
		b, err := c.l.Transfer(0xFF)
		if err != nil {
			return err
		}
		if b != 0x00 {
			return nil
		}
		if c.l.Milliseconds() >= deadline {
			return ferrors.New(ferrors.Timeout, "card:waitNotBusy")
		}
	}
}

// waitToken polls for a byte that is not 0xFF and returns it; callers that
// receive anything other than a start token classify it with
// classifyErrorToken.
func (c *Card) waitToken(timeoutMs uint32) (byte, error) {
	deadline := c.l.Milliseconds() + timeoutMs
	for {
		b, err := c.l.Transfer(0xFF)
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			return b, nil
		}
		if c.l.Milliseconds() >= deadline {
			return 0, ferrors.New(ferrors.Timeout, "card:waitToken")
		}
	}
}

func classifyErrorToken(tok byte) error {
	switch {
	case tok&0x01 != 0:
		return ferrors.New(ferrors.ReadHW, "card:error token (out of range)")
	case tok&0x02 != 0:
		return ferrors.New(ferrors.Crc, "card:error token (ECC failed)")
	case tok&0x04 != 0:
		return ferrors.New(ferrors.ReadHW, "card:error token (CC error)")
	default:
		return ferrors.New(ferrors.ReadHW, "card:error token")
	}
}

// readRegister reads a 16-byte register (CSD/CID) via the data-token
// protocol following cmd.
func (c *Card) readRegister(cmd byte, dst []byte) error {
	if len(dst) != 16 {
		return ferrors.New(ferrors.InvalidParam, "card:readRegister")
	}
	c.l.ChipSelect(true)
	defer c.release()
	if err := c.sendFrame(cmd, 0); err != nil {
		return err
	}
	r1, err := c.readR1()
	if err != nil {
		return err
	}
	if r1 != 0 {
		return ferrors.New(ferrors.Command, "card:readRegister r1")
	}
	tok, err := c.waitToken(timeoutReadMs)
	if err != nil {
		return err
	}
	if tok != tokenStartBlock {
		return classifyErrorToken(tok)
	}
	if err := c.l.TransferBulk(nil, dst); err != nil {
		return err
	}
	var crc [2]byte
	return c.l.TransferBulk(nil, crc[:])
}

// ReadBlocks reads len(dst)/512 consecutive sectors starting at startBlock
// into dst. It implements the BlockDevice interface consumed by package fat.
func (c *Card) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if !c.initialized {
		return 0, ferrors.New(ferrors.NotMounted, "card.ReadBlocks")
	}
	if len(dst) == 0 || len(dst)%blockSize != 0 {
		return 0, ferrors.New(ferrors.InvalidParam, "card.ReadBlocks")
	}
	n := len(dst) / blockSize
	if !link.CardPresent(c.l) {
		return 0, c.fail(ferrors.NoCard, "card.ReadBlocks")
	}
	if n == 1 {
		return c.readSingle(dst, startBlock)
	}
	return c.readMulti(dst, startBlock, n)
}

func (c *Card) readSingle(dst []byte, sector int64) (int, error) {
	c.setState(stateReading)
	c.l.ChipSelect(true)
	defer func() { c.release(); c.setState(stateReady) }()

	if err := c.sendFrame(cmdReadSingle, c.blockArg(sector)); err != nil {
		return 0, c.fail(ferrors.Spi, "card.readSingle")
	}
	r1, err := c.readR1()
	if err != nil || r1 != 0 {
		return 0, c.fail(ferrors.Command, "card.readSingle:r1")
	}
	tok, err := c.waitToken(timeoutReadMs)
	if err != nil {
		return 0, c.fail(ferrors.Timeout, "card.readSingle:token")
	}
	if tok != tokenStartBlock {
		c.errors++
		return 0, classifyErrorToken(tok)
	}
	if err := c.l.TransferBulk(nil, dst[:blockSize]); err != nil {
		return 0, c.fail(ferrors.Spi, "card.readSingle:data")
	}
	var crc [2]byte
	c.l.TransferBulk(nil, crc[:])
	c.reads++
	return blockSize, nil
}

func (c *Card) readMulti(dst []byte, sector int64, n int) (int, error) {
	c.setState(stateMultiReading)
	c.l.ChipSelect(true)
	defer func() { c.setState(stateReady) }()

	if err := c.sendFrame(cmdReadMulti, c.blockArg(sector)); err != nil {
		c.release()
		return 0, c.fail(ferrors.Spi, "card.readMulti")
	}
	r1, err := c.readR1()
	if err != nil || r1 != 0 {
		c.release()
		return 0, c.fail(ferrors.Command, "card.readMulti:r1")
	}
	read := 0
	for i := 0; i < n; i++ {
		tok, err := c.waitToken(timeoutReadMs)
		if err != nil {
			break
		}
		if tok != tokenStartBlock {
			c.errors++
			break
		}
		if err := c.l.TransferBulk(nil, dst[read:read+blockSize]); err != nil {
			break
		}
		var crc [2]byte
		c.l.TransferBulk(nil, crc[:])
		read += blockSize
		c.reads++
	}
	c.command(cmdStopTransmit, 0)
	c.waitNotBusy(timeoutReadMs)
	c.release()
	if read != n*blockSize {
		return read, c.fail(ferrors.ReadHW, "card.readMulti:short")
	}
	return read, nil
}

// WriteBlocks writes len(data)/512 consecutive sectors starting at
// startBlock. It implements the BlockDevice interface consumed by fat.
func (c *Card) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if !c.initialized {
		return 0, ferrors.New(ferrors.NotMounted, "card.WriteBlocks")
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return 0, ferrors.New(ferrors.InvalidParam, "card.WriteBlocks")
	}
	if link.WriteProtected(c.l) {
		return 0, c.fail(ferrors.WriteProtect, "card.WriteBlocks")
	}
	n := len(data) / blockSize
	if n == 1 {
		return c.writeSingle(data, startBlock)
	}
	return c.writeMulti(data, startBlock, n)
}

func (c *Card) writeSingle(data []byte, sector int64) (int, error) {
	c.setState(stateWriting)
	c.l.ChipSelect(true)
	defer func() { c.release(); c.setState(stateReady) }()

	if err := c.sendFrame(cmdWriteSingle, c.blockArg(sector)); err != nil {
		return 0, c.fail(ferrors.Spi, "card.writeSingle")
	}
	r1, err := c.readR1()
	if err != nil || r1 != 0 {
		return 0, c.fail(ferrors.Command, "card.writeSingle:r1")
	}
	c.l.Transfer(0xFF)
	c.l.Transfer(tokenStartBlock)
	if err := c.l.TransferBulk(data[:blockSize], nil); err != nil {
		return 0, c.fail(ferrors.Spi, "card.writeSingle:data")
	}
	c.l.TransferBulk([]byte{0xFF, 0xFF}, nil)
	resp, err := c.l.Transfer(0xFF)
	if err != nil {
		return 0, c.fail(ferrors.Spi, "card.writeSingle:response")
	}
	if resp&dataResponseMask != dataResponseAccept {
		return 0, c.fail(ferrors.Spi, "card.writeSingle:rejected")
	}
	if err := c.waitNotBusy(timeoutWriteMs); err != nil {
		return 0, c.fail(ferrors.Timeout, "card.writeSingle:busy")
	}
	c.writes++
	return blockSize, nil
}

func (c *Card) writeMulti(data []byte, sector int64, n int) (int, error) {
	c.setState(stateMultiWriting)
	c.l.ChipSelect(true)
	defer func() { c.setState(stateReady) }()

	// Optional pre-erase hint.
	c.appCommand(acmdSetWrBlkEraseCount, uint32(n))

	if err := c.sendFrame(cmdWriteMulti, c.blockArg(sector)); err != nil {
		c.release()
		return 0, c.fail(ferrors.Spi, "card.writeMulti")
	}
	r1, err := c.readR1()
	if err != nil || r1 != 0 {
		c.release()
		return 0, c.fail(ferrors.Command, "card.writeMulti:r1")
	}
	written := 0
	rejected := false
	for i := 0; i < n; i++ {
		c.l.Transfer(tokenStartMultiWrite)
		off := i * blockSize
		if err := c.l.TransferBulk(data[off:off+blockSize], nil); err != nil {
			break
		}
		c.l.TransferBulk([]byte{0xFF, 0xFF}, nil)
		resp, err := c.l.Transfer(0xFF)
		if err != nil {
			break
		}
		if resp&dataResponseMask != dataResponseAccept {
			rejected = true
			break
		}
		if err := c.waitNotBusy(timeoutWriteMs); err != nil {
			break
		}
		written += blockSize
		c.writes++
	}
	c.l.Transfer(tokenStopMultiWrite)
	c.l.Transfer(0xFF)
	c.waitNotBusy(timeoutWriteMs)
	c.release()
	if rejected {
		return written, c.fail(ferrors.Spi, "card.writeMulti:rejected")
	}
	if written != n*blockSize {
		return written, c.fail(ferrors.WriteHW, "card.writeMulti:short")
	}
	return written, nil
}

// EraseBlocks erases the sector range [startBlock, startBlock+numBlocks).
func (c *Card) EraseBlocks(startBlock, numBlocks int64) error {
	if !c.initialized {
		return ferrors.New(ferrors.NotMounted, "card.EraseBlocks")
	}
	if link.WriteProtected(c.l) {
		return c.fail(ferrors.WriteProtect, "card.EraseBlocks")
	}
	c.setState(stateErasing)
	defer func() { c.setState(stateReady) }()

	start := c.blockArg(startBlock)
	end := c.blockArg(startBlock + numBlocks - 1)
	if r1, err := c.command(cmdEraseStart, start); err != nil || r1 != 0 {
		return c.fail(ferrors.Erase, "card.EraseBlocks:cmd32")
	}
	if r1, err := c.command(cmdEraseEnd, end); err != nil || r1 != 0 {
		return c.fail(ferrors.Erase, "card.EraseBlocks:cmd33")
	}
	r1, err := c.command(cmdErase, 0)
	if err != nil || r1 != 0 {
		return c.fail(ferrors.Erase, "card.EraseBlocks:cmd38")
	}
	c.l.ChipSelect(true)
	err = c.waitNotBusy(timeoutEraseMs)
	c.release()
	if err != nil {
		return c.fail(ferrors.Timeout, "card.EraseBlocks:busy")
	}
	return nil
}
