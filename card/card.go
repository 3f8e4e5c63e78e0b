// Package card implements the SD/MMC command protocol over a synchronous
// serial (SPI-mode) link: initialization sequencing, command framing with
// CRC, capacity and addressing-mode discovery, and single/multi-block
// read, write and erase.
//
// It talks to the physical bus exclusively through the link.Link contract,
// so the same Card works against any platform that implements that small
// interface.
package card

import (
	"log/slog"

	"tinyfat/ferrors"
	"tinyfat/link"
)

// slogLevelTrace is a synthetic level below Debug for state transitions,
// matching package fat's trace level.
const slogLevelTrace = slog.LevelDebug - 2

// Type identifies the kind of card discovered during Init.
type Type uint8

const (
	TypeNone Type = iota
	TypeMMC
	TypeSDv1
	TypeSDv2
	TypeSDHC
	TypeSDXC
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeMMC:
		return "MMC"
	case TypeSDv1:
		return "SDv1"
	case TypeSDv2:
		return "SDv2"
	case TypeSDHC:
		return "SDHC"
	case TypeSDXC:
		return "SDXC"
	default:
		return "unknown"
	}
}

// state is the internal init/operation state machine (§4.2).
type state uint8

const (
	stateUninit state = iota
	stateIdle
	stateInitializing
	stateReady
	stateReading
	stateMultiReading
	stateWriting
	stateMultiWriting
	stateErasing
)

const (
	blockSize = 512

	hzInitMax = 400_000
	hzFastCap = 25_000_000

	timeoutInitMs  = 1000
	timeoutReadMs  = 200
	timeoutWriteMs = 500
	timeoutEraseMs = 30_000
)

// Card holds the state of a single SD/MMC card reached over a link.Link.
type Card struct {
	l     link.Link
	log   *slog.Logger
	state state

	typ             Type
	initialized     bool
	speedHz         uint32
	blockAddressing bool // true: block cmd args are sector indices.

	capacityBytes int64
	sectorCount   int64

	cid [16]byte
	csd [16]byte

	reads, writes, errors uint64
}

// New constructs a Card bound to the given Link. Init must be called before
// any read/write/erase operation.
func New(l link.Link) *Card {
	return &Card{l: l, log: slog.New(slog.NewTextHandler(discardWriter{}, nil))}
}

// SetLogger attaches a structured logger for state-transition and protocol
// diagnostics. State transitions log at slogLevelTrace; classified protocol
// errors log at Warn. Raw SPI byte traffic is not logged.
func (c *Card) SetLogger(log *slog.Logger) { c.log = log }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (c *Card) setState(s state) {
	c.log.Log(nil, slogLevelTrace, "card state transition", slog.Any("from", c.state), slog.Any("to", s))
	c.state = s
}

func (s state) String() string {
	switch s {
	case stateUninit:
		return "uninit"
	case stateIdle:
		return "idle"
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateReading:
		return "reading"
	case stateMultiReading:
		return "multi_reading"
	case stateWriting:
		return "writing"
	case stateMultiWriting:
		return "multi_writing"
	case stateErasing:
		return "erasing"
	default:
		return "unknown"
	}
}

// Type returns the kind of card discovered by the last successful Init.
func (c *Card) Type() Type { return c.typ }

// Initialized reports whether Init has completed successfully.
func (c *Card) Initialized() bool { return c.initialized }

// BlockSize is always 512 for the cards this package supports.
func (c *Card) BlockSize() int { return blockSize }

// CapacityBytes returns the card's total capacity as derived from the CSD.
func (c *Card) CapacityBytes() int64 { return c.capacityBytes }

// SectorCount returns the number of addressable 512-byte sectors.
func (c *Card) SectorCount() int64 { return c.sectorCount }

// BlockAddressing reports whether block command arguments are sector
// indices (true, high-capacity cards) or byte offsets (false).
func (c *Card) BlockAddressing() bool { return c.blockAddressing }

// CID returns the raw 16-byte Card Identification register from the last Init.
func (c *Card) CID() [16]byte { return c.cid }

// CSD returns the raw 16-byte Card Specific Data register from the last Init.
func (c *Card) CSD() [16]byte { return c.csd }

// Counters returns the cumulative operation counters since construction.
func (c *Card) Counters() (reads, writes, errors uint64) {
	return c.reads, c.writes, c.errors
}

// Now returns the link's wall-clock hint (or the fixed epoch default if the
// link doesn't implement link.Clock), for callers that stamp on-disk
// timestamps through a BlockDevice rather than depending on package link
// directly.
func (c *Card) Now() (year, month, day, hour, min, sec int) {
	return link.Now(c.l)
}

func (c *Card) fail(kind ferrors.Kind, op string) error {
	c.errors++
	c.setState(stateReady)
	c.log.Warn("card operation failed", "op", op, "kind", kind)
	return ferrors.New(kind, op)
}

// Init runs the SD/MMC initialization sequence (§4.2 steps 1-11) and brings
// the link up to fastHz (capped at 25MHz) on success.
func (c *Card) Init(fastHz uint32) error {
	c.initialized = false
	c.setState(stateUninit)
	c.typ = TypeNone
	c.blockAddressing = false

	if !link.CardPresent(c.l) {
		return c.fail(ferrors.NoCard, "card.Init")
	}

	if _, err := c.l.Configure(hzInitMax); err != nil {
		return c.fail(ferrors.Init, "card.Init:configure")
	}

	// Step 3: >=1ms then >=80 clocks with CS deasserted.
	c.l.DelayMs(1)
	c.l.ChipSelect(false)
	for i := 0; i < 10; i++ {
		c.l.Transfer(0xFF)
	}

	// Step 4: CMD0 -> idle.
	r1, err := c.command(cmdGoIdleState, 0)
	if err != nil || r1 != r1Idle {
		return c.fail(ferrors.Init, "card.Init:cmd0")
	}
	c.setState(stateIdle)

	// Step 5: CMD8.
	v2orLater := true
	r1, rest, err := c.commandR7(cmdSendIfCond, 0x000001AA)
	if err != nil {
		return c.fail(ferrors.Init, "card.Init:cmd8")
	}
	if r1&r1IllegalCommand != 0 {
		v2orLater = false
		c.typ = TypeSDv1
	} else {
		if rest[2] != 0x01 || rest[3] != 0xAA {
			return c.fail(ferrors.Voltage, "card.Init:cmd8 voltage")
		}
		c.typ = TypeSDv2
	}

	// Step 6: ACMD41 loop.
	c.setState(stateInitializing)
	deadline := c.l.Milliseconds() + timeoutInitMs
	var hcsArg uint32
	if v2orLater {
		hcsArg = 1 << 30
	}
	for {
		r1, err = c.appCommand(cmdSDSendOpCond, hcsArg)
		if err != nil {
			return c.fail(ferrors.Init, "card.Init:acmd41")
		}
		if r1&r1IllegalCommand != 0 {
			// Not an SD card; try MMC CMD1 once.
			r1, err = c.command(cmdSendOpCondMMC, 0)
			if err != nil || r1 != 0 {
				return c.fail(ferrors.Init, "card.Init:mmc cmd1")
			}
			c.typ = TypeMMC
			break
		}
		if r1 == 0 {
			break
		}
		if c.l.Milliseconds() >= deadline {
			return c.fail(ferrors.Timeout, "card.Init:acmd41 timeout")
		}
	}

	// Step 7: CMD58 for block-addressing cards.
	if c.typ == TypeSDv2 {
		r1, ocr, err := c.commandR3(cmdReadOCR, 0)
		if err != nil || r1 != 0 {
			return c.fail(ferrors.Init, "card.Init:cmd58")
		}
		if ocr[0]&0x40 != 0 { // bit 30 of OCR, MSB-first in ocr[0].
			c.blockAddressing = true
			c.typ = TypeSDHC
		}
	}

	// Step 8: fix block length for byte-addressed cards.
	if !c.blockAddressing {
		r1, err = c.command(cmdSetBlocklen, blockSize)
		if err != nil || r1 != 0 {
			return c.fail(ferrors.Init, "card.Init:cmd16")
		}
	}

	// Step 9: CSD.
	if err := c.readRegister(cmdSendCSD, c.csd[:]); err != nil {
		return c.fail(ferrors.Init, "card.Init:cmd9")
	}
	capacity, sectors, err := decodeCSDCapacity(&c.csd)
	if err != nil {
		return c.fail(ferrors.Init, "card.Init:csd decode")
	}
	c.capacityBytes = capacity
	c.sectorCount = sectors
	const thirtyTwoGiB = 32 << 30
	if capacity > thirtyTwoGiB {
		c.typ = TypeSDXC
	}

	// Step 10: CID.
	if err := c.readRegister(cmdSendCID, c.cid[:]); err != nil {
		return c.fail(ferrors.Init, "card.Init:cmd10")
	}

	// Step 11: ramp up to operating speed.
	if fastHz == 0 || fastHz > hzFastCap {
		fastHz = hzFastCap
	}
	actual, err := c.l.Configure(fastHz)
	if err != nil {
		return c.fail(ferrors.Init, "card.Init:fast configure")
	}
	c.speedHz = actual
	c.initialized = true
	c.setState(stateReady)
	return nil
}
