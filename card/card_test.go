package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLink is a software SD/MMC card wired as an SDHC device: it parses the
// same 6-byte command frames commands.go emits and replies with the byte
// sequences an SPI-mode card would clock back, so Init and the block
// transfer paths can be exercised without real hardware.
type fakeLink struct {
	sectors map[int64][blockSize]byte

	ms uint32

	queue []byte // bytes waiting to be popped by Transfer/TransferBulk reads.

	pendingDataResponse byte // nonzero: next Transfer(0xFF) returns this once.

	writeSector   int64
	writeCursor   int
	writeMultiN   uint32 // blocks promised by the last ACMD23 hint.
	multiReadN    int    // blocks the test wants CMD18 to serve.
}

func newFakeLink() *fakeLink {
	return &fakeLink{sectors: make(map[int64][blockSize]byte)}
}

func (f *fakeLink) push(bs ...byte) { f.queue = append(f.queue, bs...) }

func (f *fakeLink) Configure(hz uint32) (uint32, error) { return hz, nil }
func (f *fakeLink) ChipSelect(assert bool)              {}
func (f *fakeLink) DelayMs(ms uint32)                   { f.ms += ms }
func (f *fakeLink) Milliseconds() uint32                { f.ms++; return f.ms }

func (f *fakeLink) Transfer(tx byte) (byte, error) {
	if f.pendingDataResponse != 0 {
		b := f.pendingDataResponse
		f.pendingDataResponse = 0
		return b, nil
	}
	if len(f.queue) > 0 {
		b := f.queue[0]
		f.queue = f.queue[1:]
		return b, nil
	}
	return 0xFF, nil
}

func (f *fakeLink) TransferBulk(tx, rx []byte) error {
	if tx != nil && rx == nil {
		if len(tx) == 6 && tx[0]&0xC0 == 0x40 {
			f.handleCommand(tx)
			return nil
		}
		if len(tx) == blockSize {
			var sec [blockSize]byte
			copy(sec[:], tx)
			f.sectors[f.writeSector+int64(f.writeCursor)] = sec
			f.writeCursor++
			f.pendingDataResponse = dataResponseAccept
		}
		return nil
	}
	if rx != nil {
		for i := range rx {
			b, _ := f.Transfer(0xFF)
			rx[i] = b
		}
	}
	return nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (f *fakeLink) handleCommand(frame []byte) {
	cmd := frame[0] & 0x3F
	arg := be32(frame[1:5])
	switch cmd {
	case cmdGoIdleState:
		f.push(r1Idle)
	case cmdSendIfCond:
		f.push(0, 0, 0, 0x01, 0xAA)
	case cmdAppCmd:
		f.push(r1Idle)
	case acmdSDSendOpCond:
		f.push(0)
	case acmdSetWrBlkEraseCount:
		f.writeMultiN = arg
		f.push(0)
	case cmdReadOCR:
		f.push(0, 0x40, 0, 0, 0)
	case cmdSendCSD:
		f.push(0, tokenStartBlock)
		f.push(testCSD()...)
		f.push(0, 0)
	case cmdSendCID:
		f.push(0, tokenStartBlock)
		f.push(testCID()...)
		f.push(0, 0)
	case cmdReadSingle:
		f.push(0, tokenStartBlock)
		sec := f.sectors[int64(arg)]
		f.push(sec[:]...)
		f.push(0, 0)
	case cmdReadMulti:
		f.push(0)
		n := f.multiReadN
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			f.push(tokenStartBlock)
			sec := f.sectors[int64(arg)+int64(i)]
			f.push(sec[:]...)
			f.push(0, 0)
		}
	case cmdStopTransmit:
		f.push(0)
	case cmdWriteSingle:
		f.writeSector = int64(arg)
		f.writeCursor = 0
		f.push(0)
	case cmdWriteMulti:
		f.writeSector = int64(arg)
		f.writeCursor = 0
		f.push(0)
	}
}

// testCSD returns a synthetic CSD version 2.0 register describing a small
// SDHC card: c_size = 3 -> (3+1)*512KiB = 2MiB capacity.
func testCSD() []byte {
	var csd [16]byte
	csd[0] = 1 << 6 // CSD_STRUCTURE = 1 (version 2.0)
	csd[7] = 0
	csd[8] = 0
	csd[9] = 3
	return csd[:]
}

func testCID() []byte {
	var cid [16]byte
	copy(cid[:], "FAKECARD1234567X")
	return cid[:]
}

func mustInit(t *testing.T) (*Card, *fakeLink) {
	t.Helper()
	l := newFakeLink()
	c := New(l)
	require.NoError(t, c.Init(0), "Init")
	return c, l
}

func TestInitSDHC(t *testing.T) {
	c, _ := mustInit(t)
	assert.True(t, c.Initialized(), "Initialized() after a successful Init")
	assert.Equal(t, TypeSDHC, c.Type())
	assert.True(t, c.BlockAddressing(), "BlockAddressing() for SDHC")
	const wantCapacity = 4 * 512 * 1024 // c_size=3 -> 4 * 512KiB
	assert.EqualValues(t, wantCapacity, c.CapacityBytes())
}

func TestReadWriteSingleBlock(t *testing.T) {
	c, _ := mustInit(t)
	var want [blockSize]byte
	for i := range want {
		want[i] = byte(i)
	}
	_, err := c.WriteBlocks(want[:], 10)
	require.NoError(t, err, "WriteBlocks")
	var got [blockSize]byte
	_, err = c.ReadBlocks(got[:], 10)
	require.NoError(t, err, "ReadBlocks")
	assert.Equal(t, want[:], got[:], "read back data does not match what was written")
}

func TestReadWriteMultiBlock(t *testing.T) {
	c, l := mustInit(t)
	const n = 3
	var want [n * blockSize]byte
	for i := range want {
		want[i] = byte(i * 7)
	}
	_, err := c.WriteBlocks(want[:], 20)
	require.NoError(t, err, "WriteBlocks")
	l.multiReadN = n
	var got [n * blockSize]byte
	_, err = c.ReadBlocks(got[:], 20)
	require.NoError(t, err, "ReadBlocks")
	assert.Equal(t, want[:], got[:], "multi-block read back does not match what was written")
}

// clockLink is a fakeLink that also hints a fixed wall-clock time, exercising
// Card.Now()'s delegation to the optional link.Clock interface.
type clockLink struct{ *fakeLink }

func (clockLink) Now() (year, month, day, hour, min, sec int) {
	return 2024, 6, 15, 12, 30, 0
}

func TestNowDelegatesToLinkClock(t *testing.T) {
	c := New(clockLink{newFakeLink()})
	y, mo, d, h, mi, s := c.Now()
	assert.Equal(t, [6]int{2024, 6, 15, 12, 30, 0}, [6]int{y, mo, d, h, mi, s})
}

func TestNowDefaultsWithoutClockHint(t *testing.T) {
	c := New(newFakeLink())
	y, mo, d, h, mi, s := c.Now()
	assert.Equal(t, [6]int{2000, 1, 1, 0, 0, 0}, [6]int{y, mo, d, h, mi, s}, "fixed epoch default")
}
