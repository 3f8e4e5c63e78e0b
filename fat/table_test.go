package fat

import (
	"encoding/binary"
	"testing"

	"tinyfat/ferrors"
)

func newTestTable(typ kind, clusterCount uint32) *fatTable {
	const sectorsPerFAT = 8
	d := NewMemDisk(2 + int64(sectorsPerFAT)*2)
	return &fatTable{
		dev:           d,
		typ:           typ,
		fatStart:      0,
		sectorsPerFAT: sectorsPerFAT,
		numFATs:       2,
		clusterCount:  clusterCount,
		bufSector:     -1,
		lastAlloc:     firstDataCluster - 1,
		freeClusters:  freeClustersUnknown,
	}
}

func testEntryRoundTrip(t *testing.T, typ kind) {
	t.Helper()
	tb := newTestTable(typ, 4000)
	values := []uint32{0, 1, 0x0FF0, 5, 0x0FFFFFF0 & tb.eocValue()}
	for i, v := range values {
		cluster := uint32(firstDataCluster + i)
		if err := tb.writeEntry(cluster, v); err != nil {
			t.Fatalf("writeEntry(%d, %#x): %v", cluster, v, err)
		}
	}
	if err := tb.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for i, v := range values {
		cluster := uint32(firstDataCluster + i)
		got, err := tb.readEntry(cluster)
		if err != nil {
			t.Fatalf("readEntry(%d): %v", cluster, err)
		}
		want := v
		switch typ {
		case kindFAT12:
			want &= 0x0FFF
		case kindFAT16:
			want &= 0xFFFF
		default:
			want &= 0x0FFFFFFF
		}
		if got != want {
			t.Errorf("readEntry(%d) = %#x, want %#x", cluster, got, want)
		}
	}
}

func TestFAT12EntryRoundTrip(t *testing.T) { testEntryRoundTrip(t, kindFAT12) }
func TestFAT16EntryRoundTrip(t *testing.T) { testEntryRoundTrip(t, kindFAT16) }
func TestFAT32EntryRoundTrip(t *testing.T) { testEntryRoundTrip(t, kindFAT32) }

func TestFAT32PreservesReservedBits(t *testing.T) {
	tb := newTestTable(kindFAT32, 4000)
	const reserved = uint32(0xF0000000)
	// Seed the stored entry with its reserved bits set; writeEntry itself
	// only stores the low 28 bits of the value it is given.
	if err := tb.loadSector(0); err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(tb.buf[firstDataCluster*4:], reserved|0x1234567)
	if err := tb.writeEntry(firstDataCluster, 0x0000010); err != nil {
		t.Fatal(err)
	}
	got, err := tb.readEntry(firstDataCluster)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x0000010 {
		t.Errorf("readEntry = %#x, want %#x", got, 0x0000010)
	}
	if raw := binary.LittleEndian.Uint32(tb.buf[firstDataCluster*4:]); raw&reserved != reserved {
		t.Errorf("stored entry = %#x, reserved bits %#x not preserved", raw, reserved)
	}
}

func TestAllocateAndFreeChain(t *testing.T) {
	tb := newTestTable(kindFAT16, 100)
	a, err := tb.allocate(0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, err := tb.allocate(a)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if b == a {
		t.Fatal("allocate returned the same cluster twice")
	}
	next, err := tb.readEntry(a)
	if err != nil {
		t.Fatal(err)
	}
	if next != b {
		t.Errorf("cluster %d links to %d, want %d", a, next, b)
	}
	if err := tb.freeChain(a); err != nil {
		t.Fatalf("freeChain: %v", err)
	}
	for _, c := range []uint32{a, b} {
		v, err := tb.readEntry(c)
		if err != nil {
			t.Fatal(err)
		}
		if v != 0 {
			t.Errorf("cluster %d = %#x after freeChain, want 0", c, v)
		}
	}
}

// TestFAT12StraddleEntry exercises the one case that crosses a sector
// boundary: an odd cluster number whose entry starts at the last byte of a
// sector. Cluster 341 lands at byte offset 511 (341 + 341/2).
func TestFAT12StraddleEntry(t *testing.T) {
	tb := newTestTable(kindFAT12, 5000)
	const cluster = 341
	const want = uint32(0x0ABC)
	if err := tb.writeEntry(cluster, want); err != nil {
		t.Fatalf("writeEntry: %v", err)
	}
	if err := tb.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got, err := tb.readEntry(cluster)
	if err != nil {
		t.Fatalf("readEntry: %v", err)
	}
	if got != want {
		t.Errorf("readEntry(%d) = %#x, want %#x", cluster, got, want)
	}
	// The neighboring even-numbered cluster shares a nibble with this entry
	// and must be unaffected.
	neighbor, err := tb.readEntry(cluster - 1)
	if err != nil {
		t.Fatalf("readEntry(neighbor): %v", err)
	}
	if neighbor != 0 {
		t.Errorf("writing cluster %d disturbed neighbor cluster %d: got %#x", cluster, cluster-1, neighbor)
	}
}

func TestFreeChainDetectsCycle(t *testing.T) {
	tb := newTestTable(kindFAT16, 10)
	const a, b = firstDataCluster, firstDataCluster + 1
	if err := tb.writeEntry(a, b); err != nil {
		t.Fatal(err)
	}
	if err := tb.writeEntry(b, a); err != nil { // cycle back to a
		t.Fatal(err)
	}
	err := tb.freeChain(a)
	if ferrors.KindOf(err) != ferrors.FatCorrupt {
		t.Fatalf("freeChain on a cyclic chain = %v, want FatCorrupt", err)
	}
}

func TestGetFreeCount(t *testing.T) {
	tb := newTestTable(kindFAT16, 10)
	free, err := tb.getFreeCount()
	if err != nil {
		t.Fatal(err)
	}
	if free != 10 {
		t.Errorf("getFreeCount = %d, want 10", free)
	}
	if _, err := tb.allocate(0); err != nil {
		t.Fatal(err)
	}
	free, err = tb.getFreeCount()
	if err != nil {
		t.Fatal(err)
	}
	if free != 9 {
		t.Errorf("getFreeCount after one allocate = %d, want 9", free)
	}
}
