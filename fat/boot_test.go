package fat

import "testing"

func TestClassifyFATTypeBoundaries(t *testing.T) {
	cases := []struct {
		clusters uint32
		want     kind
	}{
		{4084, kindFAT12},
		{4085, kindFAT16},
		{65524, kindFAT16},
		{65525, kindFAT32},
	}
	for _, c := range cases {
		if got := classifyFATType(c.clusters); got != c.want {
			t.Errorf("classifyFATType(%d) = %v, want %v", c.clusters, got, c.want)
		}
	}
}

func TestMountFAT32(t *testing.T) {
	// 32 reserved + 2*512 FAT sectors leave 65530 data clusters of 8 sectors,
	// above the 65525-cluster FAT32 threshold.
	d := newFAT32Disk(32+2*512+65530*8, 8)
	v := mustMount(d)
	if v.typ != kindFAT32 {
		t.Fatalf("mounted type = %v, want FAT32", v.typ)
	}
	if v.rootCluster != 2 {
		t.Errorf("rootCluster = %d, want 2", v.rootCluster)
	}
	f, err := v.Open("/growth.bin", Create|Write)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Write enough to span several clusters (8 sectors/cluster = 4096
	// bytes/cluster) and confirm the chain-growth path works end to end.
	data := make([]byte, 4096*3+100)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := v.Open("/growth.bin", Read)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	got := make([]byte, len(data))
	if _, err := f2.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], data[i])
		}
	}
}

func TestMountPartitionedFAT16(t *testing.T) {
	const partitionLBA = 2048
	d := newPartitionedFAT16Disk(20000, partitionLBA)
	v := mustMount(d)
	if v.typ != kindFAT16 {
		t.Fatalf("mounted type = %v, want FAT16", v.typ)
	}
	if v.partitionStart != partitionLBA {
		t.Errorf("partitionStart = %d, want %d", v.partitionStart, partitionLBA)
	}
	f, err := v.Open("/hello.txt", Create|Write)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write([]byte("hi from a partitioned disk")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
