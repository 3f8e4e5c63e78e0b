package fat

import (
	"bytes"
	"testing"

	"tinyfat/ferrors"
)

func TestWriteThenRead(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))

	f, err := v.Open("/hello.txt", Write|Create|Truncate)
	if err != nil {
		t.Fatalf("open for write: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err = v.Open("/hello.txt", Read)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	buf := make([]byte, 16)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("read %q, want hello", buf[:n])
	}
	if f.Size() != 5 {
		t.Errorf("Size() = %d, want 5", f.Size())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestReadPastEndIsEof(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	f, err := v.Open("/empty.txt", Write|Create)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	f, err = v.Open("/empty.txt", Read)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	if n != 0 || ferrors.KindOf(err) != ferrors.Eof {
		t.Fatalf("Read on empty file = (%d, %v), want (0, Eof)", n, err)
	}
}

// TestSeekPastEndThenWrite mirrors scenario S6: seeking past the current
// end of a freshly truncated file and writing one byte must zero-fill the
// gap, never leaving it undefined.
func TestSeekPastEndThenWrite(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	f, err := v.Open("/s.bin", Write|Create|Truncate)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(5000, SeekSet); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := f.Write([]byte{0x5A}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = v.Open("/s.bin", Read)
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != 5001 {
		t.Fatalf("Size() = %d, want 5001", f.Size())
	}
	buf := make([]byte, 5001)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 5001 {
		t.Fatalf("read %d bytes, want 5001", n)
	}
	if !bytes.Equal(buf[:5000], make([]byte, 5000)) {
		t.Error("gap before the written byte was not zero-filled")
	}
	if buf[5000] != 0x5A {
		t.Errorf("buf[5000] = %#x, want 0x5a", buf[5000])
	}
	f.Close()
}

func TestTruncateAtCurrentPosition(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	f, err := v.Open("/t.bin", Write|Create|Truncate)
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte{0x11}, int(v.clusterSize)*3)
	if _, err := f.Write(payload); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(int64(v.clusterSize), SeekSet); err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if f.Size() != v.clusterSize {
		t.Errorf("Size() = %d, want %d", f.Size(), v.clusterSize)
	}
	f.Close()

	f, err = v.Open("/t.bin", Read)
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != v.clusterSize {
		t.Errorf("reopened Size() = %d, want %d", f.Size(), v.clusterSize)
	}
	f.Close()
}

func TestUnlink(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	f, err := v.Open("/gone.txt", Write|Create)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("x"))
	f.Close()

	if err := v.Unlink("/gone.txt"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if v.Exists("/gone.txt") {
		t.Fatal("file still exists after unlink")
	}
}

func TestRenameSameParent(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	f, err := v.Open("/old.txt", Write|Create)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("data"))
	f.Close()

	if err := v.Rename("/old.txt", "new.txt"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if v.Exists("/old.txt") {
		t.Fatal("old name still resolves after rename")
	}
	f, err = v.Open("/new.txt", Read)
	if err != nil {
		t.Fatalf("open new name: %v", err)
	}
	buf := make([]byte, 4)
	n, _ := f.Read(buf)
	if string(buf[:n]) != "data" {
		t.Errorf("renamed file content = %q, want data", buf[:n])
	}
	f.Close()
}

func TestMkdirRmdir(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	if err := v.Mkdir("/sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	st, err := v.Stat("/sub")
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsDir() {
		t.Fatal("Stat(/sub) is not reported as a directory")
	}

	f, err := v.Open("/sub/inner.txt", Write|Create)
	if err != nil {
		t.Fatalf("create inside subdir: %v", err)
	}
	f.Close()

	if err := v.Rmdir("/sub"); err == nil {
		t.Fatal("Rmdir on a non-empty directory should fail")
	}
	if err := v.Unlink("/sub/inner.txt"); err != nil {
		t.Fatal(err)
	}
	if err := v.Rmdir("/sub"); err != nil {
		t.Fatalf("rmdir: %v", err)
	}
	if v.Exists("/sub") {
		t.Fatal("directory still exists after rmdir")
	}
}

func TestOpenModeValidation(t *testing.T) {
	v := mustMount(newFAT16Disk(65536))
	if _, err := v.Open("/x.txt", Excl); err == nil {
		t.Fatal("Excl without Create should be rejected")
	}
	if _, err := v.Open("/x.txt", Read|Truncate); err == nil {
		t.Fatal("Truncate with only Read should be rejected")
	}
}
