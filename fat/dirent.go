package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/encoding/charmap"

	"tinyfat/ferrors"
)

// Byte offsets within a 32-byte directory entry, standard FAT layout.
const (
	dirNameOff       = 0
	dirAttrOff       = 11
	dirCrtTime10Off  = 13
	dirCrtTimeOff    = 14 // CrtTime(2)+CrtDate(2), written together.
	dirLstAccDateOff = 18
	dirFstClusHIOff  = 20
	dirModTimeOff    = 22 // WrtTime(2)+WrtDate(2), written together.
	dirFstClusLOOff  = 26
	dirFileSizeOff   = 28
)

// Attribute bits.
const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	nameFreeMarker    = 0xE5
	nameEscapedE5     = 0x05
	nameEndOfDirMarker = 0x00
)

// dirEntry is a read/write accessor over one 32-byte short-name directory
// entry slot.
type dirEntry struct{ b []byte }

func (d dirEntry) isFree() bool     { return d.b[dirNameOff] == nameEndOfDirMarker || d.b[dirNameOff] == nameFreeMarker }
func (d dirEntry) isEndMarker() bool { return d.b[dirNameOff] == nameEndOfDirMarker }
func (d dirEntry) isLFN() bool      { return d.b[dirAttrOff]&attrLongName == attrLongName }
func (d dirEntry) attr() byte       { return d.b[dirAttrOff] }
func (d dirEntry) setAttr(a byte)   { d.b[dirAttrOff] = a }

func (d dirEntry) shortName() [11]byte {
	var name [11]byte
	copy(name[:], d.b[dirNameOff:dirNameOff+11])
	if name[0] == nameEscapedE5 {
		name[0] = nameFreeMarker
	}
	return name
}

func (d dirEntry) setShortName(name [11]byte) {
	if name[0] == nameFreeMarker {
		name[0] = nameEscapedE5
	}
	copy(d.b[dirNameOff:dirNameOff+11], name[:])
}

func (d dirEntry) markFree() { d.b[dirNameOff] = nameFreeMarker }

func (d dirEntry) cluster() uint32 {
	hi := binary.LittleEndian.Uint16(d.b[dirFstClusHIOff:])
	lo := binary.LittleEndian.Uint16(d.b[dirFstClusLOOff:])
	return uint32(hi)<<16 | uint32(lo)
}

func (d dirEntry) setCluster(c uint32) {
	binary.LittleEndian.PutUint16(d.b[dirFstClusHIOff:], uint16(c>>16))
	binary.LittleEndian.PutUint16(d.b[dirFstClusLOOff:], uint16(c))
}

func (d dirEntry) size() uint32     { return binary.LittleEndian.Uint32(d.b[dirFileSizeOff:]) }
func (d dirEntry) setSize(n uint32) { binary.LittleEndian.PutUint32(d.b[dirFileSizeOff:], n) }

func (d dirEntry) setCreated(t time.Time) {
	date, tm := packDateTime(t)
	binary.LittleEndian.PutUint16(d.b[dirCrtTimeOff:], tm)
	binary.LittleEndian.PutUint16(d.b[dirCrtTimeOff+2:], date)
	d.b[dirCrtTime10Off] = 0
	binary.LittleEndian.PutUint16(d.b[dirLstAccDateOff:], date)
}

func (d dirEntry) setModified(t time.Time) {
	date, tm := packDateTime(t)
	binary.LittleEndian.PutUint16(d.b[dirModTimeOff:], tm)
	binary.LittleEndian.PutUint16(d.b[dirModTimeOff+2:], date)
}

func (d dirEntry) modTime() time.Time {
	tm := binary.LittleEndian.Uint16(d.b[dirModTimeOff:])
	date := binary.LittleEndian.Uint16(d.b[dirModTimeOff+2:])
	return unpackDateTime(date, tm)
}

// packDateTime implements §4.8's bit packing.
func packDateTime(t time.Time) (date, tm uint16) {
	y := t.Year()
	if y < 1980 {
		y = 1980
	}
	date = uint16((y-1980)&0x7F)<<9 | uint16(t.Month()&0x0F)<<5 | uint16(t.Day()&0x1F)
	tm = uint16(t.Hour()&0x1F)<<11 | uint16(t.Minute()&0x3F)<<5 | uint16((t.Second()/2)&0x1F)
	return date, tm
}

func unpackDateTime(date, tm uint16) time.Time {
	year := 1980 + int(date>>9)
	month := time.Month((date >> 5) & 0x0F)
	day := int(date & 0x1F)
	hour := int(tm >> 11)
	minute := int((tm >> 5) & 0x3F)
	second := 2 * int(tm&0x1F)
	if month < time.January {
		month = time.January
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// shortNameDisplay decodes an 11-byte 8.3 name into its dotted, lower-cased
// display form per §4.4. Bytes 0x80-0xFF are OEM codepage 437 characters
// (the same extended range the teacher's embedded cp_oem2uni tables
// translate) and are decoded through package text's charmap rather than
// shown as raw Latin-1.
func shortNameDisplay(name [11]byte) string {
	base := decodeOEM(bytes.TrimRight(name[:8], " "))
	ext := decodeOEM(bytes.TrimRight(name[8:11], " "))
	s := strings.ToLower(base)
	if ext != "" {
		s += "." + strings.ToLower(ext)
	}
	return s
}

func decodeOEM(raw []byte) string {
	ascii := true
	for _, b := range raw {
		if b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(raw)
	}
	s, err := charmap.CodePage437.NewDecoder().String(string(raw))
	if err != nil {
		return string(raw)
	}
	return s
}

// fatLegalByte reports whether b may appear in an 8.3 short name. Bytes
// above 0x7F reach here only once toOEMByte has already confirmed they
// round-trip through codepage 437.
func fatLegalByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case strings.IndexByte("$%'-_@~`!(){}^#&", b) >= 0:
		return true
	case b >= 0x80:
		return true
	}
	return false
}

// toOEMByte encodes a rune as a single codepage-437 short-name byte, ASCII
// letters uppercased first. It reports false for runes codepage 437 cannot
// represent in one byte (e.g. most of the BMP outside Latin-1/box-drawing).
func toOEMByte(r rune) (byte, bool) {
	if r >= 'a' && r <= 'z' {
		r = unicode.ToUpper(r)
	}
	if r < 0x80 {
		return byte(r), true
	}
	enc, err := charmap.CodePage437.NewEncoder().String(string(r))
	if err != nil || len(enc) != 1 {
		return 0, false
	}
	return enc[0], true
}

// toShortName converts a basename to an 11-byte, space-padded 8.3 name, per
// §4.7's "creating a new entry". LFN fragments are never produced (write
// path is short-name only).
func toShortName(base string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base = strings.TrimLeft(base, ". ")
	ext := ""
	if dot := strings.LastIndexByte(base, '.'); dot >= 0 {
		ext = base[dot+1:]
		base = base[:dot]
	}
	bi := 0
	for _, r := range base {
		if bi >= 8 {
			break
		}
		c, ok := toOEMByte(r)
		if !ok || !fatLegalByte(c) {
			continue
		}
		out[bi] = c
		bi++
	}
	if bi == 0 {
		return out, ferrors.New(ferrors.InvalidName, "fat.toShortName")
	}
	ei := 0
	for _, r := range ext {
		if ei >= 3 {
			break
		}
		c, ok := toOEMByte(r)
		if !ok || !fatLegalByte(c) {
			continue
		}
		out[8+ei] = c
		ei++
	}
	if out[0] == nameFreeMarker {
		out[0] = nameEscapedE5
	}
	return out, nil
}

// shortNameChecksum computes the LFN checksum byte for an 11-byte short
// name (§9 design note). The directory reader compares it against each LFN
// run's stored checksum before using the assembled long name.
func shortNameChecksum(name [11]byte) byte {
	var sum byte
	for _, c := range name {
		sum = ((sum >> 1) | (sum << 7)) + c
	}
	return sum
}

// LFN fragment offsets within its 32-byte slot.
const (
	ldirOrdOff        = 0
	ldirName1Off      = 1
	ldirAttrOff       = 11
	ldirTypeOff       = 12
	ldirChksumOff     = 13
	ldirName2Off      = 14
	ldirFstClusLOOff  = 26
	ldirName3Off      = 28

	lfnLastFragmentBit = 0x40
	lfnOrdinalMask     = 0x1F
	lfnCharsPerEntry   = 13
)

type lfnEntry struct{ b []byte }

func (l lfnEntry) ordinal() int  { return int(l.b[ldirOrdOff] & lfnOrdinalMask) }
func (l lfnEntry) isLast() bool  { return l.b[ldirOrdOff]&lfnLastFragmentBit != 0 }
func (l lfnEntry) checksum() byte { return l.b[ldirChksumOff] }

// chars returns the 13 UTF-16 code units carried by this fragment.
func (l lfnEntry) chars() [lfnCharsPerEntry]uint16 {
	var out [lfnCharsPerEntry]uint16
	for i := 0; i < 5; i++ {
		out[i] = binary.LittleEndian.Uint16(l.b[ldirName1Off+2*i:])
	}
	for i := 0; i < 6; i++ {
		out[5+i] = binary.LittleEndian.Uint16(l.b[ldirName2Off+2*i:])
	}
	for i := 0; i < 2; i++ {
		out[11+i] = binary.LittleEndian.Uint16(l.b[ldirName3Off+2*i:])
	}
	return out
}
