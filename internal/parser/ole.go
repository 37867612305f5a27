package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Compound file (OLE2) layout as read by github.com/extrame/ole2. That
// reader trusts every sector index it finds: an index past the allocation
// table exits the process, and an unterminated chain loops forever. The
// checks below walk the same structures with the same arithmetic and reject
// anything the reader could not finish.
const (
	oleHeaderSize      = 512
	oleSectorSize      = 512
	oleShortSectorSize = 64
	oleDirEntrySize    = 128
	oleHeaderMSATLen   = 109

	oleEndOfChain = 0xFFFFFFFE

	oleTypeEmpty = 0

	biffSST       = 0x00FC
	biffHyperlink = 0x01B8
)

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

type oleHeader struct {
	ID              [2]uint32
	CLSID           [4]uint32
	MinorVersion    uint16
	MajorVersion    uint16
	ByteOrder       uint16
	SectorShift     uint16
	MiniSectorShift uint16
	_               uint16
	_               uint64
	FATSectors      uint32
	DirStart        uint32
	_               uint32
	MiniCutoff      uint32
	MiniFATStart    uint32
	MiniFATSectors  uint32
	DIFATStart      uint32
	DIFATSectors    uint32
	DIFAT           [oleHeaderMSATLen]uint32
}

type oleDirEntry struct {
	Name     [32]uint16
	NameSize uint16
	Type     byte
	Color    byte
	Left     uint32
	Right    uint32
	Child    uint32
	CLSID    [8]uint16
	State    uint32
	Times    [2]uint64
	Start    uint32
	Size     uint32
	Reserved uint32
}

func (e *oleDirEntry) name() string {
	return string(utf16.Decode(e.Name[:e.NameSize/2-1]))
}

type compoundFile struct {
	data    []byte
	sectors uint32
	hdr     oleHeader
	fat     []uint32
	miniFAT []uint32
}

// checkCompoundFile validates data as a workbook container, including the
// records of the workbook stream the xls reader will consume.
func checkCompoundFile(data []byte) error {
	if len(data) < oleHeaderSize+oleSectorSize {
		return errors.New("file too small for a workbook")
	}
	if !bytes.Equal(data[:len(oleMagic)], oleMagic) {
		return errors.New("not an OLE2 compound file")
	}

	cf := &compoundFile{
		data:    data,
		sectors: uint32((len(data) - oleHeaderSize + oleSectorSize - 1) / oleSectorSize),
	}
	if err := binary.Read(bytes.NewReader(data[:oleHeaderSize]), binary.LittleEndian, &cf.hdr); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if err := cf.checkHeader(); err != nil {
		return err
	}
	if err := cf.loadFAT(); err != nil {
		return err
	}
	cf.loadMiniFAT()

	entries, err := cf.directory()
	if err != nil {
		return err
	}

	var book, root *oleDirEntry
	for _, e := range entries {
		switch e.name() {
		case "Workbook", "Book":
			book = e
		case "Root Entry":
			root = e
		}
	}
	if book == nil {
		return errors.New("no Workbook stream")
	}

	var stream []byte
	if book.Size < cf.hdr.MiniCutoff {
		if root == nil {
			return errors.New("no root entry for the short stream")
		}
		stream, err = cf.shortStream(book.Start, root.Start)
	} else {
		stream, err = cf.stream(book.Start)
	}
	if err != nil {
		return err
	}
	return checkBIFFRecords(stream)
}

func (cf *compoundFile) checkHeader() error {
	h := &cf.hdr
	if h.ByteOrder != 0xFFFE {
		return errors.New("unsupported byte order")
	}
	if h.SectorShift != 9 || h.MiniSectorShift != 6 {
		return fmt.Errorf("unsupported sector size 2^%d", h.SectorShift)
	}
	if h.FATSectors == 0 || h.FATSectors > cf.sectors {
		return fmt.Errorf("allocation table size %d out of range", h.FATSectors)
	}
	if h.DIFATSectors > h.FATSectors/127+1 {
		return fmt.Errorf("master allocation table size %d out of range", h.DIFATSectors)
	}
	if h.MiniFATSectors > cf.sectors {
		return fmt.Errorf("short allocation table size %d out of range", h.MiniFATSectors)
	}
	if h.DirStart >= cf.sectors {
		return fmt.Errorf("directory sector %d out of range", h.DirStart)
	}
	return nil
}

// sector mirrors the reader's positioning: 32-bit arithmetic, and a short
// read leaves the tail zeroed.
func (cf *compoundFile) sector(sid uint32) []byte {
	buf := make([]byte, oleSectorSize)
	pos := uint64(uint32(oleHeaderSize + sid*oleSectorSize))
	if pos < uint64(len(cf.data)) {
		copy(buf, cf.data[pos:])
	}
	return buf
}

func sectorValues(sec []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(sec[i*4:])
	}
	return out
}

func (cf *compoundFile) loadFAT() error {
	h := &cf.hdr
	count := h.FATSectors
	if count > oleHeaderMSATLen {
		count = oleHeaderMSATLen
	}
	for i := uint32(0); i < count; i++ {
		sid := h.DIFAT[i]
		if sid >= cf.sectors {
			return fmt.Errorf("allocation table sector %d out of range", sid)
		}
		cf.fat = append(cf.fat, sectorValues(cf.sector(sid), oleSectorSize/4)...)
	}

	sid := h.DIFATStart
	for n := uint32(0); sid != oleEndOfChain; n++ {
		if n >= h.DIFATSectors || sid >= cf.sectors {
			return errors.New("master allocation chain is corrupt")
		}
		sec := cf.sector(sid)
		for _, fatSID := range sectorValues(sec, oleSectorSize/4-1) {
			cf.fat = append(cf.fat, sectorValues(cf.sector(fatSID), oleSectorSize/4)...)
		}
		sid = binary.LittleEndian.Uint32(sec[oleSectorSize-4:])
	}
	return nil
}

// loadMiniFAT repeats the first short allocation sector once per declared
// sector, which is how the reader builds it.
func (cf *compoundFile) loadMiniFAT() {
	h := &cf.hdr
	if h.MiniFATStart == oleEndOfChain {
		return
	}
	sec := sectorValues(cf.sector(h.MiniFATStart), oleSectorSize/4-1)
	for i := uint32(0); i < h.MiniFATSectors; i++ {
		cf.miniFAT = append(cf.miniFAT, sec...)
	}
}

// chain follows start through table. Every link must index the table and
// the chain must end in ENDOFCHAIN.
func chain(table []uint32, start uint32) ([]uint32, error) {
	var out []uint32
	for sid := start; sid != oleEndOfChain; sid = table[sid] {
		if sid >= uint32(len(table)) {
			return nil, fmt.Errorf("sector %d outside the allocation table", sid)
		}
		if len(out) >= len(table) {
			return nil, errors.New("sector chain loops")
		}
		out = append(out, sid)
	}
	return out, nil
}

// directory reads entries until the first empty one, advancing through the
// allocation table after each full sector like the reader does.
func (cf *compoundFile) directory() ([]*oleDirEntry, error) {
	var entries []*oleDirEntry
	sid := cf.hdr.DirStart
	for steps := 0; ; steps++ {
		if steps > len(cf.fat) {
			return nil, errors.New("directory chain loops")
		}
		r := bytes.NewReader(cf.sector(sid))
		for i := 0; i < oleSectorSize/oleDirEntrySize; i++ {
			e := new(oleDirEntry)
			if err := binary.Read(r, binary.LittleEndian, e); err != nil {
				return nil, fmt.Errorf("reading directory: %w", err)
			}
			if e.Type == oleTypeEmpty {
				return entries, nil
			}
			if e.NameSize < 2 || e.NameSize > 66 {
				return nil, fmt.Errorf("directory entry name size %d out of range", e.NameSize)
			}
			entries = append(entries, e)
		}
		if sid >= uint32(len(cf.fat)) {
			return nil, fmt.Errorf("directory sector %d outside the allocation table", sid)
		}
		sid = cf.fat[sid]
		if sid == oleEndOfChain {
			return entries, nil
		}
	}
}

func (cf *compoundFile) stream(start uint32) ([]byte, error) {
	sids, err := chain(cf.fat, start)
	if err != nil {
		return nil, fmt.Errorf("workbook stream: %w", err)
	}
	out := make([]byte, 0, len(sids)*oleSectorSize)
	for _, sid := range sids {
		out = append(out, cf.sector(sid)...)
	}
	return out, nil
}

func (cf *compoundFile) shortStream(start, rootStart uint32) ([]byte, error) {
	container, err := cf.stream(rootStart)
	if err != nil {
		return nil, fmt.Errorf("short stream container: %w", err)
	}
	sids, err := chain(cf.miniFAT, start)
	if err != nil {
		return nil, fmt.Errorf("workbook short stream: %w", err)
	}
	out := make([]byte, len(sids)*oleShortSectorSize)
	for i, sid := range sids {
		pos := uint64(sid) * oleShortSectorSize
		if pos < uint64(len(container)) {
			copy(out[i*oleShortSectorSize:(i+1)*oleShortSectorSize], container[pos:])
		}
	}
	return out, nil
}

// checkBIFFRecords rejects records whose declared lengths the reader would
// allocate up front: shared string counts and hyperlink string lengths. Both
// must fit in the stream.
func checkBIFFRecords(stream []byte) error {
	for pos := 0; pos+4 <= len(stream); {
		id := binary.LittleEndian.Uint16(stream[pos:])
		size := int(binary.LittleEndian.Uint16(stream[pos+2:]))
		switch id {
		case biffSST:
			if pos+12 <= len(stream) && size >= 8 {
				if count := binary.LittleEndian.Uint32(stream[pos+8:]); uint64(count) > uint64(len(stream)) {
					return fmt.Errorf("shared string table declares %d strings", count)
				}
			}
		case biffHyperlink:
			if err := checkHyperlink(stream, pos+4); err != nil {
				return err
			}
		}
		pos += 4 + size
	}
	return nil
}

// checkHyperlink follows the reader's hyperlink decoding, which reads
// straight from the stream and may run past the record.
func checkHyperlink(stream []byte, off int) error {
	var count uint32
	readCount := func() {
		if off >= 0 && off+4 <= len(stream) {
			count = binary.LittleEndian.Uint32(stream[off:])
		}
		off += 4
	}
	checked := func(units uint64) error {
		if units > uint64(len(stream)) {
			return fmt.Errorf("hyperlink declares %d characters", units)
		}
		off += int(units) * 2
		return nil
	}

	off += 8 + 20
	if off+4 > len(stream) {
		return nil
	}
	flag := binary.LittleEndian.Uint32(stream[off:])
	off += 4

	if flag&0x14 != 0 {
		readCount()
		if err := checked(uint64(count)); err != nil {
			return err
		}
	}
	if flag&0x80 != 0 {
		readCount()
		if err := checked(uint64(count)); err != nil {
			return err
		}
	}
	if flag&0x1 != 0 {
		if off+16 > len(stream) {
			return nil
		}
		hi := binary.BigEndian.Uint64(stream[off:])
		lo := binary.BigEndian.Uint64(stream[off+8:])
		off += 16
		switch {
		case hi == 0xE0C9EA79F9BACE11 && lo == 0x8C8200AA004BA90B:
			readCount()
			if err := checked(uint64(count / 2)); err != nil {
				return err
			}
		case hi == 0x303000000000000 && lo == 0xC000000000000046:
			off += 2
			readCount()
			if uint64(count) > uint64(len(stream)) {
				return fmt.Errorf("hyperlink declares a %d byte path", count)
			}
			off += int(count) + 24
			readCount()
			if count > 0 {
				readCount()
				off += 2
				if err := checked(uint64(count/2) + 1); err != nil {
					return err
				}
			}
		}
	}
	if flag&0x8 != 0 {
		readCount()
		if err := checked(uint64(count)); err != nil {
			return err
		}
	}
	return nil
}
