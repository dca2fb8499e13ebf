// internal/flashfs/store.go
package flashfs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// ---- RECORD LAYOUT (LOCKED) ----
//
// 0-1   magic 0x4E56 ("NV"), little-endian
// 2-3   reserved (0x0000)
// 4-7   token
// 8-11  payload size
// 12-19 xxhash64 over bytes 4-11 and the payload
// 20+   payload, padded with erased bytes to a 4-byte boundary
//
// Records are appended across the sector list in order and never span sectors.

const (
	recordMagic      uint16 = 0x4E56
	recordHeaderSize        = 20
	recordAlign             = 4
)

type record struct {
	token  Token
	data   []byte
	sector int
	offset int
	valid  bool
}

// Store is a flash blob store that keeps one append-only record log over a
// sector list. The latest valid record of a token is its current blob.
// Store is not safe for concurrent use.
type Store struct {
	medium  Medium
	log     *zap.Logger
	sectors []Sector
	scratch []byte
	ready   bool
}

// NewStore creates a store over medium. A nil logger disables logging.
func NewStore(medium Medium, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{medium: medium, log: log}
}

// Init binds the store to sectors (a zero-valued entry terminates the list)
// and to the scratch buffer returned by Alloc.
func (s *Store) Init(sectors []Sector, scratch []byte) error {
	trimmed := Trim(sectors)
	if err := CheckSectors(trimmed); err != nil {
		return err
	}
	s.sectors = append([]Sector(nil), trimmed...)
	s.scratch = scratch
	s.ready = true

	s.log.Debug("flash store initialized",
		zap.Int("sectors", len(s.sectors)),
		zap.Int("scratch_size", len(scratch)),
	)
	return nil
}

// Alloc returns the scratch buffer for token when a blob of its size fits in a sector.
func (s *Store) Alloc(token Token) ([]byte, error) {
	if !s.ready {
		return nil, ErrNotInitialized
	}
	if len(s.scratch) == 0 {
		return nil, fmt.Errorf("flashfs: alloc token=%d: empty scratch buffer", token)
	}
	if !s.fitsInSector(len(s.scratch)) {
		return nil, fmt.Errorf("flashfs: alloc token=%d size=%d: %w", token, len(s.scratch), ErrNoSpace)
	}
	return s.scratch, nil
}

// Read returns a copy of the current blob for token.
func (s *Store) Read(token Token) ([]byte, error) {
	if !s.ready {
		return nil, ErrNotInitialized
	}
	recs, _, err := s.scan()
	if err != nil {
		return nil, err
	}

	var found *record
	for i := range recs {
		if recs[i].valid && recs[i].token == token {
			found = &recs[i]
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}

	out := make([]byte, len(found.data))
	copy(out, found.data)
	return out, nil
}

// Write appends a new record for token, compacting the log when it is full.
func (s *Store) Write(token Token, data []byte) error {
	if !s.ready {
		return ErrNotInitialized
	}
	if !s.fitsInSector(len(data)) {
		return fmt.Errorf("flashfs: write token=%d size=%d: %w", token, len(data), ErrNoSpace)
	}

	recs, tail, err := s.scan()
	if err != nil {
		return err
	}

	rec := encodeRecord(token, data)

	if si, off, ok := s.place(tail, len(rec)); ok {
		return s.program(si, off, rec)
	}

	// Log full: keep the latest valid record per token, erase, rewrite.
	s.log.Info("flash store compacting", zap.Uint32("token", uint32(token)))

	live := latestPerToken(recs)
	delete(live.byToken, token)

	if err := s.Erase(); err != nil {
		return err
	}

	pos := position{}
	for _, t := range live.order {
		d, ok := live.byToken[t]
		if !ok {
			continue
		}
		if pos, err = s.appendAt(pos, encodeRecord(t, d)); err != nil {
			return err
		}
	}
	_, err = s.appendAt(pos, rec)
	return err
}

// Erase erases every sector of the store.
func (s *Store) Erase() error {
	if !s.ready {
		return ErrNotInitialized
	}
	for _, sec := range s.sectors {
		if err := s.medium.EraseSector(sec); err != nil {
			return fmt.Errorf("%w: erase sector %d: %v", ErrIO, sec.ID, err)
		}
	}
	return nil
}

// ---- internal log helpers ----

// position is the first free byte of the log.
type position struct {
	sector int
	offset int
}

func (s *Store) fitsInSector(payload int) bool {
	need := recordLen(payload)
	for _, sec := range s.sectors {
		if need <= int(sec.Size) {
			return true
		}
	}
	return false
}

func (s *Store) place(tail position, n int) (int, int, bool) {
	for si := tail.sector; si < len(s.sectors); si++ {
		off := 0
		if si == tail.sector {
			off = tail.offset
		}
		if off+n <= int(s.sectors[si].Size) {
			return si, off, true
		}
	}
	return 0, 0, false
}

func (s *Store) appendAt(pos position, rec []byte) (position, error) {
	si, off, ok := s.place(pos, len(rec))
	if !ok {
		return pos, ErrNoSpace
	}
	if err := s.program(si, off, rec); err != nil {
		return pos, err
	}
	return position{sector: si, offset: off + len(rec)}, nil
}

func (s *Store) program(si, off int, rec []byte) error {
	sec := s.sectors[si]
	if err := s.medium.Program(sec, off, rec); err != nil {
		return fmt.Errorf("%w: program sector %d offset %d: %v", ErrIO, sec.ID, off, err)
	}
	return nil
}

// scan walks every sector and returns the records in log order plus the
// first free position after the last record.
func (s *Store) scan() ([]record, position, error) {
	var recs []record
	tail := position{}

	for si, sec := range s.sectors {
		img, err := s.medium.Load(sec)
		if err != nil {
			return nil, tail, fmt.Errorf("%w: load sector %d: %v", ErrIO, sec.ID, err)
		}

		off := 0
		for off+recordHeaderSize <= len(img) {
			magic := binary.LittleEndian.Uint16(img[off : off+2])
			if magic == 0xFFFF {
				break
			}
			size := int(binary.LittleEndian.Uint32(img[off+8 : off+12]))
			n := recordLen(size)
			if magic != recordMagic || size < 0 || off+n > len(img) {
				// Unreadable tail: nothing more can be appended to this sector.
				s.log.Warn("flash store: garbage in sector", zap.Uint8("sector", sec.ID), zap.Int("offset", off))
				off = len(img)
				break
			}

			r := record{
				token:  Token(binary.LittleEndian.Uint32(img[off+4 : off+8])),
				data:   img[off+recordHeaderSize : off+recordHeaderSize+size],
				sector: si,
				offset: off,
			}
			r.valid = binary.LittleEndian.Uint64(img[off+12:off+20]) == checksum(img[off+4:off+12], r.data)
			if !r.valid {
				s.log.Warn("flash store: skipping corrupt record",
					zap.Uint8("sector", sec.ID),
					zap.Int("offset", off),
				)
			}
			recs = append(recs, r)
			off += n
		}

		if off > 0 {
			tail = position{sector: si, offset: off}
		}
	}

	return recs, tail, nil
}

type liveSet struct {
	order   []Token
	byToken map[Token][]byte
}

func latestPerToken(recs []record) liveSet {
	ls := liveSet{byToken: make(map[Token][]byte)}
	for _, r := range recs {
		if !r.valid {
			continue
		}
		if _, seen := ls.byToken[r.token]; !seen {
			ls.order = append(ls.order, r.token)
		}
		d := make([]byte, len(r.data))
		copy(d, r.data)
		ls.byToken[r.token] = d
	}
	return ls
}

func recordLen(payload int) int {
	n := recordHeaderSize + payload
	if rem := n % recordAlign; rem != 0 {
		n += recordAlign - rem
	}
	return n
}

func encodeRecord(token Token, data []byte) []byte {
	rec := make([]byte, recordLen(len(data)))
	for i := range rec {
		rec[i] = erasedByte
	}
	binary.LittleEndian.PutUint16(rec[0:2], recordMagic)
	binary.LittleEndian.PutUint16(rec[2:4], 0)
	binary.LittleEndian.PutUint32(rec[4:8], uint32(token))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(data)))
	copy(rec[recordHeaderSize:], data)
	binary.LittleEndian.PutUint64(rec[12:20], checksum(rec[4:12], data))
	return rec
}

func checksum(hdr, data []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(hdr)
	_, _ = d.Write(data)
	return d.Sum64()
}

// IsNotFound reports whether err means the store holds no blob for a token.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
