// internal/flashfs/types.go
package flashfs

import (
	"errors"
	"fmt"
)

// Token identifies one persisted blob within a store.
type Token uint32

// Sector describes one physical flash region backing the store.
// A zero-valued Sector terminates a sector table.
type Sector struct {
	ID   uint8  `yaml:"id"`
	Size uint32 `yaml:"size"`
	Base uint32 `yaml:"base"`
}

func (s Sector) isZero() bool { return s == Sector{} }

// DefaultSectorMap is the two 16 KiB sectors reserved for parameters on the
// reference board. The trailing zero entry is the terminator.
var DefaultSectorMap = []Sector{
	{ID: 1, Size: 16 * 1024, Base: 0x08004000},
	{ID: 2, Size: 16 * 1024, Base: 0x08008000},
	{},
}

// Trim returns sectors up to, not including, the first zero-valued entry.
func Trim(sectors []Sector) []Sector {
	for i, s := range sectors {
		if s.isZero() {
			return sectors[:i]
		}
	}
	return sectors
}

// CheckSectors validates a trimmed sector list: non-empty, unique ids,
// non-zero sizes, no overlapping address ranges.
func CheckSectors(sectors []Sector) error {
	if len(sectors) == 0 {
		return errors.New("flashfs: at least one sector required")
	}
	ids := make(map[uint8]struct{}, len(sectors))
	for i, s := range sectors {
		if s.Size == 0 {
			return fmt.Errorf("flashfs: sector %d has zero size", s.ID)
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("flashfs: duplicate sector id %d", s.ID)
		}
		ids[s.ID] = struct{}{}

		end := uint64(s.Base) + uint64(s.Size)
		for _, o := range sectors[:i] {
			oEnd := uint64(o.Base) + uint64(o.Size)
			if uint64(s.Base) < oEnd && uint64(o.Base) < end {
				return fmt.Errorf("flashfs: sector %d overlaps sector %d", s.ID, o.ID)
			}
		}
	}
	return nil
}

// BlobStore is the flash blob store contract the persistence layer consumes.
//
// Init binds the store to its sectors and to the scratch buffer that Alloc hands back.
// Read returns ErrNotFound when no valid blob exists for the token.
type BlobStore interface {
	Init(sectors []Sector, scratch []byte) error
	Alloc(token Token) ([]byte, error)
	Read(token Token) ([]byte, error)
	Write(token Token, data []byte) error
	Erase() error
}

var (
	ErrNotFound       = errors.New("flashfs: no entry")
	ErrIO             = errors.New("flashfs: i/o error")
	ErrNoSpace        = errors.New("flashfs: no space")
	ErrNotInitialized = errors.New("flashfs: not initialized")
)
