// internal/flashfs/medium.go
package flashfs

import (
	"fmt"
	"sync"
)

// erasedByte is the value of every byte of an erased flash sector.
const erasedByte = 0xFF

// Medium is the physical flash driver contract: whole-sector erase and
// program-at-offset. Load returns the full sector image.
type Medium interface {
	Load(s Sector) ([]byte, error)
	Program(s Sector, offset int, data []byte) error
	EraseSector(s Sector) error
}

// MemMedium keeps sector images in RAM. The Fail* hooks inject errors for tests.
type MemMedium struct {
	mu      sync.Mutex
	sectors map[uint8][]byte

	FailLoad    error
	FailProgram error
	FailErase   error

	Programs int
	Erases   int
}

func NewMemMedium() *MemMedium {
	return &MemMedium{sectors: make(map[uint8][]byte)}
}

func (m *MemMedium) image(s Sector) []byte {
	img, ok := m.sectors[s.ID]
	if !ok || len(img) != int(s.Size) {
		img = erasedImage(int(s.Size))
		m.sectors[s.ID] = img
	}
	return img
}

func (m *MemMedium) Load(s Sector) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailLoad != nil {
		return nil, m.FailLoad
	}
	img := m.image(s)
	out := make([]byte, len(img))
	copy(out, img)
	return out, nil
}

func (m *MemMedium) Program(s Sector, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailProgram != nil {
		return m.FailProgram
	}
	img := m.image(s)
	if offset < 0 || offset+len(data) > len(img) {
		return fmt.Errorf("mem medium: program out of range: sector=%d offset=%d len=%d", s.ID, offset, len(data))
	}
	// Flash programming can only clear bits.
	for i, b := range data {
		img[offset+i] &= b
	}
	m.Programs++
	return nil
}

func (m *MemMedium) EraseSector(s Sector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailErase != nil {
		return m.FailErase
	}
	m.sectors[s.ID] = erasedImage(int(s.Size))
	m.Erases++
	return nil
}

// Corrupt flips one byte of a sector image.
func (m *MemMedium) Corrupt(s Sector, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img := m.image(s)
	if offset >= 0 && offset < len(img) {
		img[offset] ^= 0x5A
	}
}

func erasedImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = erasedByte
	}
	return img
}
