// internal/flashfs/bolt.go
package flashfs

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

// sectorImage is how one emulated sector is kept in the bolt file.
type sectorImage struct {
	ID         uint8  `msgpack:"id"`
	Base       uint32 `msgpack:"base"`
	Size       uint32 `msgpack:"size"`
	EraseCount uint32 `msgpack:"erase_count"`
	Data       []byte `msgpack:"data"`
}

// BoltMedium emulates flash sectors inside one bucket of a bolt database,
// so parameter state survives host restarts.
type BoltMedium struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (or creates) the bolt file backing one or more media.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("flashfs: open %s: %w", path, err)
	}
	return db, nil
}

// NewBoltMedium returns a medium stored in bucket. Independent registries use
// independent buckets.
func NewBoltMedium(db *bolt.DB, bucket string) *BoltMedium {
	return &BoltMedium{db: db, bucket: []byte(bucket)}
}

func sectorKey(s Sector) []byte {
	return []byte(fmt.Sprintf("sector-%03d", s.ID))
}

// get decodes the stored image of s. A missing or foreign-sized image reads as erased.
func (m *BoltMedium) get(b *bolt.Bucket, s Sector) (sectorImage, error) {
	img := sectorImage{ID: s.ID, Base: s.Base, Size: s.Size}

	if b != nil {
		if raw := b.Get(sectorKey(s)); raw != nil {
			var stored sectorImage
			if err := msgpack.Unmarshal(raw, &stored); err != nil {
				return img, fmt.Errorf("bolt medium: decode sector %d: %w", s.ID, err)
			}
			img.EraseCount = stored.EraseCount
			if stored.Size == s.Size && len(stored.Data) == int(s.Size) {
				img.Data = append([]byte(nil), stored.Data...)
			}
		}
	}

	if img.Data == nil {
		img.Data = erasedImage(int(s.Size))
	}
	return img, nil
}

func (m *BoltMedium) put(b *bolt.Bucket, s Sector, img sectorImage) error {
	raw, err := msgpack.Marshal(&img)
	if err != nil {
		return fmt.Errorf("bolt medium: encode sector %d: %w", s.ID, err)
	}
	return b.Put(sectorKey(s), raw)
}

func (m *BoltMedium) Load(s Sector) ([]byte, error) {
	var out []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		img, err := m.get(tx.Bucket(m.bucket), s)
		if err != nil {
			return err
		}
		out = make([]byte, len(img.Data))
		copy(out, img.Data)
		return nil
	})
	return out, err
}

func (m *BoltMedium) Program(s Sector, offset int, data []byte) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(m.bucket)
		if err != nil {
			return err
		}
		img, err := m.get(b, s)
		if err != nil {
			return err
		}
		if offset < 0 || offset+len(data) > len(img.Data) {
			return fmt.Errorf("bolt medium: program out of range: sector=%d offset=%d len=%d", s.ID, offset, len(data))
		}
		for i, v := range data {
			img.Data[offset+i] &= v
		}
		return m.put(b, s, img)
	})
}

func (m *BoltMedium) EraseSector(s Sector) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(m.bucket)
		if err != nil {
			return err
		}
		img, err := m.get(b, s)
		if err != nil {
			return err
		}
		img.Data = erasedImage(int(s.Size))
		img.EraseCount++
		return m.put(b, s, img)
	})
}

// EraseCount reports how many times sector s was erased.
func (m *BoltMedium) EraseCount(s Sector) (uint32, error) {
	var n uint32
	err := m.db.View(func(tx *bolt.Tx) error {
		img, err := m.get(tx.Bucket(m.bucket), s)
		n = img.EraseCount
		return err
	})
	return n, err
}
