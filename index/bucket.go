package index

import (
	"runtime"
	"sync/atomic"
)

// bucket is the stored form of a PostingMeta. Seq is odd while the writer
// rewrites Meta; a reader retries until it sees the same even Seq before
// and after reading every field.
type bucket struct {
	Seq  uint64
	Meta PostingMeta
}

// maxStuckSpins bounds how long load waits on one odd Seq, which only a
// writer that died mid-store can leave behind.
const maxStuckSpins = 1 << 12

func (b *bucket) load() PostingMeta {
	var (
		stuck uint64
		spins int
	)

	for {
		seq := atomic.LoadUint64(&b.Seq)
		m := b.fields()

		if seq&1 == 0 {
			if atomic.LoadUint64(&b.Seq) == seq {
				return m
			}
		} else if seq != stuck {
			stuck, spins = seq, 0
		} else if spins++; spins >= maxStuckSpins {
			return m
		}

		runtime.Gosched()
	}
}

func (b *bucket) fields() PostingMeta {
	return PostingMeta{
		Size:   atomic.LoadUint64(&b.Meta.Size),
		Offset: atomic.LoadUint64(&b.Meta.Offset),
		MaxID:  atomic.LoadUint64(&b.Meta.MaxID),
		Aux:    atomic.LoadUint64(&b.Meta.Aux),
	}
}

// store publishes m. It must only be called by the single writer.
func (b *bucket) store(m PostingMeta) {
	seq := atomic.LoadUint64(&b.Seq) | 1
	atomic.StoreUint64(&b.Seq, seq)

	atomic.StoreUint64(&b.Meta.Size, m.Size)
	atomic.StoreUint64(&b.Meta.Offset, m.Offset)
	atomic.StoreUint64(&b.Meta.MaxID, m.MaxID)
	atomic.StoreUint64(&b.Meta.Aux, m.Aux)

	atomic.StoreUint64(&b.Seq, seq+1)
}

// settle makes Seq even again after a writer died mid-store.
func (b *bucket) settle() {
	if seq := atomic.LoadUint64(&b.Seq); seq&1 != 0 {
		atomic.StoreUint64(&b.Seq, seq+1)
	}
}
