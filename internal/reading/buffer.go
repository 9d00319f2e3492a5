package reading

// Buffer holds readings until a full day has been collected. It is not safe
// for concurrent use.
type Buffer struct {
	slots []Reading
	n     int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{slots: make([]Reading, capacity)}
}

// Push stores r in the next free slot. Callers check Full first; pushing into
// a full buffer panics.
func (b *Buffer) Push(r Reading) {
	b.slots[b.n] = r
	b.n++
}

func (b *Buffer) Full() bool { return b.n == len(b.slots) }

func (b *Buffer) Len() int { return b.n }

func (b *Buffer) Cap() int { return len(b.slots) }

// DrainAndReset returns the stored readings in insertion order and empties the
// buffer, whatever the caller then does with them.
func (b *Buffer) DrainAndReset() []Reading {
	out := make([]Reading, b.n)
	copy(out, b.slots[:b.n])
	b.n = 0
	return out
}
