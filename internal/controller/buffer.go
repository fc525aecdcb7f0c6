package controller

// maxBuffered caps the pending receiver bytes; when the producer
// outruns the loop the oldest bytes are dropped.
const maxBuffered = 4096

// Buffer queues receiver bytes between the device actor's messages and
// the loop's bounded per-iteration drain. Feed and Drain run on the
// same mailbox thread.
type Buffer struct {
	data []byte
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Feed appends a chunk of receiver bytes.
func (b *Buffer) Feed(p []byte) {
	b.data = append(b.data, p...)
	if over := len(b.data) - maxBuffered; over > 0 {
		b.data = b.data[over:]
	}
}

// Drain moves up to len(p) buffered bytes into p and returns how many
// it moved. It never blocks.
func (b *Buffer) Drain(p []byte) int {
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n
}
