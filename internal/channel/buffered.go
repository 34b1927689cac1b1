package channel

// Buffered is a bounded queue backed by a buffered channel.
type Buffered[T any] struct {
	ch chan T
}

// NewBuffered creates a queue holding up to size values.
func NewBuffered[T any](size int) *Buffered[T] {
	if size < 1 {
		size = 1
	}
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send blocks until there is room in the queue.
func (b *Buffered[T]) Send(v T) {
	b.ch <- v
}

// TrySend enqueues v unless the queue is full.
func (b *Buffered[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of queued values.
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Cap returns the queue capacity.
func (b *Buffered[T]) Cap() int {
	return cap(b.ch)
}

func (b *Buffered[T]) Close() {
	close(b.ch)
}
