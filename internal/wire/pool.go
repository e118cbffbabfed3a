package wire

// Pool is a small ring of reusable scratch buffers. Returned buffers
// keep their grown capacity, so the ring converges on the largest
// request seen. Not safe for concurrent use; the capture lock already
// serializes callers.
type Pool struct {
	bufs [][]byte
	get  int
	put  int
}

// NewPool returns a pool with n slots. n must be at least 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{bufs: make([][]byte, n)}
}

// Get returns a zero-length buffer from the ring. The caller appends to
// it and should hand it back with Put once done.
func (p *Pool) Get() []byte {
	i := p.get
	p.get = (p.get + 1) % len(p.bufs)
	b := p.bufs[i]
	p.bufs[i] = nil
	return b[:0]
}

// Put returns a buffer to the ring, keeping its capacity for reuse.
func (p *Pool) Put(b []byte) {
	i := p.put
	p.put = (p.put + 1) % len(p.bufs)
	p.bufs[i] = b
}
