package bridge

// Gate serializes the bootstrap handshake. While a bootstrap request is
// outstanding the gate is closed and every other message waits in FIFO order.
type Gate struct {
	method  string
	closed  bool
	pending []*Message
}

// NewGate returns an open gate for the given bootstrap method.
func NewGate(method string) *Gate {
	return &Gate{method: method}
}

// IsBootstrap reports whether msg starts the handshake.
func (g *Gate) IsBootstrap(msg *Message) bool {
	return msg.Method != "" && msg.Method == g.method
}

// Admit returns true when msg may be forwarded now. Admitting a bootstrap
// message closes the gate; a closed gate queues msg and returns false.
func (g *Gate) Admit(msg *Message) bool {
	if g.closed {
		g.pending = append(g.pending, msg)
		return false
	}
	if g.IsBootstrap(msg) {
		g.closed = true
	}
	return true
}

// Release opens the gate once the bootstrap response has been fully received.
func (g *Gate) Release() {
	g.closed = false
}

// Next pops the oldest queued message while the gate is open.
func (g *Gate) Next() (*Message, bool) {
	if g.closed || len(g.pending) == 0 {
		return nil, false
	}
	msg := g.pending[0]
	g.pending[0] = nil
	g.pending = g.pending[1:]
	return msg, true
}

// Closed reports whether a bootstrap request is outstanding.
func (g *Gate) Closed() bool {
	return g.closed
}

// Pending returns the number of queued messages.
func (g *Gate) Pending() int {
	return len(g.pending)
}
