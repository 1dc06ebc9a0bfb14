// Package udp wraps a UDP socket in a non-blocking receive queue.
//
// An Endpoint owns one socket. A background pump reads datagrams into
// pooled buffers and hands them to a buffered channel, so a service loop
// can drain packets with a plain channel receive and never park inside a
// socket read. When the queue is full the pump drops the datagram, which
// is the contract UDP callers already live with.
package udp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the receive queue capacity unless overridden.
const DefaultQueueSize = 1024

// DefaultReadBuffer is the per-datagram receive buffer size. It leaves
// room for the largest packet any of the three protocol families emits.
const DefaultReadBuffer = 4096

// Datagram is one received UDP packet. Data aliases a pooled buffer,
// call Release when the packet has been handled.
type Datagram struct {
	Data []byte
	Addr *net.UDPAddr
}

// Endpoint is a UDP socket with a pumped receive queue.
type Endpoint struct {
	conn    *net.UDPConn
	packets chan Datagram
	pool    *BytePool
	bufSize int
	log     *slog.Logger
	dropped atomic.Uint64
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Option customizes an Endpoint.
type Option func(*Endpoint)

// WithQueueSize sets the receive queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Endpoint) {
		if n > 0 {
			e.packets = make(chan Datagram, n)
		}
	}
}

// WithReadBuffer sets the per-datagram receive buffer size.
func WithReadBuffer(n int) Option {
	return func(e *Endpoint) {
		if n > 0 {
			e.bufSize = n
		}
	}
}

// WithLogger sets the logger used for socket errors.
func WithLogger(log *slog.Logger) Option {
	return func(e *Endpoint) {
		if log != nil {
			e.log = log
		}
	}
}

// Listen binds a UDP socket on addr (host:port, port 0 picks a free one)
// and starts the receive pump.
func Listen(addr string, opts ...Option) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	e := &Endpoint{
		conn:    conn,
		packets: make(chan Datagram, DefaultQueueSize),
		bufSize: DefaultReadBuffer,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = NewBytePool(e.bufSize)

	e.wg.Add(1)
	go e.readLoop()
	return e, nil
}

// readLoop pumps datagrams from the socket into the receive queue.
// Runs until the socket is closed.
func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	defer close(e.packets)

	for {
		buf := e.pool.Get(e.bufSize)
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			e.pool.Put(buf)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.log.Warn("udp read failed", "addr", e.conn.LocalAddr(), "error", err)
			continue
		}

		select {
		case e.packets <- Datagram{Data: buf[:n], Addr: addr}:
		default:
			// Queue full, drop.
			e.pool.Put(buf)
			e.dropped.Add(1)
		}
	}
}

// Packets returns the receive queue. The channel is closed after Close
// once the pump has drained.
func (e *Endpoint) Packets() <-chan Datagram {
	return e.packets
}

// Release returns a handled datagram's buffer to the pool.
func (e *Endpoint) Release(d Datagram) {
	e.pool.Put(d.Data)
}

// Send writes one packet to addr.
func (e *Endpoint) Send(addr *net.UDPAddr, pkt []byte) error {
	if _, err := e.conn.WriteToUDP(pkt, addr); err != nil {
		return fmt.Errorf("send udp to %s: %w", addr, err)
	}
	return nil
}

// LocalAddr returns the bound address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Port returns the bound port.
func (e *Endpoint) Port() int {
	return e.LocalAddr().Port
}

// Dropped returns the number of datagrams discarded because the receive
// queue was full.
func (e *Endpoint) Dropped() uint64 {
	return e.dropped.Load()
}

// Close shuts the socket down and waits for the pump to exit.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
		e.wg.Wait()
	})
	return e.closeErr
}
