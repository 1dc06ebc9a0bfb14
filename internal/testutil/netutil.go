package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/ironrift/server/internal/protocol"
)

// UDPClient — тестовый UDP клиент с таймаутами для request/response
// обменов. Автоматически закрывается при завершении теста.
type UDPClient struct {
	conn *net.UDPConn
	buf  []byte
}

// NewUDPClient создаёт клиента, подключённого к server.
func NewUDPClient(t testing.TB, server net.Addr) *UDPClient {
	t.Helper()

	raddr, err := net.ResolveUDPAddr("udp", server.String())
	if err != nil {
		t.Fatalf("resolving server addr: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		t.Fatalf("dialing udp: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &UDPClient{conn: conn, buf: make([]byte, protocol.MaxDatagram)}
}

// Send отправляет один пакет.
func (c *UDPClient) Send(t testing.TB, pkt []byte) {
	t.Helper()
	if _, err := c.conn.Write(pkt); err != nil {
		t.Fatalf("sending packet: %v", err)
	}
}

// Recv ждёт один пакет. Падает по таймауту.
func (c *UDPClient) Recv(t testing.TB, timeout time.Duration) []byte {
	t.Helper()
	pkt := c.TryRecv(timeout)
	if pkt == nil {
		t.Fatalf("no packet within %v", timeout)
	}
	return pkt
}

// TryRecv ждёт один пакет, возвращает nil по таймауту.
// Используется для проверок вида "ответа быть не должно".
func (c *UDPClient) TryRecv(timeout time.Duration) []byte {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, c.buf)
	return out
}

// RoundTrip отправляет пакет и ждёт один ответный.
func (c *UDPClient) RoundTrip(t testing.TB, pkt []byte, timeout time.Duration) []byte {
	t.Helper()
	c.Send(t, pkt)
	return c.Recv(t, timeout)
}

// LocalAddr возвращает локальный адрес клиента.
func (c *UDPClient) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close закрывает сокет раньше cleanup'а.
func (c *UDPClient) Close() error {
	return c.conn.Close()
}
