package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/ironrift/server/internal/protocol"
)

// UDPPeer — заглушка внешнего сервиса: слушающий UDP сокет, который
// принимает от кого угодно и отвечает на конкретный адрес. В тестах
// играет роль координатора или auth-сервиса.
type UDPPeer struct {
	conn *net.UDPConn
	buf  []byte
}

// NewUDPPeer binds a loopback socket and closes it with the test.
func NewUDPPeer(t testing.TB) *UDPPeer {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("binding peer socket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &UDPPeer{conn: conn, buf: make([]byte, protocol.MaxDatagram)}
}

// Addr возвращает адрес, на котором слушает заглушка.
func (p *UDPPeer) Addr() *net.UDPAddr {
	return p.conn.LocalAddr().(*net.UDPAddr)
}

// RecvFrom ждёт один пакет. Падает по таймауту.
func (p *UDPPeer) RecvFrom(t testing.TB, timeout time.Duration) ([]byte, *net.UDPAddr) {
	t.Helper()
	pkt, from := p.TryRecvFrom(timeout)
	if pkt == nil {
		t.Fatalf("no packet within %v", timeout)
	}
	return pkt, from
}

// TryRecvFrom ждёт один пакет, возвращает nil по таймауту.
func (p *UDPPeer) TryRecvFrom(timeout time.Duration) ([]byte, *net.UDPAddr) {
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
	n, from, err := p.conn.ReadFromUDP(p.buf)
	if err != nil {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, p.buf)
	return out, from
}

// SendTo отправляет пакет на адрес.
func (p *UDPPeer) SendTo(t testing.TB, addr *net.UDPAddr, pkt []byte) {
	t.Helper()
	if _, err := p.conn.WriteToUDP(pkt, addr); err != nil {
		t.Fatalf("sending to %v: %v", addr, err)
	}
}
