package gameserver

import (
	"errors"
	"net"
	"sort"
)

// ErrServerFull is returned by Admit when the configured player capacity
// is exhausted.
var ErrServerFull = errors.New("server is full")

// ClientSession is one connected player on the dedicated server.
type ClientSession struct {
	ID        uint32
	AccountID uint64
	Username  string
	HeroName  string
	TeamSlot  uint8
	Addr      *net.UDPAddr

	// EntityID is the network id of the controlled hero.
	EntityID uint32

	// SinceInput grows every tick and resets on each ClientInput.
	SinceInput float64

	// LastInputSeq is the newest applied input sequence, echoed back in
	// snapshots so the client can trim its prediction buffer.
	LastInputSeq uint32
}

// SessionManager owns clientId and address bookkeeping for a game server.
// Не потокобезопасен, живёт на event loop'е сервера.
type SessionManager struct {
	capacity int
	nextID   uint32

	byID      map[uint32]*ClientSession
	byAddr    map[string]*ClientSession
	byAccount map[uint64]*ClientSession
}

// NewSessionManager creates a manager admitting at most capacity players.
func NewSessionManager(capacity int) *SessionManager {
	return &SessionManager{
		capacity:  capacity,
		byID:      make(map[uint32]*ClientSession),
		byAddr:    make(map[string]*ClientSession),
		byAccount: make(map[uint64]*ClientSession),
	}
}

// Admit creates a session. Client ids are monotonic and never reused for
// the lifetime of the server, even across matches.
func (m *SessionManager) Admit(accountID uint64, username, heroName string, slot uint8, addr *net.UDPAddr) (*ClientSession, error) {
	if len(m.byID) >= m.capacity {
		return nil, ErrServerFull
	}

	m.nextID++
	sess := &ClientSession{
		ID:        m.nextID,
		AccountID: accountID,
		Username:  username,
		HeroName:  heroName,
		TeamSlot:  slot,
		Addr:      addr,
	}
	m.byID[sess.ID] = sess
	m.byAddr[addr.String()] = sess
	m.byAccount[accountID] = sess
	return sess, nil
}

// ByAddr resolves the session bound to a remote address.
func (m *SessionManager) ByAddr(addr *net.UDPAddr) *ClientSession {
	return m.byAddr[addr.String()]
}

// ByID resolves a session by client id.
func (m *SessionManager) ByID(id uint32) *ClientSession {
	return m.byID[id]
}

// ByAccount resolves a session by account id.
func (m *SessionManager) ByAccount(accountID uint64) *ClientSession {
	return m.byAccount[accountID]
}

// Rebind moves an existing session to a new remote address. Клиент мог
// сменить порт за NAT'ом, сессия и clientId при этом сохраняются.
func (m *SessionManager) Rebind(sess *ClientSession, addr *net.UDPAddr) {
	delete(m.byAddr, sess.Addr.String())
	sess.Addr = addr
	m.byAddr[addr.String()] = sess
}

// Remove drops a session and frees its address mapping.
func (m *SessionManager) Remove(id uint32) *ClientSession {
	sess := m.byID[id]
	if sess == nil {
		return nil
	}
	delete(m.byID, id)
	delete(m.byAddr, sess.Addr.String())
	delete(m.byAccount, sess.AccountID)
	return sess
}

// TouchInput marks the session alive and records the input sequence if it
// is newer than everything seen so far.
func (m *SessionManager) TouchInput(sess *ClientSession, seq uint32) bool {
	sess.SinceInput = 0
	if seq <= sess.LastInputSeq {
		return false
	}
	sess.LastInputSeq = seq
	return true
}

// Tick ages every session by dt and removes those silent longer than
// timeout. Evicted sessions are returned for disconnect reporting.
func (m *SessionManager) Tick(dt, timeout float64) []*ClientSession {
	var evicted []*ClientSession
	for _, sess := range m.byID {
		sess.SinceInput += dt
		if sess.SinceInput >= timeout {
			evicted = append(evicted, sess)
		}
	}
	for _, sess := range evicted {
		m.Remove(sess.ID)
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].ID < evicted[j].ID })
	return evicted
}

// Count returns the number of connected clients.
func (m *SessionManager) Count() int { return len(m.byID) }

// All returns the sessions ordered by client id.
func (m *SessionManager) All() []*ClientSession {
	out := make([]*ClientSession, 0, len(m.byID))
	for _, sess := range m.byID {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
