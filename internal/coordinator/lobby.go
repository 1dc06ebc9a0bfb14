package coordinator

import (
	mathrand "math/rand/v2"
	"net"
)

// Lobby is a matched set of players inside the accept window. A lobby
// lives in the coordinator's map only while accepting: once every player
// accepted it starts a match and is removed, any decline or the accept
// timeout removes it too.
type Lobby struct {
	ID              uint64
	Mode            uint8
	Region          uint8
	Players         []uint64 // player ids in slot order
	AccountByPlayer map[uint64]uint64
	AddrByPlayer    map[uint64]*net.UDPAddr
	Accepted        map[uint64]bool
	AgeSec          float64
}

// newLobby builds a lobby from queue entries, slot order follows queue
// order.
func newLobby(id uint64, members []*queuedPlayer) *Lobby {
	l := &Lobby{
		ID:              id,
		Mode:            members[0].mode,
		Region:          members[0].region,
		Players:         make([]uint64, 0, len(members)),
		AccountByPlayer: make(map[uint64]uint64, len(members)),
		AddrByPlayer:    make(map[uint64]*net.UDPAddr, len(members)),
		Accepted:        make(map[uint64]bool, len(members)),
	}
	for _, m := range members {
		l.Players = append(l.Players, m.playerID)
		l.AccountByPlayer[m.playerID] = m.accountID
		l.AddrByPlayer[m.playerID] = m.addr
		l.Accepted[m.playerID] = false
	}
	return l
}

// Has reports whether the player belongs to this lobby.
func (l *Lobby) Has(playerID uint64) bool {
	_, ok := l.Accepted[playerID]
	return ok
}

// AcceptedCount returns how many members accepted so far.
func (l *Lobby) AcceptedCount() int {
	n := 0
	for _, ok := range l.Accepted {
		if ok {
			n++
		}
	}
	return n
}

// AllAccepted reports whether every member accepted.
func (l *Lobby) AllAccepted() bool {
	return l.AcceptedCount() == len(l.Players)
}

// newLobbyID draws a random non-zero id not present in existing.
func newLobbyID(existing map[uint64]*Lobby) uint64 {
	for {
		id := mathrand.Uint64()
		if id == 0 {
			continue
		}
		if _, taken := existing[id]; !taken {
			return id
		}
	}
}
