package coordinator

import (
	"net"

	"github.com/ironrift/server/internal/protocol"
)

// ServerEntry is one registered dedicated server.
type ServerEntry struct {
	ID             uint64
	Addr           string
	GamePort       uint16
	Capacity       uint16
	CurrentPlayers uint16
	UptimeSec      uint32
	ControlAddr    *net.UDPAddr
	Reserved       bool

	sinceHeartbeat float64
}

// ServerRegistry tracks the live dedicated server pool. Entries that miss
// heartbeats for longer than the TTL are evicted on the next tick. Owned by
// the coordinator loop, so access is single-goroutine.
type ServerRegistry struct {
	ttl     float64
	entries map[uint64]*ServerEntry
	order   []uint64 // insertion order, breaks ties in Pick
}

// NewServerRegistry creates a registry with the given heartbeat TTL in
// seconds.
func NewServerRegistry(ttl float64) *ServerRegistry {
	return &ServerRegistry{
		ttl:     ttl,
		entries: make(map[uint64]*ServerEntry),
	}
}

// Register inserts or replaces an entry. origin becomes the control address
// used for lobby assignments. Re-registration resets load and reservation,
// the server just (re)started.
func (r *ServerRegistry) Register(reg protocol.ServerRegister, origin *net.UDPAddr) *ServerEntry {
	e := r.entries[reg.ServerID]
	if e == nil {
		e = &ServerEntry{ID: reg.ServerID}
		r.entries[reg.ServerID] = e
		r.order = append(r.order, reg.ServerID)
	}
	e.Addr = reg.Addr
	e.GamePort = reg.GamePort
	e.Capacity = reg.Capacity
	e.CurrentPlayers = 0
	e.UptimeSec = 0
	e.ControlAddr = origin
	e.Reserved = false
	e.sinceHeartbeat = 0
	return e
}

// Heartbeat refreshes an entry. Reports false for unknown servers.
func (r *ServerRegistry) Heartbeat(hb protocol.ServerHeartbeat) bool {
	e := r.entries[hb.ServerID]
	if e == nil {
		return false
	}
	e.CurrentPlayers = hb.CurrentPlayers
	e.Capacity = hb.Capacity
	e.UptimeSec = hb.UptimeSec
	e.sinceHeartbeat = 0
	if hb.CurrentPlayers == 0 {
		// Матч завершился, слот снова свободен.
		e.Reserved = false
	}
	return true
}

// Tick advances heartbeat ages and evicts entries past the TTL.
// Returns the evicted server ids.
func (r *ServerRegistry) Tick(dt float64) []uint64 {
	var evicted []uint64
	kept := r.order[:0]
	for _, id := range r.order {
		e := r.entries[id]
		e.sinceHeartbeat += dt
		if e.sinceHeartbeat > r.ttl {
			delete(r.entries, id)
			evicted = append(evicted, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return evicted
}

// Pick returns the least-loaded non-reserved entry with spare capacity and
// marks it reserved, or nil when no server qualifies. Ties go to the
// earliest registration.
func (r *ServerRegistry) Pick() *ServerEntry {
	var best *ServerEntry
	for _, id := range r.order {
		e := r.entries[id]
		if e.Reserved || e.CurrentPlayers >= e.Capacity {
			continue
		}
		if best == nil || e.CurrentPlayers < best.CurrentPlayers {
			best = e
		}
	}
	if best != nil {
		best.Reserved = true
	}
	return best
}

// Release clears the reservation of a server, if it is still registered.
func (r *ServerRegistry) Release(id uint64) {
	if e := r.entries[id]; e != nil {
		e.Reserved = false
	}
}

// Get returns the entry for id, or nil.
func (r *ServerRegistry) Get(id uint64) *ServerEntry {
	return r.entries[id]
}

// Count returns the number of registered servers.
func (r *ServerRegistry) Count() int {
	return len(r.entries)
}
