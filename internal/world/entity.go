package world

import "math"

// Entity is one object in the simulation: a hero bound to a client or a
// server-owned minion. Fields replicated to clients mirror the snapshot
// layout, the rest is per-entity bookkeeping.
type Entity struct {
	NetID   uint32
	Kind    uint8 // protocol.EntityHero / protocol.EntityMinion
	Team    uint8
	OwnerID uint32 // clientID для героев, 0 для миньонов

	HP      uint16
	MaxHP   uint16
	Mana    uint16
	MaxMana uint16

	X, Y, Z float32
	Yaw     float32

	// Hero movement intent, unit-clamped. Minions derive their own.
	moveX, moveY float32
	attacking    bool

	// Countdowns in seconds of game time.
	attackCD float64

	// Fractional regen carry, HP/mana are integral on the wire.
	hpAcc   float32
	manaAcc float32
}

// Alive reports whether the entity still participates in the simulation.
func (e *Entity) Alive() bool { return e.HP > 0 }

// damage применяет урон с насыщением в ноль.
func (e *Entity) damage(amount uint16) {
	if amount >= e.HP {
		e.HP = 0
		return
	}
	e.HP -= amount
}

// faceTowards turns the entity to look at (tx, ty). No-op when the target
// coincides with the entity position.
func (e *Entity) faceTowards(tx, ty float32) {
	dx := float64(tx - e.X)
	dy := float64(ty - e.Y)
	if dx == 0 && dy == 0 {
		return
	}
	e.Yaw = float32(math.Atan2(dy, dx))
}

// distSq returns the squared planar distance between two entities.
func distSq(a, b *Entity) float32 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// clampUnit shortens a 2D vector to unit length, leaving shorter vectors
// untouched. Protects the integrator from forged oversized intents.
func clampUnit(x, y float32) (float32, float32) {
	lenSq := float64(x*x + y*y)
	if lenSq <= 1 || lenSq == 0 {
		return x, y
	}
	inv := 1 / math.Sqrt(lenSq)
	return float32(float64(x) * inv), float32(float64(y) * inv)
}
