// Package world runs the authoritative match simulation: client-owned
// heroes, timed minion waves and fixed-timestep movement integration.
// The world keeps no wall clock, all timing is driven by Advance(dt), so
// the same call sequence always produces the same state.
//
// World не потокобезопасен: владеющий сервер дергает его из одной горутины.
package world

import (
	"math"

	"github.com/ironrift/server/internal/protocol"
)

// World is the simulation state of one match.
type World struct {
	params Params

	tick     uint32
	gameTime float64

	nextNetID uint32
	entities  []*Entity          // в порядке NetID, порядок в снапшотах стабилен
	heroes    map[uint32]*Entity // clientID → hero

	spawnSeq [2]int // смещение точки спавна для героев одной команды

	waveNumber uint32
	waveTimer  float64 // seconds until the next wave fires
}

// New creates an empty world. The first minion wave is scheduled
// FirstWaveDelay seconds of game time ahead.
func New(p Params) *World {
	return &World{
		params:    p,
		nextNetID: 1,
		heroes:    make(map[uint32]*Entity),
		waveTimer: p.FirstWaveDelay,
	}
}

// AddClient spawns a hero owned by clientID on the given team and returns
// its network id. Повторный вызов для того же клиента ничего не меняет.
func (w *World) AddClient(clientID uint32, team uint8) uint32 {
	if e, ok := w.heroes[clientID]; ok {
		return e.NetID
	}
	team &= 1
	bx, by := w.teamBase(team)
	off := float32(w.spawnSeq[team]) * 3
	w.spawnSeq[team]++

	e := &Entity{
		NetID:   w.allocID(),
		Kind:    protocol.EntityHero,
		Team:    team,
		OwnerID: clientID,
		HP:      w.params.HeroHP,
		MaxHP:   w.params.HeroHP,
		Mana:    w.params.HeroMana,
		MaxMana: w.params.HeroMana,
		X:       bx + off,
		Y:       by - off,
	}
	w.clampArena(e)
	ex, ey := w.teamBase(1 - team)
	e.faceTowards(ex, ey)

	w.entities = append(w.entities, e)
	w.heroes[clientID] = e
	return e.NetID
}

// RemoveClient deletes the hero owned by clientID. Returns false when the
// client has no hero in this world.
func (w *World) RemoveClient(clientID uint32) bool {
	e, ok := w.heroes[clientID]
	if !ok {
		return false
	}
	delete(w.heroes, clientID)
	for i, cur := range w.entities {
		if cur == e {
			w.entities = append(w.entities[:i], w.entities[i+1:]...)
			break
		}
	}
	return true
}

// ApplyInput feeds one input sample into the hero owned by clientID.
// Unknown clients are ignored, the session layer decides who is admitted.
func (w *World) ApplyInput(clientID uint32, in protocol.ClientInput) {
	e, ok := w.heroes[clientID]
	if !ok {
		return
	}

	e.moveX, e.moveY = clampUnit(in.MoveX, in.MoveY)
	e.attacking = in.Buttons&protocol.ButtonAttack != 0
	if in.Buttons&protocol.ButtonStop != 0 {
		e.moveX, e.moveY = 0, 0
		e.attacking = false
	}

	if in.AimX != e.X || in.AimY != e.Y {
		e.faceTowards(in.AimX, in.AimY)
	}

	if in.AbilitySlot >= 1 && in.AbilitySlot <= 4 {
		w.castAbility(e, in.AbilitySlot, in.AimX, in.AimY)
	}
}

// Advance steps the simulation by dt seconds: wave timer, movement,
// combat, regen and corpse cleanup, in that order.
func (w *World) Advance(dt float64) {
	w.tick++
	w.gameTime += dt

	w.waveTimer -= dt
	for w.waveTimer <= 0 {
		w.waveTimer += w.params.WaveInterval
		w.waveNumber++
		if w.minionCount()+2*w.params.MinionsPerWave <= w.params.MaxMinions {
			w.spawnWave()
		}
	}

	fdt := float32(dt)
	for _, e := range w.entities {
		if e.attackCD > 0 {
			e.attackCD -= dt
		}
		if !e.Alive() {
			continue
		}
		switch e.Kind {
		case protocol.EntityHero:
			w.stepHero(e, fdt)
		case protocol.EntityMinion:
			w.stepMinion(e, fdt)
		}
	}

	// Мёртвые миньоны выбывают, мёртвые герои встают на базе.
	alive := w.entities[:0]
	for _, e := range w.entities {
		switch {
		case e.Alive():
			alive = append(alive, e)
		case e.Kind == protocol.EntityHero:
			w.respawnHero(e)
			alive = append(alive, e)
		}
	}
	w.entities = alive
}

// Snapshot renders the current state as a wire snapshot. ServerTime and
// AckedInputSeq are left zero, the transport stamps them per receiver.
func (w *World) Snapshot() protocol.WorldSnapshot {
	n := len(w.entities)
	if n > protocol.MaxSnapshotEntities {
		n = protocol.MaxSnapshotEntities
	}
	ents := make([]protocol.EntityState, n)
	for i := 0; i < n; i++ {
		e := w.entities[i]
		ents[i] = protocol.EntityState{
			NetworkID:     e.NetID,
			OwnerClientID: e.OwnerID,
			Kind:          e.Kind,
			Team:          e.Team,
			HP:            e.HP,
			MaxHP:         e.MaxHP,
			Mana:          e.Mana,
			MaxMana:       e.MaxMana,
			PosX:          e.X,
			PosY:          e.Y,
			PosZ:          e.Z,
			Yaw:           e.Yaw,
		}
	}

	nextWave := w.waveTimer
	if nextWave < 0 {
		nextWave = 0
	}
	return protocol.WorldSnapshot{
		Tick:        w.tick,
		GameTime:    float32(w.gameTime),
		WaveNumber:  w.waveNumber,
		NextWaveSec: float32(nextWave),
		Entities:    ents,
	}
}

// Tick returns the number of Advance calls so far.
func (w *World) Tick() uint32 { return w.tick }

// GameTime returns accumulated game time in seconds.
func (w *World) GameTime() float64 { return w.gameTime }

// WaveNumber returns the index of the last fired wave, 0 before wave 1.
func (w *World) WaveNumber() uint32 { return w.waveNumber }

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int { return len(w.entities) }

// HeroCount returns the number of client-owned heroes.
func (w *World) HeroCount() int { return len(w.heroes) }

// ClientEntity returns the network id of the hero owned by clientID.
func (w *World) ClientEntity(clientID uint32) (uint32, bool) {
	e, ok := w.heroes[clientID]
	if !ok {
		return 0, false
	}
	return e.NetID, true
}

// TeamVitality sums the HP of every live entity on a team. Используется
// как tie-breaker при выборе победителя по истечении матча.
func (w *World) TeamVitality(team uint8) uint32 {
	var sum uint32
	for _, e := range w.entities {
		if e.Team == team&1 {
			sum += uint32(e.HP)
		}
	}
	return sum
}

func (w *World) allocID() uint32 {
	id := w.nextNetID
	w.nextNetID++
	return id
}

// teamBase returns the spawn corner of a team. Лагерь нулевой команды в
// юго-западном углу, первой — в северо-восточном.
func (w *World) teamBase(team uint8) (float32, float32) {
	h := w.params.ArenaHalfExtent * 0.8
	if team&1 == 0 {
		return -h, -h
	}
	return h, h
}

func (w *World) minionCount() int {
	n := 0
	for _, e := range w.entities {
		if e.Kind == protocol.EntityMinion {
			n++
		}
	}
	return n
}

// spawnWave puts MinionsPerWave minions at each base, spread across the
// lane so the wave does not stack into a single point.
func (w *World) spawnWave() {
	for team := uint8(0); team < 2; team++ {
		bx, by := w.teamBase(team)
		ex, ey := w.teamBase(1 - team)
		for i := 0; i < w.params.MinionsPerWave; i++ {
			off := float32(i-w.params.MinionsPerWave/2) * 2
			e := &Entity{
				NetID: w.allocID(),
				Kind:  protocol.EntityMinion,
				Team:  team,
				HP:    w.params.MinionHP,
				MaxHP: w.params.MinionHP,
				X:     bx + off,
				Y:     by - off,
			}
			w.clampArena(e)
			e.faceTowards(ex, ey)
			w.entities = append(w.entities, e)
		}
	}
}

func (w *World) stepHero(e *Entity, fdt float32) {
	if e.moveX != 0 || e.moveY != 0 {
		e.faceTowards(e.X+e.moveX, e.Y+e.moveY)
		e.X += e.moveX * w.params.HeroSpeed * fdt
		e.Y += e.moveY * w.params.HeroSpeed * fdt
		w.clampArena(e)
	}

	w.regen(e, w.params.HeroHPRegen, w.params.HeroManaRegen, fdt)

	if e.attacking && e.attackCD <= 0 {
		target := w.nearestEnemy(e, w.params.HeroAttackRange)
		if target != nil {
			target.damage(w.params.HeroDamage)
			e.attackCD = w.params.HeroAttackCD
			e.faceTowards(target.X, target.Y)
		}
	}
}

func (w *World) stepMinion(e *Entity, fdt float32) {
	target := w.nearestEnemy(e, w.params.MinionAggro)
	if target == nil {
		// Никого рядом — маршируем к вражеской базе.
		ex, ey := w.teamBase(1 - e.Team)
		w.moveTowards(e, ex, ey, w.params.MinionSpeed, fdt)
		return
	}

	rangeSq := w.params.MinionRange * w.params.MinionRange
	if distSq(e, target) <= rangeSq {
		if e.attackCD <= 0 {
			target.damage(w.params.MinionDamage)
			e.attackCD = w.params.MinionAttackCD
		}
		e.faceTowards(target.X, target.Y)
		return
	}
	w.moveTowards(e, target.X, target.Y, w.params.MinionSpeed, fdt)
}

// nearestEnemy returns the closest живой enemy within reach, or nil.
// Candidates are scanned in NetID order, so ties never depend on map order.
func (w *World) nearestEnemy(e *Entity, reach float32) *Entity {
	reachSq := reach * reach
	var best *Entity
	var bestSq float32
	for _, cand := range w.entities {
		if cand == e || cand.Team == e.Team || !cand.Alive() {
			continue
		}
		d := distSq(e, cand)
		if d > reachSq {
			continue
		}
		if best == nil || d < bestSq {
			best = cand
			bestSq = d
		}
	}
	return best
}

func (w *World) moveTowards(e *Entity, tx, ty, speed, fdt float32) {
	dx := float64(tx - e.X)
	dy := float64(ty - e.Y)
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist == 0 {
		return
	}
	step := float64(speed * fdt)
	if step > dist {
		step = dist
	}
	e.X += float32(dx / dist * step)
	e.Y += float32(dy / dist * step)
	w.clampArena(e)
	e.faceTowards(tx, ty)
}

func (w *World) clampArena(e *Entity) {
	h := w.params.ArenaHalfExtent
	if e.X > h {
		e.X = h
	} else if e.X < -h {
		e.X = -h
	}
	if e.Y > h {
		e.Y = h
	} else if e.Y < -h {
		e.Y = -h
	}
}

// respawnHero puts a dead hero back at its base at full vitals. Матч
// короткий, таймер респауна не нужен.
func (w *World) respawnHero(e *Entity) {
	e.X, e.Y = w.teamBase(e.Team)
	e.HP = e.MaxHP
	e.Mana = e.MaxMana
	e.hpAcc, e.manaAcc = 0, 0
	e.attackCD = 0
	e.moveX, e.moveY = 0, 0
	e.attacking = false
}

// regen accrues fractional regeneration and credits whole points only,
// значения на проводе целые.
func (w *World) regen(e *Entity, hpRate, manaRate, fdt float32) {
	if e.HP < e.MaxHP {
		e.hpAcc += hpRate * fdt
		if e.hpAcc >= 1 {
			whole := uint32(e.hpAcc)
			e.hpAcc -= float32(whole)
			hp := uint32(e.HP) + whole
			if hp > uint32(e.MaxHP) {
				hp = uint32(e.MaxHP)
			}
			e.HP = uint16(hp)
		}
	} else {
		e.hpAcc = 0
	}

	if e.Mana < e.MaxMana {
		e.manaAcc += manaRate * fdt
		if e.manaAcc >= 1 {
			whole := uint32(e.manaAcc)
			e.manaAcc -= float32(whole)
			mana := uint32(e.Mana) + whole
			if mana > uint32(e.MaxMana) {
				mana = uint32(e.MaxMana)
			}
			e.Mana = uint16(mana)
		}
	} else {
		e.manaAcc = 0
	}
}

// castAbility spends mana and damages every enemy inside the ability
// radius around the aim point. Недостаточно маны — каст молча игнорируется.
func (w *World) castAbility(e *Entity, slot uint8, aimX, aimY float32) {
	cost := w.params.AbilityCost[slot-1]
	if e.Mana < cost {
		return
	}
	e.Mana -= cost

	dmg := w.params.AbilityDamage[slot-1]
	rSq := w.params.AbilityRadius * w.params.AbilityRadius
	for _, cand := range w.entities {
		if cand.Team == e.Team || !cand.Alive() {
			continue
		}
		dx := cand.X - aimX
		dy := cand.Y - aimY
		if dx*dx+dy*dy <= rSq {
			cand.damage(dmg)
		}
	}
	e.faceTowards(aimX, aimY)
}
