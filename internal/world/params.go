package world

// Params tunes the simulation. All rates are per second of game time, so
// the outcome depends only on the sequence of Advance(dt) calls.
type Params struct {
	// Playable square is [-ArenaHalfExtent, +ArenaHalfExtent] on X and Y.
	ArenaHalfExtent float32

	// Heroes
	HeroSpeed       float32
	HeroHP          uint16
	HeroMana        uint16
	HeroHPRegen     float32 // HP per second
	HeroManaRegen   float32 // mana per second
	HeroAttackRange float32
	HeroDamage      uint16
	HeroAttackCD    float64 // seconds between basic attacks

	// Abilities (slots 1-4)
	AbilityCost   [4]uint16
	AbilityDamage [4]uint16
	AbilityRadius float32

	// Minion waves
	FirstWaveDelay float64 // seconds before wave 1
	WaveInterval   float64 // seconds between waves
	MinionsPerWave int     // per team
	MaxMinions     int     // alive cap, spawning pauses above it
	MinionSpeed    float32
	MinionHP       uint16
	MinionDamage   uint16
	MinionRange    float32
	MinionAggro    float32 // enemies beyond it are ignored, the wave keeps marching
	MinionAttackCD float64
}

// DefaultParams returns the tuning used by production servers.
func DefaultParams() Params {
	return Params{
		ArenaHalfExtent: 100,

		HeroSpeed:       8,
		HeroHP:          1000,
		HeroMana:        500,
		HeroHPRegen:     5,
		HeroManaRegen:   10,
		HeroAttackRange: 6,
		HeroDamage:      60,
		HeroAttackCD:    1.0,

		AbilityCost:   [4]uint16{40, 60, 80, 120},
		AbilityDamage: [4]uint16{80, 120, 160, 240},
		AbilityRadius: 5,

		FirstWaveDelay: 30,
		WaveInterval:   30,
		MinionsPerWave: 3,
		MaxMinions:     40,
		MinionSpeed:    4,
		MinionHP:       200,
		MinionDamage:   12,
		MinionRange:    2,
		MinionAggro:    15,
		MinionAttackCD: 1.2,
	}
}
