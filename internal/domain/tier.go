package domain

import (
	"math"
	"time"
)

// ScheduleTier — tier расписания импорта.
//
// Закрытое упорядоченное перечисление, от быстрого к медленному:
//
//	A → B → C → D
//
// Переход только вниз (Next), обратного перехода нет.
type ScheduleTier int

const (
	// TierA — каждый час.
	TierA ScheduleTier = iota
	// TierB — каждые 6 часов (05, 11, 17, 23).
	TierB
	// TierC — каждые 12 часов (11, 23).
	TierC
	// TierD — раз в сутки (00).
	TierD
)

// Tiers — все tier'ы по порядку.
var Tiers = []ScheduleTier{TierA, TierB, TierC, TierD}

// tierTable — таблица tier'ов. Границы часов — часть наблюдаемого контракта,
// поэтому таблица записана буквально.
var tierTable = [...]struct {
	name      string
	maxMisses int
	matches   func(hour int) bool
}{
	TierA: {"A", 6, func(int) bool { return true }},
	TierB: {"B", 2, func(hour int) bool { return (hour+1)%6 == 0 }},
	TierC: {"C", 1, func(hour int) bool { return (hour+1)%12 == 0 }},
	TierD: {"D", math.MaxInt, func(hour int) bool { return hour == 0 }},
}

// String возвращает метку tier ("A".."D").
func (t ScheduleTier) String() string {
	if !t.valid() {
		return "?"
	}
	return tierTable[t].name
}

// MaxMisses — сколько подряд пустых попыток допустимо до понижения.
func (t ScheduleTier) MaxMisses() int {
	if !t.valid() {
		return math.MaxInt
	}
	return tierTable[t].maxMisses
}

// Matches проверяет, попадает ли момент now (локальный час) в окно запуска tier.
func (t ScheduleTier) Matches(now time.Time) bool {
	if !t.valid() {
		return false
	}
	return tierTable[t].matches(now.Hour())
}

// Next возвращает следующий (более медленный) tier. D остаётся D.
func (t ScheduleTier) Next() ScheduleTier {
	switch t {
	case TierA:
		return TierB
	case TierB:
		return TierC
	default:
		return TierD
	}
}

func (t ScheduleTier) valid() bool {
	return t >= TierA && t <= TierD
}

// ParseScheduleTier разбирает метку tier.
func ParseScheduleTier(s string) (ScheduleTier, bool) {
	for _, t := range Tiers {
		if tierTable[t].name == s {
			return t, true
		}
	}
	return 0, false
}
