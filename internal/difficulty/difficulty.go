// Package difficulty turns a character's attributes into the score that drives
// minigame generation.
package difficulty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	SkillHacking   = "Hacking"
	SkillComputers = "Computers"

	hackingBonus   = 15
	computersBonus = 10
)

// Profile is the subset of a character sheet the score depends on.
type Profile struct {
	Intellect int      `json:"intellect"`
	Skills    []string `json:"skills"`
}

// HasSkill reports whether the profile lists the named skill.
func (p Profile) HasSkill(name string) bool {
	for _, s := range p.Skills {
		if s == name {
			return true
		}
	}
	return false
}

// Bonus is intellect plus the best computer skill bonus. Hacking and Computers
// do not stack.
func Bonus(p Profile) int {
	bonus := p.Intellect
	switch {
	case p.HasSkill(SkillHacking):
		bonus += hackingBonus
	case p.HasSkill(SkillComputers):
		bonus += computersBonus
	}
	return bonus
}

// Score applies the world multiplier to the bonus, rounding halves up.
func Score(p Profile, multiplier decimal.Decimal) int {
	scaled := decimal.NewFromInt(int64(Bonus(p))).Mul(multiplier)
	return int(scaled.Add(decimal.New(5, -1)).Floor().IntPart())
}

// ParseMultiplier parses a multiplier such as "1.25". It must be positive.
func ParseMultiplier(s string) (decimal.Decimal, error) {
	m, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("difficulty: parse multiplier %q: %w", s, err)
	}
	if !m.IsPositive() {
		return decimal.Zero, fmt.Errorf("difficulty: multiplier %s must be positive", m)
	}
	return m, nil
}
