package dice

import (
	"math/rand"
	"time"
)

// Roll captures one swerve: a positive exploding die minus a negative
// exploding die. Boxcars is flagged when the opening pair is double sixes.
type Roll struct {
	PositiveRolls []int `json:"positiveRolls"`
	NegativeRolls []int `json:"negativeRolls"`
	Value         int   `json:"value"`
	Boxcars       bool  `json:"boxcars"`
}

// Roller produces swerve rolls from an injected random source so tests can
// pin the sequence.
type Roller struct {
	rng *rand.Rand
}

// NewRoller constructs a roller seeded from the wall clock.
func NewRoller() *Roller {
	return NewRollerFromSource(rand.NewSource(time.Now().UnixNano()))
}

// NewRollerFromSource constructs a roller over the provided source.
func NewRollerFromSource(src rand.Source) *Roller {
	return &Roller{rng: rand.New(src)}
}

// Swerve rolls the two-die mechanic. Each die explodes on a six: the six is
// kept and the die is rolled again, repeatedly, with every face added to
// that die's total.
func (r *Roller) Swerve() Roll {
	positive := r.explode()
	negative := r.explode()
	roll := Roll{
		PositiveRolls: positive,
		NegativeRolls: negative,
		Boxcars:       positive[0] == 6 && negative[0] == 6,
	}
	roll.Value = sum(positive) - sum(negative)
	return roll
}

// Initiative rolls a single d6 for sequence-start shot assignment.
func (r *Roller) Initiative() int {
	return r.d6()
}

func (r *Roller) explode() []int {
	rolls := []int{r.d6()}
	for rolls[len(rolls)-1] == 6 {
		rolls = append(rolls, r.d6())
	}
	return rolls
}

func (r *Roller) d6() int {
	return 1 + r.rng.Intn(6)
}

func sum(rolls []int) int {
	total := 0
	for _, roll := range rolls {
		total += roll
	}
	return total
}
