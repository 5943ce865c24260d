package game

import "github.com/google/uuid"

// RoundXP tracks the round-scoped reward state. XP is only awarded for
// questions answered correctly on the first attempt; Earned is the integer
// share of 100 those answers have claimed so far.
type RoundXP struct {
	FirstTryCorrect int
	Earned          int
}

// Award returns the state after one more first-try-correct answer and the XP
// delta it yields. With zero questions there is nothing to divide and no XP
// is computed.
func (x RoundXP) Award(totalQuestions int) (RoundXP, int) {
	if totalQuestions <= 0 {
		return x, 0
	}
	next := RoundXP{FirstTryCorrect: x.FirstTryCorrect + 1}
	next.Earned = next.FirstTryCorrect * 100 / totalQuestions
	return next, next.Earned - x.Earned
}

// Burst is a transient reward notification. Purely cosmetic: dropping one
// never affects the XP totals underneath.
type Burst struct {
	ID     uuid.UUID
	Amount int
}
