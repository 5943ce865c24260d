package game

// Ledger is the client-local aggregate for exactly one round. It is owned by
// the Session and reset whenever a new, non-duplicate round is adopted.
type Ledger struct {
	Answered       int
	Correct        int
	TotalTimeSecs  int
	TotalHints     int
	TotalQuestions int
}

// Reset zeroes all counters and pins the question count for the new round.
func (l *Ledger) Reset(totalQuestions int) {
	*l = Ledger{TotalQuestions: totalQuestions}
}

// Record accumulates one finalized question. Answered never exceeds
// TotalQuestions and Correct never exceeds Answered.
func (l *Ledger) Record(correct bool, timeSpentSecs, hintsUsed int) {
	if l.Answered >= l.TotalQuestions {
		return
	}
	l.Answered++
	if correct {
		l.Correct++
	}
	if timeSpentSecs > 0 {
		l.TotalTimeSecs += timeSpentSecs
	}
	if hintsUsed > 0 {
		l.TotalHints += hintsUsed
	}
}

// Accuracy is correct/answered, 0 when nothing was answered.
func (l Ledger) Accuracy() float64 {
	if l.Answered == 0 {
		return 0
	}
	return float64(l.Correct) / float64(l.Answered)
}

// AvgTimeSecs is total time over answered questions, 0 when nothing was answered.
func (l Ledger) AvgTimeSecs() float64 {
	if l.Answered == 0 {
		return 0
	}
	return float64(l.TotalTimeSecs) / float64(l.Answered)
}
