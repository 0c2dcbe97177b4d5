package notice

// Decide picks the notification to show for the given snapshot at nowMillis.
// The hidden cards notification wins over the hidden warning.
func Decide(nowMillis int64, s Snapshot) (Kind, bool) {
	if s.Board.HiddenCards > 0 && nowMillis > s.Snooze.CardLimitUntil {
		return KindCardsHidden, true
	}
	if s.Board.CardHiddenWarning && nowMillis > s.Snooze.CardHiddenWarningUntil {
		return KindCardHiddenWarning, true
	}
	return "", false
}
