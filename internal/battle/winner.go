package battle

// ResolveWinner determines the winner from frozen performance records. Higher
// reps wins, an exact tie means no winner, a participant with no record counts
// as zero reps. A battle that never bound an opponent has no winner.
func ResolveWinner(b Battle, records map[string]PerformanceRecord) string {
	if b.OpponentID == "" {
		return ""
	}
	creator := records[b.CreatorID].Reps
	opponent := records[b.OpponentID].Reps
	switch {
	case creator > opponent:
		return b.CreatorID
	case opponent > creator:
		return b.OpponentID
	default:
		return ""
	}
}
