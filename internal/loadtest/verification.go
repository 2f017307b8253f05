package loadtest

import (
	"fmt"
)

// verifyTeamRounds checks the persisted rows of one finalized team and
// returns every violated invariant.
func verifyTeamRounds(teamID string, rows []round) []string {
	var out []string
	bad := func(format string, args ...any) {
		out = append(out, teamID+": "+fmt.Sprintf(format, args...))
	}
	if len(rows) == 0 {
		bad("finalized without leaderboard rows")
		return out
	}

	finals, reasons := 0, 0
	best := 0
	for i, r := range rows {
		if r.Round != i+1 {
			bad("round numbers not gap-free: position %d holds round %d", i+1, r.Round)
		}
		if r.Score < 0 || r.Score > 100 {
			bad("round %d score %.2f outside 0-100", r.Round, r.Score)
		}
		if r.Final {
			finals++
		}
		if r.ExitReason != "" {
			reasons++
			if i != len(rows)-1 {
				bad("exit reason on round %d, not on the last round %d", r.Round, rows[len(rows)-1].Round)
			}
		}
		if r.Score > rows[best].Score {
			best = i
		}
	}
	if finals != 1 {
		bad("%d final submissions, want 1", finals)
	}
	if reasons != 1 {
		bad("%d rows carry an exit reason, want 1", reasons)
	}
	if finals == 1 && !rows[best].Final {
		bad("round %d is final but round %d has the best score", finalRound(rows), rows[best].Round)
	}
	return out
}

// verifyLeaderboard checks that entries are final and sorted by score.
func verifyLeaderboard(executionID string, rows []round) []string {
	var out []string
	for i, r := range rows {
		if !r.Final {
			out = append(out, fmt.Sprintf("%s: leaderboard entry %d is not final", executionID, i))
		}
		if i > 0 && r.Score > rows[i-1].Score {
			out = append(out, fmt.Sprintf("%s: leaderboard not sorted at %d", executionID, i))
		}
	}
	return out
}

func finalRound(rows []round) int {
	for _, r := range rows {
		if r.Final {
			return r.Round
		}
	}
	return 0
}
