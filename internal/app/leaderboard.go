package app

import (
	"sort"

	"quiz-game-service/internal/domain"
)

// BuildLeaderboard ranks the players graded by the current question result.
// It writes each graded player's rank, total score and streak back onto the
// participant and returns the projection with the rank each player held
// before this question. Players without a result entry are left out.
func BuildLeaderboard(game *domain.Game) ([]domain.LeaderboardEntry, error) {
	result, err := currentResult(game)
	if err != nil {
		return nil, err
	}

	byPlayer := make(map[string]domain.QuestionResultEntry, len(result.Results))
	for _, entry := range result.Results {
		byPlayer[entry.PlayerID] = entry
	}

	entries := make([]domain.LeaderboardEntry, 0, len(result.Results))
	for _, p := range game.Players() {
		var previous *int
		if p.Player.Rank > 0 {
			rank := p.Player.Rank
			previous = &rank
		}

		entry, ok := byPlayer[p.ID]
		if !ok {
			continue
		}
		p.Player.Rank = entry.Position
		p.Player.TotalScore = entry.TotalScore
		p.Player.CurrentStreak = entry.Streak

		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:         p.ID,
			Nickname:         p.Player.Nickname,
			Position:         entry.Position,
			PreviousPosition: previous,
			Score:            entry.TotalScore,
			Streak:           entry.Streak,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})
	return entries, nil
}
