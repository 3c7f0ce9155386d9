package lottery

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ichi0g0y/prize-wheel/internal/types"
)

var (
	ErrNoPrizes            = errors.New("no available prizes")
	ErrNoWeight            = errors.New("available prizes have no weight")
	errInvalidTicketsTotal = errors.New("invalid total tickets")
)

// WeightedPrize は累積重み抽選に使用するエントリ。
type WeightedPrize struct {
	Index         int
	Tickets       int
	CumulativeSum int
}

// PrizeDetail は抽選計算結果の詳細。
type PrizeDetail struct {
	Index   int    `json:"index"`
	PrizeID string `json:"prize_id"`
	Tickets int    `json:"tickets"`
}

// DrawResult は抽選結果。
type DrawResult struct {
	Index        int           `json:"index"`
	Prize        types.Prize   `json:"prize"`
	TotalTickets int           `json:"total_tickets"`
	Details      []PrizeDetail `json:"details"`
}

var drawRandomInt = secureRandomInt

// DrawPrize picks one of the available prize indices with probability
// proportional to its percent. Indices outside prizes are ignored.
func DrawPrize(prizes []types.Prize, available []int) (*DrawResult, error) {
	if len(prizes) == 0 || len(available) == 0 {
		return nil, ErrNoPrizes
	}

	weighted, details, totalTickets := buildWeightedPrizes(prizes, available)
	if len(details) == 0 {
		return nil, ErrNoPrizes
	}
	if len(weighted) == 0 || totalTickets <= 0 {
		return nil, ErrNoWeight
	}

	picked, err := drawRandomInt(totalTickets)
	if err != nil {
		return nil, fmt.Errorf("failed to pick random ticket: %w", err)
	}

	target := picked + 1 // 1-based index
	idx := sort.Search(len(weighted), func(i int) bool {
		return weighted[i].CumulativeSum >= target
	})
	if idx >= len(weighted) {
		return nil, errInvalidTicketsTotal
	}

	winner := weighted[idx].Index
	return &DrawResult{
		Index:        winner,
		Prize:        prizes[winner],
		TotalTickets: totalTickets,
		Details:      details,
	}, nil
}

func buildWeightedPrizes(prizes []types.Prize, available []int) ([]WeightedPrize, []PrizeDetail, int) {
	weighted := make([]WeightedPrize, 0, len(available))
	details := make([]PrizeDetail, 0, len(available))
	seen := make(map[int]struct{}, len(available))
	totalTickets := 0

	for _, index := range available {
		if index < 0 || index >= len(prizes) {
			continue
		}
		if _, dup := seen[index]; dup {
			continue
		}
		seen[index] = struct{}{}

		tickets := CalculateTickets(prizes[index].Percent)
		details = append(details, PrizeDetail{
			Index:   index,
			PrizeID: prizes[index].ID,
			Tickets: tickets,
		})

		if tickets <= 0 {
			continue
		}

		totalTickets += tickets
		weighted = append(weighted, WeightedPrize{
			Index:         index,
			Tickets:       tickets,
			CumulativeSum: totalTickets,
		})
	}

	return weighted, details, totalTickets
}

func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidTicketsTotal
	}

	n, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
