package lottery

import (
	"math"

	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/shopspring/decimal"
)

const (
	// 1口 = 0.01%
	ticketScale = 100
	fullPercent = 100
)

var hundred = decimal.NewFromInt(fullPercent)

// PercentSummary は景品リストのパーセント合計の検証結果。
type PercentSummary struct {
	Total    string `json:"total"`
	Balanced bool   `json:"balanced"`
	Tickets  int    `json:"tickets"`
}

// CalculateTickets はパーセント値を口数へ変換する。負数やNaNは0口。
func CalculateTickets(percent float64) int {
	if math.IsNaN(percent) || math.IsInf(percent, 0) || percent <= 0 {
		return 0
	}
	return int(decimal.NewFromFloat(percent).
		Mul(decimal.NewFromInt(ticketScale)).
		Round(0).
		IntPart())
}

// PercentTotal は全景品のパーセント合計を誤差なく返す。
func PercentTotal(prizes []types.Prize) decimal.Decimal {
	total := decimal.Zero
	for _, p := range prizes {
		if math.IsNaN(p.Percent) || math.IsInf(p.Percent, 0) || p.Percent <= 0 {
			continue
		}
		total = total.Add(decimal.NewFromFloat(p.Percent))
	}
	return total
}

// SummarizePercents は合計値と100%ちょうどかどうかを返す。
func SummarizePercents(prizes []types.Prize) PercentSummary {
	total := PercentTotal(prizes)
	tickets := 0
	for _, p := range prizes {
		tickets += CalculateTickets(p.Percent)
	}
	return PercentSummary{
		Total:    total.StringFixed(2),
		Balanced: total.Equal(hundred),
		Tickets:  tickets,
	}
}

// NormalizePercents は合計が100になるよう比率を保って再計算する。
// 合計が0の場合は均等割り。
func NormalizePercents(prizes []types.Prize) []decimal.Decimal {
	out := make([]decimal.Decimal, len(prizes))
	if len(prizes) == 0 {
		return out
	}

	total := PercentTotal(prizes)
	if total.IsZero() {
		even := hundred.DivRound(decimal.NewFromInt(int64(len(prizes))), 4)
		for i := range out {
			out[i] = even
		}
		return out
	}

	for i, p := range prizes {
		if math.IsNaN(p.Percent) || math.IsInf(p.Percent, 0) || p.Percent <= 0 {
			out[i] = decimal.Zero
			continue
		}
		out[i] = decimal.NewFromFloat(p.Percent).Mul(hundred).DivRound(total, 4)
	}
	return out
}
