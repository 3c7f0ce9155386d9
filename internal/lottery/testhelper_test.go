package lottery

import (
	"fmt"

	"github.com/ichi0g0y/prize-wheel/internal/types"
)

// GeneratePrizes はN個分のテスト景品を決定論的に生成する。
func GeneratePrizes(n int) []types.Prize {
	if n <= 0 {
		return []types.Prize{}
	}

	prizes := make([]types.Prize, n)
	for i := 0; i < n; i++ {
		prizes[i] = types.Prize{
			ID:        fmt.Sprintf("prize-%03d", i+1),
			Label:     fmt.Sprintf("Prize %03d", i+1),
			Percent:   float64((i%5)+1) * 2.5,
			MaxWins:   (i % 4) + 1,
			Unlimited: i%7 == 0,
			Position:  i,
		}
	}
	return prizes
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
