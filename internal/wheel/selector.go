package wheel

import (
	crand "crypto/rand"
	"math/big"
	mrand "math/rand/v2"

	"github.com/ichi0g0y/prize-wheel/internal/types"
)

// NoForcedIndex は外部から当選インデックスが指定されていないことを示す
const NoForcedIndex = -1

var pickRandomInt = secureRandomInt

// AvailableIndices returns the indices of prizes that are still winnable
// under the given usage counters (keyed by prize ID).
func AvailableIndices(prizes []types.Prize, usage map[string]int) []int {
	available := make([]int, 0, len(prizes))
	for i, p := range prizes {
		if p.IsAvailable(usage[p.ID]) {
			available = append(available, i)
		}
	}
	return available
}

// SelectWinner resolves the winning prize index.
//
// A forced index is used verbatim only when it is a member of available.
// Otherwise one of the available indices is picked uniformly. Prize percent
// is not consulted here. An empty available set yields 0.
func SelectWinner(prizes []types.Prize, available []int, forced int) int {
	if len(available) == 0 {
		return 0
	}

	if forced != NoForcedIndex && forced >= 0 && forced < len(prizes) && containsIndex(available, forced) {
		return forced
	}

	n, err := pickRandomInt(len(available))
	if err != nil || n < 0 || n >= len(available) {
		n = mrand.IntN(len(available))
	}
	return available[n]
}

func containsIndex(indices []int, target int) bool {
	for _, idx := range indices {
		if idx == target {
			return true
		}
	}
	return false
}

func secureRandomInt(max int) (int, error) {
	n, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
