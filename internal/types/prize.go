package types

import "time"

// Prize はホイールの1セグメントに対応する景品
type Prize struct {
	ID        string  `json:"id" db:"id"`
	Label     string  `json:"label" db:"label"`
	Percent   float64 `json:"percent" db:"percent"` // 表示用。抽選確率には使わない（weightedモード除く）
	Color     string  `json:"color,omitempty" db:"color"`
	MaxWins   int     `json:"max_wins,omitempty" db:"max_wins"`
	Unlimited bool    `json:"unlimited" db:"unlimited"`
	Position  int     `json:"position" db:"position"`
}

// IsAvailable reports whether the prize can still be won given its usage count.
func (p Prize) IsAvailable(used int) bool {
	if p.Unlimited {
		return true
	}
	return used < p.MaxWins
}

// SpinHistory は1回分のスピン結果
type SpinHistory struct {
	ID          int       `json:"id"`
	Identity    string    `json:"identity"`
	PrizeID     string    `json:"prize_id"`
	PrizeLabel  string    `json:"prize_label"`
	Code        string    `json:"code"`
	WinnerIndex int       `json:"winner_index"`
	Rotation    float64   `json:"rotation"`
	SpunAt      time.Time `json:"spun_at"`
}
