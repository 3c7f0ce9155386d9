package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/ichi0g0y/prize-wheel/internal/wheel"
)

var palette = []tcell.Color{
	tcell.ColorRed, tcell.ColorBlue, tcell.ColorGreen,
	tcell.ColorYellow, tcell.ColorPurple, tcell.ColorTeal,
}

// view は描画に必要な状態
type view struct {
	prizes    []types.Prize
	available map[int]bool
	reversed  bool
	pointer   int
	progress  float64
	state     wheel.State
	message   string
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) int {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func fit(label string, width int) string {
	runes := []rune(label)
	if len(runes) > width-2 {
		runes = append(runes[:width-3], '…')
	}
	pad := width - len(runes)
	return strings.Repeat(" ", pad/2) + string(runes) + strings.Repeat(" ", pad-pad/2)
}

// render は指針の下のセグメントを中心に左右の景品を並べる
func render(s tcell.Screen, v view) {
	s.Clear()
	width, height := s.Size()
	base := tcell.StyleDefault

	drawText(s, 2, 1, base.Bold(true), "Prize Wheel")
	drawText(s, 2, 2, base.Foreground(tcell.ColorGray), fmt.Sprintf("state: %s  segments: %d", v.state, len(v.prizes)))

	n := len(v.prizes)
	if n == 0 {
		drawText(s, 2, 4, base, "no prizes configured")
		s.Show()
		return
	}

	const cell = 16
	centerX := width / 2
	row := height / 2
	slots := width/cell + 2

	drawText(s, centerX, row-2, base.Foreground(tcell.ColorWhite).Bold(true), "▼")
	for slot := -slots / 2; slot <= slots/2; slot++ {
		step := slot
		if v.reversed {
			step = -slot
		}
		idx := ((v.pointer+step)%n + n) % n
		style := base.Background(palette[idx%len(palette)]).Foreground(tcell.ColorBlack)
		if !v.available[idx] {
			style = base.Background(tcell.ColorDarkGray).Foreground(tcell.ColorGray)
		}
		if slot == 0 {
			style = style.Bold(true).Reverse(true)
		}
		x := centerX - cell/2 + slot*cell
		drawText(s, x, row, style, fit(v.prizes[idx].Label, cell))
	}

	barWidth := width - 4
	filled := int(v.progress * float64(barWidth))
	for i := 0; i < barWidth; i++ {
		r := '░'
		if i < filled {
			r = '█'
		}
		s.SetContent(2+i, row+3, r, nil, base.Foreground(tcell.ColorGreen))
	}

	drawText(s, 2, row+5, base.Bold(true), v.message)
	drawText(s, 2, height-2, base.Foreground(tcell.ColorGray), "space: spin  c: cancel  q: quit")
	s.Show()
}
