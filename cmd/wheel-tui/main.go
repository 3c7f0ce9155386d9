package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/ichi0g0y/prize-wheel/internal/localdb"
	"github.com/ichi0g0y/prize-wheel/internal/shared/paths"
	"github.com/ichi0g0y/prize-wheel/internal/types"
	"github.com/ichi0g0y/prize-wheel/internal/wheel"
)

var samplePrizes = []types.Prize{
	{ID: "coffee", Label: "Coffee", Unlimited: true},
	{ID: "lunch", Label: "وجبة غداء", MaxWins: 3},
	{ID: "cap", Label: "Cap", MaxWins: 10},
	{ID: "sticker", Label: "Sticker", Unlimited: true},
	{ID: "voucher", Label: "Voucher", MaxWins: 1},
	{ID: "pen", Label: "Pen", Unlimited: true},
}

type progressEvent struct{ p wheel.Progress }
type tickEvent struct{ t wheel.Tick }
type outcomeEvent struct{ o wheel.Outcome }

// loadPrizes はDBがあればそこから景品と当選数を読み、無ければサンプルを使う
func loadPrizes(useDB bool) ([]types.Prize, map[string]int) {
	if useDB {
		if _, err := os.Stat(paths.GetDBPath()); err == nil {
			if _, err := localdb.SetupDB(paths.GetDBPath()); err == nil {
				defer localdb.CloseDB()
				prizes, perr := localdb.GetPrizes()
				usage, uerr := localdb.GetPrizeUsage()
				if perr == nil && uerr == nil && len(prizes) > 0 {
					return prizes, usage
				}
			}
		}
	}
	return samplePrizes, map[string]int{}
}

// tally はこのセッション中の当選数を数え、空き状況を再計算する
type tally struct {
	prizes []types.Prize
	usage  map[string]int
}

func newTally(prizes []types.Prize, usage map[string]int) *tally {
	t := &tally{prizes: prizes, usage: make(map[string]int, len(usage))}
	for id, n := range usage {
		t.usage[id] = n
	}
	return t
}

func (t *tally) record(prizeID string) {
	t.usage[prizeID]++
}

func (t *tally) available() ([]int, map[int]bool) {
	indices := wheel.AvailableIndices(t.prizes, t.usage)
	set := make(map[int]bool, len(indices))
	for _, idx := range indices {
		set[idx] = true
	}
	return indices, set
}

func main() {
	useDB := flag.Bool("db", true, "load prizes from the local database when present")
	rtl := flag.Bool("rtl", false, "right-to-left segment order")
	mute := flag.Bool("mute", false, "disable tick sounds")
	duration := flag.Int("duration", 8000, "spin duration in milliseconds")
	turns := flag.Int("turns", 5, "full turns before landing")
	flag.Parse()

	prizes, usage := loadPrizes(*useDB)
	wins := newTally(prizes, usage)
	available, availableSet := wins.available()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	sound := newClicker(*mute)
	defer sound.Close()

	post := func(data interface{}) {
		_ = screen.PostEvent(tcell.NewEventInterrupt(data))
	}
	driver := wheel.NewDriver(wheel.Options{
		DurationMs: *duration,
		Turns:      *turns,
		OnProgress: func(p wheel.Progress) { post(progressEvent{p}) },
		OnTick:     func(t wheel.Tick) { post(tickEvent{t}) },
		OnOutcome:  func(o wheel.Outcome) { post(outcomeEvent{o}) },
	})
	defer driver.Close()

	v := view{
		prizes:    prizes,
		available: availableSet,
		reversed:  *rtl,
		message:   "press space to spin",
	}

	for {
		v.state = driver.State()
		render(screen, v)

		switch ev := screen.PollEvent().(type) {
		case *tcell.EventResize:
			screen.Sync()

		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				return
			}
			if ev.Key() != tcell.KeyRune {
				continue
			}
			switch ev.Rune() {
			case ' ':
				if len(available) == 0 {
					v.message = "no prizes left"
					continue
				}
				if _, ok := driver.Spin(wheel.SpinRequest{
					Prizes:      prizes,
					Available:   available,
					ForcedIndex: wheel.NoForcedIndex,
					Reversed:    *rtl,
				}); ok {
					v.message = "spinning..."
				}
			case 'c':
				if driver.Cancel() {
					v.progress = 0
					v.pointer = wheel.ResolveSegmentIndex(driver.Rotation(), len(prizes), *rtl)
					v.message = "cancelled"
				}
			}

		case *tcell.EventInterrupt:
			switch data := ev.Data().(type) {
			case progressEvent:
				v.progress = data.p.Linear
				v.pointer = data.p.PointerIndex
			case tickEvent:
				v.pointer = data.t.PointerIndex
				sound.Tick()
			case outcomeEvent:
				v.progress = 1
				v.pointer = data.o.Index
				v.message = fmt.Sprintf("winner: %s", data.o.Prize.Label)
				if !data.o.Verified {
					v.message += " (unverified)"
				}
				sound.Win()

				wins.record(data.o.Prize.ID)
				available, v.available = wins.available()
				if len(available) == 0 {
					v.message += " - no prizes left"
				}
			}
		}
	}
}
