package main

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

// tone は指数減衰するサイン波
type tone struct {
	freq     float64
	phase    float64
	position int
	length   int
	decay    float64
}

func newTone(freq float64, d time.Duration) *tone {
	n := sampleRate.N(d)
	return &tone{freq: freq, length: n, decay: 5.0 / float64(n)}
}

func (t *tone) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		if t.position >= t.length {
			return i, i > 0
		}
		v := math.Sin(2*math.Pi*t.phase) * math.Exp(-t.decay*float64(t.position)) * 0.3
		samples[i][0] = v
		samples[i][1] = v

		t.phase += t.freq / float64(sampleRate)
		t.phase -= math.Floor(t.phase)
		t.position++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }

// clicker plays a short click on each segment crossing.
type clicker struct {
	mu      sync.Mutex
	enabled bool
	last    time.Time
}

func newClicker(mute bool) *clicker {
	c := &clicker{}
	if mute {
		return c
	}
	if err := speaker.Init(sampleRate, sampleRate.N(50*time.Millisecond)); err != nil {
		return c
	}
	c.enabled = true
	return c
}

// Tick は連続クリックを最短25ms間隔に間引いて鳴らす
func (c *clicker) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || time.Since(c.last) < 25*time.Millisecond {
		return
	}
	c.last = time.Now()
	speaker.Play(newTone(1320, 30*time.Millisecond))
}

func (c *clicker) Win() {
	if !c.enabled {
		return
	}
	speaker.Play(beep.Seq(
		newTone(880, 120*time.Millisecond),
		newTone(1175, 120*time.Millisecond),
		newTone(1760, 300*time.Millisecond),
	))
}

func (c *clicker) Close() {
	if c.enabled {
		speaker.Clear()
	}
}
