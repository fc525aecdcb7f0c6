// Package beeper sequences audible patterns without blocking. Requests
// queue up and Tick advances the active pattern against the clock, so a
// long pattern never stalls the control loop.
package beeper

import "time"

// Sounder is the physical buzzer output. Implementations that cannot
// reproduce the frequency may ignore it.
type Sounder interface {
	SetTone(freq uint, on bool)
}

// maxQueue bounds pending requests; beyond it new requests are dropped.
const maxQueue = 8

type request struct {
	freq   uint
	onMs   uint
	offMs  uint
	repeat int
}

// Beeper plays queued beep patterns.
type Beeper struct {
	snd   Sounder
	clock func() time.Time

	queue     []request
	active    request
	playing   bool
	sounding  bool
	remaining int
	phaseEnd  time.Time
}

func New(snd Sounder) *Beeper {
	return &Beeper{snd: snd, clock: time.Now}
}

// SetClock replaces the time source for tests.
func (b *Beeper) SetClock(clock func() time.Time) {
	b.clock = clock
}

// Setup silences the output.
func (b *Beeper) Setup() {
	b.snd.SetTone(0, false)
}

// Beep queues one pattern: repeat times (onMs of tone, offMs of
// silence).
func (b *Beeper) Beep(freq, onMs, offMs uint, repeat int) {
	if repeat <= 0 || len(b.queue) >= maxQueue {
		return
	}
	b.queue = append(b.queue, request{freq: freq, onMs: onMs, offMs: offMs, repeat: repeat})
}

// Tick advances the active pattern by at most one phase change.
func (b *Beeper) Tick() {
	now := b.clock()
	if !b.playing {
		if len(b.queue) == 0 {
			return
		}
		b.active = b.queue[0]
		b.queue = b.queue[1:]
		b.playing = true
		b.remaining = b.active.repeat
		b.startTone(now)
		return
	}
	if now.Before(b.phaseEnd) {
		return
	}
	if b.sounding {
		b.snd.SetTone(0, false)
		b.sounding = false
		b.remaining--
		if b.remaining <= 0 {
			b.playing = false
			return
		}
		b.phaseEnd = now.Add(time.Duration(b.active.offMs) * time.Millisecond)
		return
	}
	b.startTone(now)
}

func (b *Beeper) startTone(now time.Time) {
	b.snd.SetTone(b.active.freq, true)
	b.sounding = true
	b.phaseEnd = now.Add(time.Duration(b.active.onMs) * time.Millisecond)
}
