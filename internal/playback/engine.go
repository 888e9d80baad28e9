package playback

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
)

// State is the screensaver state.
type State string

const (
	StateActive   State = "active"
	StatePlaying  State = "playing"
	StateSleeping State = "sleeping"
)

const (
	DefaultVideoWatchdog = 180 * time.Second
	DefaultSleepRecheck  = 60 * time.Second
)

// Slot names one of the two double-buffer slots.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

var slotNames = [2]Slot{SlotA, SlotB}

// CommandType tells the host what to render.
type CommandType string

const (
	// CommandLoad asks the host to preload Slide into the hidden Slot and report Ready or Failed.
	CommandLoad CommandType = "load"
	// CommandShow makes Slot visible. The host raises it before hiding the other slot.
	CommandShow CommandType = "show"
	// CommandSleep replaces the playlist with the sleep indicator.
	CommandSleep CommandType = "sleep"
	// CommandStop ends playback and returns control to the browse screens.
	CommandStop CommandType = "stop"
)

// Command is published on the bus for the host.
type Command struct {
	Type   CommandType  `json:"type"`
	Slot   Slot         `json:"slot,omitempty"`
	Token  uint64       `json:"token,omitempty"`
	Slide  *Slide       `json:"slide,omitempty"`
	Effect model.Effect `json:"effect,omitempty"`
	Muted  bool         `json:"muted,omitempty"`
	At     time.Time    `json:"at"`
}

// DocumentSource provides the current document. The coordinator implements it.
type DocumentSource interface {
	Document() *model.Document
}

// Options configures an Engine.
type Options struct {
	Source        DocumentSource
	Bus           *events.Bus
	Clock         clockwork.Clock
	Recorder      metrics.Recorder
	Rand          *rand.Rand
	VideoWatchdog time.Duration
	SleepRecheck  time.Duration
}

type slotState struct {
	slide   *Slide
	token   uint64
	visible bool
	ready   bool
}

// Engine is the idle playback state machine. All transitions happen under one
// mutex; Run drives the timers and host callbacks only mark what happened.
type Engine struct {
	source   DocumentSource
	bus      *events.Bus
	clock    clockwork.Clock
	recorder metrics.Recorder
	rng      *rand.Rand
	watchdog time.Duration
	recheck  time.Duration

	kick chan struct{}

	mu        sync.Mutex
	state     State
	playlist  []Slide
	signature string
	index     int
	slots     [2]slotState
	visible   int // index into slots, -1 when nothing is shown
	loading   int // index into slots, -1 when no load is pending
	nextToken uint64
	effect    model.Effect
	settings  model.ScreensaverSettings

	idleAt     time.Time // ACTIVE: when playback starts
	advanceAt  time.Time // PLAYING: image timer or video watchdog of the visible slide
	videoTimer bool      // advanceAt is a video watchdog
	loadBy     time.Time // PLAYING: deadline for the pending load
	recheckAt  time.Time // PLAYING/SLEEPING: next sleep-hours evaluation
	lastCmd    *Command
}

// New creates an Engine in the ACTIVE state with its idle timer armed.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(opts.Clock.Now().UnixNano()), 0x5eed))
	}
	if opts.VideoWatchdog <= 0 {
		opts.VideoWatchdog = DefaultVideoWatchdog
	}
	if opts.SleepRecheck <= 0 {
		opts.SleepRecheck = DefaultSleepRecheck
	}
	e := &Engine{
		source:   opts.Source,
		bus:      opts.Bus,
		clock:    opts.Clock,
		recorder: opts.Recorder,
		rng:      opts.Rand,
		watchdog: opts.VideoWatchdog,
		recheck:  opts.SleepRecheck,
		kick:     make(chan struct{}, 1),
		visible:  -1,
		loading:  -1,
	}
	e.mu.Lock()
	e.enterActive(e.clock.Now())
	e.mu.Unlock()
	return e
}

func (e *Engine) document() *model.Document {
	if e.source == nil {
		return nil
	}
	return e.source.Document()
}

func (e *Engine) currentSettings() model.ScreensaverSettings {
	if doc := e.document(); doc != nil {
		return doc.ScreensaverSettings
	}
	return model.DefaultScreensaverSettings()
}

func (e *Engine) emit(cmd Command) {
	cmd.At = e.clock.Now()
	e.lastCmd = &cmd
	e.bus.Offer(cmd)
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	slog.Debug("Playback state changed", logfields.State(string(s)), slog.String("from", string(e.state)))
	e.state = s
	e.recorder.SetPlaybackState(string(s))
}

// clearTimers drops every deadline; each transition arms only what it needs.
func (e *Engine) clearTimers() {
	e.idleAt = time.Time{}
	e.advanceAt = time.Time{}
	e.videoTimer = false
	e.loadBy = time.Time{}
	e.recheckAt = time.Time{}
}

func (e *Engine) resetSlots() {
	e.slots = [2]slotState{}
	e.visible = -1
	e.loading = -1
}

func (e *Engine) enterActive(now time.Time) {
	e.clearTimers()
	e.resetSlots()
	e.setState(StateActive)
	e.settings = e.currentSettings()
	e.idleAt = now.Add(time.Duration(e.settings.IdleTimeout) * time.Second)
}

func (e *Engine) enterSleeping(now time.Time) {
	e.clearTimers()
	e.resetSlots()
	e.setState(StateSleeping)
	e.recheckAt = now.Add(e.recheck)
	e.emit(Command{Type: CommandSleep})
}

// enterPlaying starts the playlist. It returns false when there is nothing to play.
func (e *Engine) enterPlaying(now time.Time) bool {
	doc := e.document()
	e.settings = e.currentSettings()
	playlist := Build(doc, now, e.rng)
	if len(playlist) == 0 {
		return false
	}
	e.clearTimers()
	e.resetSlots()
	e.playlist = playlist
	e.signature = signature(doc, now)
	e.index = -1
	e.setState(StatePlaying)
	e.recheckAt = now.Add(e.recheck)
	e.loadNext(now)
	return true
}

// loadNext preloads the following playlist entry into the hidden slot.
func (e *Engine) loadNext(now time.Time) {
	doc := e.document()
	if sig := signature(doc, now); sig != e.signature {
		e.playlist = Build(doc, now, e.rng)
		e.signature = sig
		e.index = -1
		e.settings = e.currentSettings()
		slog.Debug("Playlist rebuilt", logfields.Count(len(e.playlist)))
	}
	if len(e.playlist) == 0 {
		e.enterActive(now)
		e.emit(Command{Type: CommandStop})
		return
	}

	e.index++
	if e.index >= len(e.playlist) {
		Shuffle(e.playlist, e.rng)
		e.index = 0
	}
	slide := e.playlist[e.index]

	target := 0
	if e.visible == 0 {
		target = 1
	}
	e.nextToken++
	e.slots[target] = slotState{slide: &slide, token: e.nextToken}
	e.loading = target
	e.loadBy = now.Add(e.watchdog)

	e.effect = e.settings.Effect
	if e.effect == model.EffectRandom || e.effect == "" {
		e.effect = model.Effects[e.rng.IntN(len(model.Effects))]
	}
	e.emit(Command{
		Type:   CommandLoad,
		Slot:   slotNames[target],
		Token:  e.nextToken,
		Slide:  &slide,
		Effect: e.effect,
		Muted:  e.settings.MuteVideos,
	})
}

// flip shows the loaded slot. The new slot becomes visible before the old one
// is hidden, so at least one slot is always at full opacity.
func (e *Engine) flip(now time.Time) {
	next := e.loading
	e.loading = -1
	e.loadBy = time.Time{}
	e.slots[next].ready = true
	e.slots[next].visible = true
	e.emit(Command{Type: CommandShow, Slot: slotNames[next], Token: e.slots[next].token})
	if prev := e.visible; prev >= 0 && prev != next {
		e.slots[prev].visible = false
	}
	e.visible = next

	slide := e.slots[next].slide
	if slide.Video {
		e.advanceAt = now.Add(e.watchdog)
		e.videoTimer = true
	} else {
		e.advanceAt = now.Add(time.Duration(e.settings.ImageDuration) * time.Second)
		e.videoTimer = false
	}
}

func (e *Engine) finishSlide(slide *Slide, outcome metrics.SlideOutcome) {
	if slide == nil {
		return
	}
	e.recorder.IncSlide(string(slide.Kind), outcome)
	if outcome != metrics.SlideCompleted {
		slog.Debug("Slide skipped", logfields.SlideID(slide.ID()), logfields.Reason(string(outcome)))
	}
}

func (e *Engine) notify() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// WakeResult tells the host where to go after playback was interrupted.
type WakeResult struct {
	From     State              `json:"from"`
	Behavior model.WakeBehavior `json:"behavior"`
	Slide    *Slide             `json:"slide,omitempty"`
	Product  *model.ProductRef  `json:"-"`
	// ProductID is set when Behavior is resume and the slide came from a product.
	ProductID string `json:"productId,omitempty"`
}

// Touch records user input: it resets the idle timer and, while playing or
// sleeping, returns to ACTIVE. The result reports the slide that was showing
// and, for the resume wake behavior, the product it belongs to.
func (e *Engine) Touch() WakeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.notify()

	now := e.clock.Now()
	res := WakeResult{From: e.state, Behavior: model.WakeReset}
	if e.state == StatePlaying {
		if e.visible >= 0 {
			res.Slide = e.slots[e.visible].slide
		}
		if e.settings.WakeBehavior == model.WakeResume && res.Slide != nil {
			if ref, ok := e.document().FindProduct(res.Slide.SourceID); ok {
				res.Behavior = model.WakeResume
				res.Product = &ref
				res.ProductID = ref.Product.ID
			}
		}
	}
	if e.state != StateActive {
		e.emit(Command{Type: CommandStop})
	}
	e.enterActive(now)
	return res
}

// Ready reports that the slide loaded under token is render-ready.
func (e *Engine) Ready(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.notify()

	if e.state != StatePlaying || e.loading < 0 || e.slots[e.loading].token != token {
		return
	}
	e.slots[e.loading].ready = true
	e.loadBy = time.Time{}
	// While a slide is still on its timer the preloaded slot waits for it.
	if e.visible < 0 || e.advanceAt.IsZero() {
		now := e.clock.Now()
		e.flip(now)
		e.loadNext(now)
	}
}

// Ended reports that the video under token reached its natural end.
func (e *Engine) Ended(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.notify()

	if e.state != StatePlaying || e.visible < 0 || e.slots[e.visible].token != token {
		return
	}
	e.finishSlide(e.slots[e.visible].slide, metrics.SlideCompleted)
	e.advance(e.clock.Now())
}

// Failed reports that the slide under token could not be loaded or played.
// The engine skips to the next slide immediately.
func (e *Engine) Failed(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.notify()

	if e.state != StatePlaying {
		return
	}
	now := e.clock.Now()
	switch {
	case e.loading >= 0 && e.slots[e.loading].token == token:
		e.finishSlide(e.slots[e.loading].slide, metrics.SlideFailed)
		e.slots[e.loading] = slotState{}
		e.loading = -1
		e.loadNext(now)
	case e.visible >= 0 && e.slots[e.visible].token == token:
		e.finishSlide(e.slots[e.visible].slide, metrics.SlideFailed)
		e.advance(now)
	}
}

// advance moves past the visible slide: a preloaded slot is shown at once,
// otherwise the next entry is loaded and shown when ready.
func (e *Engine) advance(now time.Time) {
	e.advanceAt = time.Time{}
	e.videoTimer = false
	if e.loading >= 0 && e.slots[e.loading].ready {
		e.flip(now)
		e.loadNext(now)
		return
	}
	if e.loading < 0 {
		e.loadNext(now)
	}
}

// Tick fires every deadline that is due at the clock's current time.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick(e.clock.Now())
}

func due(deadline, now time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}

func (e *Engine) tick(now time.Time) {
	switch e.state {
	case StateActive:
		if !due(e.idleAt, now) {
			return
		}
		settings := e.currentSettings()
		if Asleep(settings, now) {
			e.enterSleeping(now)
			return
		}
		if !e.enterPlaying(now) {
			slog.Debug("Nothing to play; idle timer re-armed")
			e.enterActive(now)
		}

	case StateSleeping:
		if !due(e.recheckAt, now) {
			return
		}
		if Asleep(e.currentSettings(), now) {
			e.recheckAt = now.Add(e.recheck)
			return
		}
		if !e.enterPlaying(now) {
			e.enterActive(now)
			e.emit(Command{Type: CommandStop})
		}

	case StatePlaying:
		if due(e.recheckAt, now) {
			if Asleep(e.currentSettings(), now) {
				e.enterSleeping(now)
				return
			}
			e.recheckAt = now.Add(e.recheck)
		}
		if due(e.loadBy, now) && e.loading >= 0 {
			// The host never answered; treat it like a load failure.
			e.finishSlide(e.slots[e.loading].slide, metrics.SlideFailed)
			e.slots[e.loading] = slotState{}
			e.loading = -1
			e.loadNext(now)
		}
		if due(e.advanceAt, now) {
			outcome := metrics.SlideCompleted
			if e.videoTimer {
				outcome = metrics.SlideWatchdog
			}
			e.finishSlide(e.slots[e.visible].slide, outcome)
			e.advance(now)
		}
	}
}

// NextDeadline returns the earliest armed deadline, or zero when none is armed.
func (e *Engine) NextDeadline() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	var next time.Time
	for _, d := range []time.Time{e.idleAt, e.advanceAt, e.loadBy, e.recheckAt} {
		if !d.IsZero() && (next.IsZero() || d.Before(next)) {
			next = d
		}
	}
	return next
}

// Run drives the engine's timers until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	timer := e.clock.NewTimer(time.Hour)
	timer.Stop()
	for {
		var fire <-chan time.Time
		if next := e.NextDeadline(); !next.IsZero() {
			timer.Reset(max(next.Sub(e.clock.Now()), 0))
			fire = timer.Chan()
		}
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-e.kick:
			timer.Stop()
		case <-fire:
			e.Tick()
		}
	}
}

// SlotView is the externally visible state of one slot.
type SlotView struct {
	Slot    Slot   `json:"slot"`
	Slide   *Slide `json:"slide,omitempty"`
	Token   uint64 `json:"token,omitempty"`
	Visible bool   `json:"visible"`
	Ready   bool   `json:"ready"`
}

// Snapshot is the engine state reported to the host.
type Snapshot struct {
	State       State        `json:"state"`
	Slots       [2]SlotView  `json:"slots"`
	Playlist    int          `json:"playlistLength"`
	Index       int          `json:"index"`
	Effect      model.Effect `json:"effect,omitempty"`
	NextAt      time.Time    `json:"nextAt,omitzero"`
	LastCommand *Command     `json:"lastCommand,omitempty"`
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() Snapshot {
	next := e.NextDeadline()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		State:       e.state,
		Playlist:    len(e.playlist),
		Index:       e.index,
		Effect:      e.effect,
		NextAt:      next,
		LastCommand: e.lastCmd,
	}
	for i, st := range e.slots {
		s.Slots[i] = SlotView{Slot: slotNames[i], Slide: st.slide, Token: st.token, Visible: st.visible, Ready: st.ready}
	}
	return s
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
