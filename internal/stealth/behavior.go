package stealth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ActionKind identifies one step of a behaviour script.
type ActionKind string

// Action kinds.
const (
	ActionMove   ActionKind = "move"
	ActionScroll ActionKind = "scroll"
	ActionType   ActionKind = "type"
	ActionPause  ActionKind = "pause"
)

// Action is a single scripted interaction. Delay is waited before the action
// is performed.
type Action struct {
	Kind     ActionKind
	X, Y     float64
	ScrollY  int64
	Selector string
	Text     string
	Delay    time.Duration
}

// Script is an ordered list of actions.
type Script []Action

// Duration is the sum of all action delays.
func (s Script) Duration() time.Duration {
	var total time.Duration
	for _, a := range s {
		total += a.Delay
	}
	return total
}

// Driver performs primitive interactions against a page.
type Driver interface {
	MoveMouse(ctx context.Context, x, y float64) error
	ScrollTo(ctx context.Context, y int64) error
	TypeText(ctx context.Context, selector, text string) error
}

// Interpreter executes scripts against a Driver.
type Interpreter struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// NewInterpreter returns an Interpreter that waits with real timers. A nil
// sleep function selects the default.
func NewInterpreter(sleep func(ctx context.Context, d time.Duration) error) *Interpreter {
	if sleep == nil {
		sleep = sleepContext
	}
	return &Interpreter{sleep: sleep}
}

// Run performs every action in order and stops at the first error or when ctx
// is done.
func (in *Interpreter) Run(ctx context.Context, drv Driver, script Script) error {
	for i, action := range script {
		if err := in.sleep(ctx, action.Delay); err != nil {
			return err
		}
		var err error
		switch action.Kind {
		case ActionMove:
			err = drv.MoveMouse(ctx, action.X, action.Y)
		case ActionScroll:
			err = drv.ScrollTo(ctx, action.ScrollY)
		case ActionType:
			err = drv.TypeText(ctx, action.Selector, action.Text)
		case ActionPause:
		default:
			err = fmt.Errorf("unknown action %q", action.Kind)
		}
		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Kind, err)
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Simulator builds human-like behaviour scripts.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a randomly seeded Simulator.
func NewSimulator() *Simulator {
	return NewSeededSimulator(rand.Uint64(), rand.Uint64())
}

// NewSeededSimulator returns a deterministic Simulator.
func NewSeededSimulator(seed1, seed2 uint64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (s *Simulator) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)))
}

// MousePath returns an eased multi-step path from one point to another with
// small jitter on intermediate points. The final point is exact.
func (s *Simulator) MousePath(fromX, fromY, toX, toY float64) Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mousePath(fromX, fromY, toX, toY)
}

func (s *Simulator) mousePath(fromX, fromY, toX, toY float64) Script {
	steps := 12 + s.rng.IntN(14)
	path := make(Script, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		eased := 0.5 - math.Cos(t*math.Pi)/2
		x := fromX + (toX-fromX)*eased
		y := fromY + (toY-fromY)*eased
		if i < steps {
			x += s.rng.Float64()*4 - 2
			y += s.rng.Float64()*4 - 2
		}
		path = append(path, Action{
			Kind:  ActionMove,
			X:     math.Round(x*10) / 10,
			Y:     math.Round(y*10) / 10,
			Delay: s.between(8*time.Millisecond, 28*time.Millisecond),
		})
	}
	return path
}

// Scroll returns a smooth scroll from the top to a random offset within
// maxOffset, in several increments.
func (s *Simulator) Scroll(maxOffset int64) Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scroll(maxOffset)
}

func (s *Simulator) scroll(maxOffset int64) Script {
	if maxOffset <= 0 {
		return nil
	}
	target := maxOffset/3 + s.rng.Int64N(maxOffset-maxOffset/3+1)
	steps := 4 + s.rng.IntN(5)
	out := make(Script, 0, steps)
	for i := 1; i <= steps; i++ {
		out = append(out, Action{
			Kind:    ActionScroll,
			ScrollY: target * int64(i) / int64(steps),
			Delay:   s.between(40*time.Millisecond, 120*time.Millisecond),
		})
	}
	return out
}

// Typing returns one type action per character. Each keystroke waits
// 60-180ms; roughly one in twelve adds a 350-900ms pause, and characters
// after a space wait a little longer.
func (s *Simulator) Typing(selector, text string) Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Script, 0, len(text))
	prevSpace := false
	for _, r := range text {
		delay := s.between(60*time.Millisecond, 180*time.Millisecond)
		if s.rng.Float64() < 0.08 {
			delay += s.between(350*time.Millisecond, 900*time.Millisecond)
		}
		if prevSpace {
			delay += s.between(20*time.Millisecond, 80*time.Millisecond)
		}
		out = append(out, Action{Kind: ActionType, Selector: selector, Text: string(r), Delay: delay})
		prevSpace = r == ' '
	}
	return out
}

// Browse returns a short warm-up for a freshly loaded page: a wander across
// the viewport, a scroll, a return to the top and a brief pause.
func (s *Simulator) Browse(vp Viewport) Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, h := float64(vp.Width), float64(vp.Height)
	if w <= 0 || h <= 0 {
		w, h = 1280, 800
	}
	startX, startY := w*(0.2+s.rng.Float64()*0.2), h*(0.2+s.rng.Float64()*0.2)
	endX, endY := w*(0.4+s.rng.Float64()*0.3), h*(0.3+s.rng.Float64()*0.3)

	var out Script
	out = append(out, Action{Kind: ActionPause, Delay: s.between(300*time.Millisecond, 900*time.Millisecond)})
	out = append(out, s.mousePath(startX, startY, endX, endY)...)
	out = append(out, s.scroll(int64(h))...)
	out = append(out, Action{Kind: ActionScroll, ScrollY: 0, Delay: s.between(200*time.Millisecond, 500*time.Millisecond)})
	out = append(out, Action{Kind: ActionPause, Delay: s.between(150*time.Millisecond, 400*time.Millisecond)})
	return out
}
