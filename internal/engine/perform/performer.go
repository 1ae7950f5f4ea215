// Package perform drives assembled narration scripts to a speech
// transport, sequencing segments with theatrical pauses.
package perform

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/internal/engine/settings"
)

// Speaker is the narration transport. Speak blocks until the utterance
// has been voiced or ctx is cancelled; Cancel stops the in-flight
// utterance, if any.
type Speaker interface {
	Speak(ctx context.Context, utterance string) error
	Cancel()
}

var pauseRe = regexp.MustCompile(`\[([a-zA-Z]+)\]`)

// segment is one step of a script: say something, then hold a silence.
type segment struct {
	text  string
	pause string // pause name following the text, empty for none
}

// Performer owns the narration transport exclusively. Perform calls are
// serialized by the mutex, so a new performance never interleaves
// with one already in flight.
type Performer struct {
	mu       sync.Mutex
	speaker  Speaker
	settings *settings.Settings
	bus      *events.Bus
	logger   zerolog.Logger

	stateMu sync.Mutex
	cancel  context.CancelFunc

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

func NewPerformer(speaker Speaker, s *settings.Settings, bus *events.Bus, logger zerolog.Logger) *Performer {
	return &Performer{
		speaker:  speaker,
		settings: s,
		bus:      bus,
		logger:   logger.With().Str("component", "performer").Logger(),
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Perform voices the scripts in order, honoring inline [pauseName]
// markers scaled by pauseMultiplier. Cancellation is checked between
// every segment; an interrupted performance returns ctx.Err(). Transport
// failures are logged and surfaced as system errors but never abort the
// remaining segments.
func (p *Performer) Perform(ctx context.Context, scripts []string, pauseMultiplier float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.stateMu.Lock()
	p.cancel = cancel
	p.stateMu.Unlock()
	defer func() {
		cancel()
		p.stateMu.Lock()
		p.cancel = nil
		p.stateMu.Unlock()
	}()

	if pauseMultiplier <= 0 {
		pauseMultiplier = 1.0
	}

	started := p.now()
	p.publish(events.PerformanceStarted{ScriptCount: len(scripts)})

	for i, script := range scripts {
		if ctx.Err() != nil {
			p.finish(started, true)
			return ctx.Err()
		}
		p.publish(events.ScriptStarted{Index: i})

		for _, seg := range splitSegments(script) {
			if ctx.Err() != nil {
				p.finish(started, true)
				return ctx.Err()
			}
			if seg.text != "" {
				if err := p.speaker.Speak(ctx, seg.text); err != nil {
					if ctx.Err() != nil {
						p.finish(started, true)
						return ctx.Err()
					}
					p.logger.Error().Err(err).Str("utterance", seg.text).Msg("narration transport failed")
					p.publish(events.SystemError{Component: "performer", Message: err.Error()})
				}
			}
			if seg.pause != "" {
				d := p.pauseDuration(seg.pause, pauseMultiplier)
				if !p.sleep(ctx, d) {
					p.finish(started, true)
					return ctx.Err()
				}
			}
		}

		p.publish(events.ScriptCompleted{Index: i})
	}

	p.finish(started, false)
	return nil
}

// Interrupt cancels the in-flight performance and the current utterance.
// Safe to call when nothing is performing.
func (p *Performer) Interrupt() {
	p.stateMu.Lock()
	cancel := p.cancel
	p.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.speaker.Cancel()
}

func (p *Performer) pauseDuration(name string, multiplier float64) time.Duration {
	seconds := p.settings.Float("pauses."+name, 0)
	if seconds == 0 {
		p.logger.Warn().Str("pause", name).Msg("unknown pause name")
		seconds = p.settings.Float("pauses.short", 1.0)
	}
	return time.Duration(seconds * multiplier * float64(time.Second))
}

func (p *Performer) finish(started time.Time, interrupted bool) {
	p.publish(events.PerformanceCompleted{
		DurationSeconds: p.now().Sub(started).Seconds(),
		Interrupted:     interrupted,
	})
}

func (p *Performer) publish(ev events.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}

// splitSegments breaks a script into speakable chunks at pause markers.
// "Ready? [medium] Go!" yields {"Ready?", "medium"} then {"Go!", ""}.
func splitSegments(script string) []segment {
	var segs []segment
	rest := script
	for {
		loc := pauseRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			if text := strings.TrimSpace(rest); text != "" {
				segs = append(segs, segment{text: text})
			}
			return segs
		}
		segs = append(segs, segment{
			text:  strings.TrimSpace(rest[:loc[0]]),
			pause: rest[loc[2]:loc[3]],
		})
		rest = rest[loc[1]:]
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
