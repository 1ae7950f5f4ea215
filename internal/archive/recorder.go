package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/events"
)

// Persister is the slice of the repository the recorder needs.
type Persister interface {
	SaveMatch(ctx context.Context, rec MatchRecord, plays []PlayRecord) error
}

const flushTimeout = 10 * time.Second

// Recorder listens to engine events and archives each match once it ends.
// Persistence happens off the event path so a slow database never stalls
// the run loop.
type Recorder struct {
	persister Persister
	logger    zerolog.Logger

	mu      sync.Mutex
	pending *pendingMatch
	wg      sync.WaitGroup
}

type pendingMatch struct {
	rec   MatchRecord
	plays []PlayRecord
}

// NewRecorder builds a recorder and subscribes it to the bus.
func NewRecorder(bus *events.Bus, persister Persister, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		persister: persister,
		logger:    logger.With().Str("component", "archive_recorder").Logger(),
	}
	bus.Subscribe(events.TopicPatternSelected, r.onEvent)
	bus.Subscribe(events.TopicMatchStarted, r.onEvent)
	bus.Subscribe(events.TopicStateRestored, r.onEvent)
	bus.Subscribe(events.TopicPlaySelected, r.onEvent)
	bus.Subscribe(events.TopicMatchCompleted, r.onEvent)
	bus.Subscribe(events.TopicMatchAbandoned, r.onEvent)
	return r
}

func (r *Recorder) onEvent(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case events.PatternSelected:
		// Arrives before match:started; open the pending record here so
		// the pattern is captured.
		r.pending = &pendingMatch{rec: MatchRecord{
			PatternID:  e.PatternID,
			RoundCount: e.RoundCount,
		}}
	case events.MatchStarted:
		if r.pending == nil {
			r.pending = &pendingMatch{}
		}
		r.pending.rec.ID = e.MatchID
		r.pending.rec.StartedAt = e.StartedAt
	case events.StateRestored:
		// A restored match never replays pattern:selected or
		// match:started; reopen the pending record so its eventual
		// completion still archives.
		r.pending = &pendingMatch{rec: MatchRecord{
			ID:         e.MatchID,
			PatternID:  e.PatternID,
			RoundCount: e.RoundCount,
			StartedAt:  e.StartedAt,
		}}
	case events.PlaySelected:
		if r.pending == nil {
			return
		}
		r.pending.plays = append(r.pending.plays, PlayRecord{
			RoundNumber:     e.RoundNumber,
			RoundType:       e.RoundType,
			Variant:         e.Variant,
			SubVariant:      e.SubVariant,
			Modifier:        e.Modifier,
			Difficulty:      e.Difficulty,
			DurationSeconds: e.Duration,
			PlayerNames:     e.PlayerNames,
		})
	case events.MatchCompleted:
		if r.pending == nil || r.pending.rec.ID != e.MatchID {
			return
		}
		r.pending.rec.Status = "completed"
		r.pending.rec.RoundsPlayed = e.RoundsPlayed
		r.pending.rec.ElapsedSeconds = e.ElapsedSeconds
		r.finishLocked()
	case events.MatchAbandoned:
		if r.pending == nil || r.pending.rec.ID != e.MatchID {
			return
		}
		r.pending.rec.Status = "abandoned"
		r.pending.rec.Reason = e.Reason
		r.pending.rec.RoundsPlayed = len(r.pending.plays)
		r.finishLocked()
	}
}

func (r *Recorder) finishLocked() {
	p := r.pending
	r.pending = nil
	p.rec.EndedAt = time.Now().UTC()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := r.persister.SaveMatch(ctx, p.rec, p.plays); err != nil {
			r.logger.Error().Err(err).Str("match_id", p.rec.ID.String()).Msg("failed to archive match")
			return
		}
		r.logger.Info().
			Str("match_id", p.rec.ID.String()).
			Str("status", p.rec.Status).
			Int("plays", len(p.plays)).
			Msg("match archived")
	}()
}

// Wait blocks until all in-flight flushes finish. Called during shutdown.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
