package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// narratorSender is the slice of the hub the speaker needs.
type narratorSender interface {
	SendToNarrator(msg Message) error
}

// NarratorSpeaker voices scripts through the connected narrator client. It
// sends a speak frame per utterance and waits for the matching spoken ack
// so performance pacing tracks real playback. A missing ack degrades to a
// timeout instead of failing the performance.
type NarratorSpeaker struct {
	hub    narratorSender
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan struct{}

	// swappable for tests
	deadline func(text string) time.Duration
}

// NewNarratorSpeaker builds a speaker bound to the hub's narrator slot.
func NewNarratorSpeaker(hub narratorSender, logger zerolog.Logger) *NarratorSpeaker {
	return &NarratorSpeaker{
		hub:      hub,
		logger:   logger.With().Str("component", "narrator_speaker").Logger(),
		pending:  make(map[string]chan struct{}),
		deadline: speakDeadline,
	}
}

// Speak sends one utterance to the narrator and blocks until the client
// acks it, the context is cancelled, or the playback estimate lapses.
func (s *NarratorSpeaker) Speak(ctx context.Context, text string) error {
	id := uuid.NewString()
	ack := make(chan struct{})

	s.mu.Lock()
	s.pending[id] = ack
	s.mu.Unlock()
	defer s.drop(id)

	msg := NewMessage(TypeSpeak, SpeakPayload{UtteranceID: id, Text: text})
	if err := s.hub.SendToNarrator(msg); err != nil {
		return fmt.Errorf("send speak frame: %w", err)
	}

	timer := time.NewTimer(s.deadline(text))
	defer timer.Stop()

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		// Narrator never confirmed; keep the match moving.
		s.logger.Warn().Str("utterance_id", id).Msg("spoken ack timed out")
		return nil
	}
}

// Cancel tells the narrator to stop playback and releases every waiter.
func (s *NarratorSpeaker) Cancel() {
	if err := s.hub.SendToNarrator(NewMessage(TypeCancel, CancelPayload{})); err != nil {
		s.logger.Debug().Err(err).Msg("cancel frame not delivered")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ack := range s.pending {
		close(ack)
		delete(s.pending, id)
	}
}

// Acknowledge marks an utterance as spoken. Called by the connection
// handler when a spoken frame arrives.
func (s *NarratorSpeaker) Acknowledge(utteranceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ack, ok := s.pending[utteranceID]; ok {
		close(ack)
		delete(s.pending, utteranceID)
	}
}

func (s *NarratorSpeaker) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// speakDeadline estimates playback time from text length plus grace.
func speakDeadline(text string) time.Duration {
	d := 3*time.Second + time.Duration(len([]rune(text)))*70*time.Millisecond
	if d > 45*time.Second {
		d = 45 * time.Second
	}
	return d
}
