package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeSender) SendToNarrator(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func TestSpeakWaitsForAck(t *testing.T) {
	sender := &fakeSender{}
	speaker := NewNarratorSpeaker(sender, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- speaker.Speak(context.Background(), "Welcome everyone!")
	}()

	var utteranceID string
	require.Eventually(t, func() bool {
		msgs := sender.messages()
		if len(msgs) == 0 {
			return false
		}
		var p SpeakPayload
		require.NoError(t, json.Unmarshal(msgs[0].Payload, &p))
		utteranceID = p.UtteranceID
		return true
	}, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("speak returned before ack")
	case <-time.After(20 * time.Millisecond):
	}

	speaker.Acknowledge(utteranceID)
	require.NoError(t, <-done)

	var p SpeakPayload
	require.NoError(t, json.Unmarshal(sender.messages()[0].Payload, &p))
	assert.Equal(t, TypeSpeak, sender.messages()[0].Type)
	assert.Equal(t, "Welcome everyone!", p.Text)
}

func TestSpeakReturnsErrorWithoutNarrator(t *testing.T) {
	sender := &fakeSender{err: ErrNoNarrator}
	speaker := NewNarratorSpeaker(sender, zerolog.Nop())

	err := speaker.Speak(context.Background(), "anyone there?")
	require.Error(t, err)
	assert.ErrorContains(t, err, "send speak frame")
}

func TestSpeakHonorsContextCancellation(t *testing.T) {
	sender := &fakeSender{}
	speaker := NewNarratorSpeaker(sender, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- speaker.Speak(ctx, "long monologue")
	}()

	require.Eventually(t, func() bool { return len(sender.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpeakTimesOutWithoutAck(t *testing.T) {
	sender := &fakeSender{}
	speaker := NewNarratorSpeaker(sender, zerolog.Nop())
	speaker.deadline = func(string) time.Duration { return 10 * time.Millisecond }

	err := speaker.Speak(context.Background(), "hello")
	assert.NoError(t, err)
}

func TestCancelSendsFrameAndReleasesWaiters(t *testing.T) {
	sender := &fakeSender{}
	speaker := NewNarratorSpeaker(sender, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- speaker.Speak(context.Background(), "interrupt me")
	}()
	require.Eventually(t, func() bool { return len(sender.messages()) == 1 }, time.Second, 5*time.Millisecond)

	speaker.Cancel()

	require.NoError(t, <-done)
	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, TypeCancel, msgs[1].Type)
}

func TestSpeakDeadlineScalesWithLength(t *testing.T) {
	short := speakDeadline("hi")
	long := speakDeadline(string(make([]rune, 400)))
	assert.Greater(t, long, short)
	assert.LessOrEqual(t, long, 45*time.Second)
}
