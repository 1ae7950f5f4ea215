package session

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/playroomlabs/partyhost/internal/engine/events"
	"github.com/playroomlabs/partyhost/pkg/http/ws"
)

// broadcaster is the slice of the hub the bridge needs.
type broadcaster interface {
	Broadcast(msg ws.Message)
}

// BridgeEvents forwards every engine event to connected WebSocket clients
// so browsers can render the match as it unfolds. Returns the unsubscribe
// function.
func BridgeEvents(bus *events.Bus, hub broadcaster, logger zerolog.Logger) func() {
	log := logger.With().Str("component", "event_bridge").Logger()
	return bus.SubscribeAll(func(ev events.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("topic", ev.Topic()).Msg("event marshal failed")
			return
		}
		hub.Broadcast(ws.NewMessage(ws.TypeEvent, ws.EventPayload{
			Topic: ev.Topic(),
			Data:  data,
		}))
	})
}
