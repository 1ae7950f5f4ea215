package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httperrors "github.com/playroomlabs/partyhost/pkg/http/errors"
	"github.com/playroomlabs/partyhost/pkg/http/ws"
)

// wsHandler owns the /ws endpoint. Clients announce a role with a hello
// message; narrators additionally send spoken acks so narration pacing can
// follow real playback.
type wsHandler struct {
	hub     *ws.Hub
	speaker *ws.NarratorSpeaker
	logger  zerolog.Logger
}

func (h *wsHandler) serve(w http.ResponseWriter, r *http.Request) {
	raw, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(raw, h.logger)
	go conn.WritePump()

	var clientID uuid.UUID
	registered := false

	conn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypeHello:
			var hello ws.HelloPayload
			if err := json.Unmarshal(msg.Payload, &hello); err != nil {
				return conn.Send(errorMessage(httperrors.ErrCodeInvalidPayload, "malformed hello payload"))
			}
			role := hello.Role
			if role != ws.RoleNarrator {
				role = ws.RoleObserver
			}
			if registered {
				h.hub.Unregister(clientID)
			}
			clientID = h.hub.Register(conn, role)
			registered = true
			return conn.Send(ws.NewMessage(ws.TypeWelcome, ws.WelcomePayload{
				ClientID: clientID.String(),
				Role:     role,
			}))

		case ws.TypeSpoken:
			var spoken ws.SpokenPayload
			if err := json.Unmarshal(msg.Payload, &spoken); err != nil {
				return conn.Send(errorMessage(httperrors.ErrCodeInvalidPayload, "malformed spoken payload"))
			}
			h.speaker.Acknowledge(spoken.UtteranceID)
			return nil

		case ws.TypePing:
			return conn.Send(ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})

		default:
			return conn.Send(errorMessage(httperrors.ErrCodeUnknownMessageType, "unknown message type: "+msg.Type))
		}
	})

	if registered {
		h.hub.Unregister(clientID)
	} else {
		conn.Close()
	}
}

func errorMessage(code, message string) ws.Message {
	return ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
}
