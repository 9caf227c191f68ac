package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sketchrelay/go/clients/lobby_api_client"
	"github.com/mcdev12/sketchrelay/go/internal/lobby/rounds"
	"github.com/mcdev12/sketchrelay/go/internal/lobby/store"
)

// SettingsProvider resolves room configuration and user profiles from the
// upstream lobby REST service. The provider is advisory: lookups that fail
// fall back to configured defaults and never fail the event.
type SettingsProvider interface {
	GetRoomSettings(ctx context.Context, roomID string) (*lobby_api_client.RoomSettings, error)
	GetUserProfile(ctx context.Context, userID string) (*lobby_api_client.UserProfile, error)
}

// GameDefaults is what the relay falls back to when the lobby service does not
// answer for a room.
type GameDefaults struct {
	DrawDurationSeconds int
	TotalRounds         int
}

const settingsLookupTimeout = 3 * time.Second

type handlerFunc func(connID string, data json.RawMessage)

// Dispatcher routes inbound connection events to their handlers and fans the
// results back out through the transport. Malformed payloads and events from
// unknown connections are logged and dropped; nothing in here is fatal.
type Dispatcher struct {
	transport Transport
	registry  *store.Registry
	rooms     *store.Directory
	handoff   *store.HandoffBroker
	rounds    *rounds.Service
	provider  SettingsProvider
	defaults  GameDefaults

	handlers map[string]handlerFunc
}

// NewDispatcher creates the event relay. The rounds service is wired
// afterwards with SetRounds, since it needs the dispatcher as its event sink.
func NewDispatcher(transport Transport, registry *store.Registry, rooms *store.Directory, handoff *store.HandoffBroker, provider SettingsProvider, defaults GameDefaults) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		registry:  registry,
		rooms:     rooms,
		handoff:   handoff,
		provider:  provider,
		defaults:  defaults,
	}

	d.handlers = map[string]handlerFunc{
		EventJoinLobby:           d.handleJoinLobby,
		EventLeaveLobby:          d.handleLeaveLobby,
		EventChatMessage:         d.handleChatMessage,
		EventStartTimer:          d.handleStartTimer,
		EventDrawLineBatch:       d.handleDrawLineBatch,
		EventDrawEnd:             d.handleDrawEnd,
		EventClear:               d.handleClear,
		EventFillArea:            d.handleFillArea,
		EventRequestInitialState: d.handleRequestInitialState,
		EventSendCanvasState:     d.handleSendCanvasState,
		EventSyncRequest:         d.handleSyncRequest,
	}

	return d
}

// SetRounds wires the round timer service.
func (d *Dispatcher) SetRounds(svc *rounds.Service) {
	d.rounds = svc
}

// HandleEvent decodes one inbound frame and dispatches it.
func (d *Dispatcher) HandleEvent(connID string, frame []byte) {
	var event InboundEvent
	if err := json.Unmarshal(frame, &event); err != nil {
		log.Warn().Err(err).Str("connection_id", connID).Msg("dropping unparseable frame")
		return
	}

	handler, ok := d.handlers[event.Event]
	if !ok {
		log.Debug().Str("connection_id", connID).Str("event", event.Event).Msg("dropping unknown event")
		return
	}

	handler(connID, event.Data)
}

// HandleDisconnect cleans up after a closed connection. The departure is only
// announced when the closing connection is still the participant's active one;
// a reconnect that already superseded it must not produce a second leave.
func (d *Dispatcher) HandleDisconnect(connID string) {
	route, ok := d.registry.Lookup(connID)
	if !ok {
		return
	}
	d.registry.Unregister(connID)

	result, ok := d.rooms.LeaveIfActive(route.RoomID, route.ParticipantID, connID)
	if !ok {
		log.Debug().
			Str("connection_id", connID).
			Str("participant_id", route.ParticipantID).
			Msg("disconnect of superseded connection, keeping participant")
		return
	}

	d.finishDeparture(route.RoomID, route.ParticipantID, result)
}

func (d *Dispatcher) handleJoinLobby(connID string, data json.RawMessage) {
	var payload JoinLobbyPayload
	if !d.decode(connID, EventJoinLobby, data, &payload, payload.validate) {
		return
	}

	displayName := payload.DisplayName
	if displayName == "" {
		displayName = d.lookupDisplayName(payload.ParticipantID)
	}

	// A connection already routed elsewhere is switching rooms; its old
	// membership must not linger as a ghost, so run the full leave flow
	// for the prior room first.
	if prior, ok := d.registry.Lookup(connID); ok &&
		(prior.RoomID != payload.RoomID || prior.ParticipantID != payload.ParticipantID) {
		if result, left := d.rooms.LeaveIfActive(prior.RoomID, prior.ParticipantID, connID); left {
			d.finishDeparture(prior.RoomID, prior.ParticipantID, result)
		}
	}

	result := d.rooms.Join(payload.RoomID, payload.ParticipantID, connID, displayName)
	d.registry.Register(connID, payload.RoomID, payload.ParticipantID)
	d.transport.JoinRoom(connID, payload.RoomID)

	if !result.WasAlreadyPresent {
		d.broadcast(payload.RoomID, EventPlayerJoined, PlayerPresencePayload{
			UserID:      payload.ParticipantID,
			DisplayName: displayName,
		}, connID)
	}

	d.sendSnapshot(connID, payload.RoomID)
}

// sendSnapshot unicasts the room state to a joining connection, plus the
// current countdown when a round is already in progress.
func (d *Dispatcher) sendSnapshot(connID, roomID string) {
	players := d.rooms.Snapshot(roomID)

	snapshot := LobbyStatePayload{
		RoomID:    roomID,
		Players:   players,
		PainterID: d.rooms.Painter(roomID),
	}
	for _, p := range players {
		if p.Owner {
			snapshot.OwnerID = p.ParticipantID
			break
		}
	}
	d.unicast(connID, EventLobbyState, snapshot)

	if remaining, ok := d.rounds.Remaining(roomID); ok {
		d.unicast(connID, EventTimerUpdate, TimerUpdatePayload{RemainingSeconds: remaining})
		if current, total, ok := d.rounds.Round(roomID); ok {
			d.unicast(connID, EventGameUpdate, GameUpdatePayload{CurrentRound: current, TotalRounds: total})
		}
	}
}

func (d *Dispatcher) handleLeaveLobby(connID string, data json.RawMessage) {
	var payload LeaveLobbyPayload
	if !d.decode(connID, EventLeaveLobby, data, &payload, payload.validate) {
		return
	}

	route, ok := d.route(connID, EventLeaveLobby)
	if !ok || route.RoomID != payload.RoomID || route.ParticipantID != payload.ParticipantID {
		return
	}

	d.registry.Unregister(connID)
	d.transport.LeaveRoom(connID)

	result, ok := d.rooms.Leave(route.RoomID, route.ParticipantID)
	if !ok {
		return
	}

	d.finishDeparture(route.RoomID, route.ParticipantID, result)
}

// finishDeparture runs the shared tail of explicit leaves and disconnects:
// handoff cleanup, timer cancellation for emptied rooms, and the departure
// and owner-change broadcasts.
func (d *Dispatcher) finishDeparture(roomID, participantID string, result store.LeaveResult) {
	d.handoff.Cancel(participantID)

	if result.RoomEmpty {
		d.rounds.Cancel(roomID)
		return
	}

	d.broadcast(roomID, EventPlayerLeft, PlayerPresencePayload{
		UserID:      participantID,
		DisplayName: result.DisplayName,
	}, "")

	if result.NewOwnerID != "" {
		d.broadcast(roomID, EventLobbyOwnerChanged, OwnerChangedPayload{UserID: result.NewOwnerID}, "")
	}
}

// handleChatMessage relays chat to the whole room, sender included. The text
// is forwarded verbatim; guess matching against the secret word is a
// higher-layer concern.
func (d *Dispatcher) handleChatMessage(connID string, data json.RawMessage) {
	var payload ChatMessagePayload
	if !d.decode(connID, EventChatMessage, data, &payload, payload.validate) {
		return
	}

	route, ok := d.route(connID, EventChatMessage)
	if !ok || route.RoomID != payload.RoomID {
		return
	}

	now := time.Now().UTC()
	payload.UserID = route.ParticipantID
	payload.Timestamp = &now

	d.broadcast(route.RoomID, EventChatMessage, payload, "")
}

func (d *Dispatcher) handleStartTimer(connID string, data json.RawMessage) {
	var payload StartTimerPayload
	if !d.decode(connID, EventStartTimer, data, &payload, payload.validate) {
		return
	}

	route, ok := d.route(connID, EventStartTimer)
	if !ok || route.RoomID != payload.RoomID {
		return
	}

	duration, totalRounds := d.resolveGameSettings(route.RoomID, payload.DrawDurationSeconds)

	if d.rounds.Start(route.RoomID, duration, totalRounds) {
		d.broadcast(route.RoomID, EventGameUpdate, GameUpdatePayload{CurrentRound: 1, TotalRounds: totalRounds}, "")
	}
}

// resolveGameSettings determines the countdown parameters for a room. Total
// rounds always comes from the room's configuration (or the relay default),
// never from a hardcoded constant.
func (d *Dispatcher) resolveGameSettings(roomID string, requestedDuration int) (duration, totalRounds int) {
	duration = requestedDuration
	if d.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), settingsLookupTimeout)
		defer cancel()

		settings, err := d.provider.GetRoomSettings(ctx, roomID)
		if err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("room settings lookup failed, using defaults")
		} else {
			totalRounds = settings.TotalRounds
			if duration <= 0 {
				duration = settings.DrawDurationSeconds
			}
		}
	}

	if duration <= 0 {
		duration = d.defaults.DrawDurationSeconds
	}
	if totalRounds <= 0 {
		totalRounds = d.defaults.TotalRounds
	}
	return duration, totalRounds
}

func (d *Dispatcher) handleDrawLineBatch(connID string, data json.RawMessage) {
	var payload DrawLineBatchPayload
	if !d.decode(connID, EventDrawLineBatch, data, &payload, payload.validate) {
		return
	}

	route, ok := d.route(connID, EventDrawLineBatch)
	if !ok {
		return
	}

	payload.UserID = route.ParticipantID
	d.rooms.SetPainter(route.RoomID, route.ParticipantID)
	d.broadcast(route.RoomID, EventDrawLineBatch, payload, connID)
}

func (d *Dispatcher) handleDrawEnd(connID string, _ json.RawMessage) {
	route, ok := d.route(connID, EventDrawEnd)
	if !ok {
		return
	}

	d.broadcast(route.RoomID, EventDrawEnd, SenderStamp{UserID: route.ParticipantID}, connID)
}

func (d *Dispatcher) handleClear(connID string, _ json.RawMessage) {
	route, ok := d.route(connID, EventClear)
	if !ok {
		return
	}

	d.broadcast(route.RoomID, EventClear, SenderStamp{UserID: route.ParticipantID}, connID)
}

func (d *Dispatcher) handleFillArea(connID string, data json.RawMessage) {
	var payload FillAreaPayload
	if !d.decode(connID, EventFillArea, data, &payload, payload.validate) {
		return
	}

	route, ok := d.route(connID, EventFillArea)
	if !ok {
		return
	}

	payload.UserID = route.ParticipantID
	d.rooms.SetPainter(route.RoomID, route.ParticipantID)
	d.broadcast(route.RoomID, EventFillArea, payload, connID)
}

// handleRequestInitialState starts a canvas handoff for a participant that
// joined mid-round. With nobody else in the room there is nobody to ask, and
// the request is dropped.
func (d *Dispatcher) handleRequestInitialState(connID string, _ json.RawMessage) {
	route, ok := d.route(connID, EventRequestInitialState)
	if !ok {
		return
	}

	if d.rooms.Size(route.RoomID) <= 1 {
		log.Debug().Str("room_id", route.RoomID).Msg("canvas request with no peers, skipping")
		return
	}

	d.handoff.Add(route.ParticipantID, connID)
	d.broadcast(route.RoomID, EventGetCanvasState, CanvasRequestPayload{RequesterID: route.ParticipantID}, connID)
}

// handleSendCanvasState delivers a peer's canvas to a pending requester.
// Responses that arrive after the request resolved or expired find no pending
// entry and are silently ignored.
func (d *Dispatcher) handleSendCanvasState(connID string, data json.RawMessage) {
	var payload SendCanvasStatePayload
	if !d.decode(connID, EventSendCanvasState, data, &payload, payload.validate) {
		return
	}

	if _, ok := d.route(connID, EventSendCanvasState); !ok {
		return
	}

	requesterConn, ok := d.handoff.Resolve(payload.TargetParticipantID)
	if !ok {
		log.Debug().
			Str("target_participant_id", payload.TargetParticipantID).
			Msg("canvas response without pending request, dropping")
		return
	}

	d.unicast(requesterConn, EventLoadCanvasState, CanvasStatePayload{DataURL: payload.DataURL})
}

func (d *Dispatcher) handleSyncRequest(connID string, data json.RawMessage) {
	var payload SyncRequestPayload
	if !d.decode(connID, EventSyncRequest, data, &payload, payload.validate) {
		return
	}

	route, ok := d.route(connID, EventSyncRequest)
	if !ok {
		return
	}

	payload.UserID = route.ParticipantID
	d.broadcast(route.RoomID, EventSyncCanvas, payload, connID)
}

// RoundTick implements rounds.Events.
func (d *Dispatcher) RoundTick(roomID string, remainingSec int) {
	d.broadcast(roomID, EventTimerUpdate, TimerUpdatePayload{RemainingSeconds: remainingSec}, "")
}

// RoundAdvanced implements rounds.Events.
func (d *Dispatcher) RoundAdvanced(roomID string, currentRound, totalRounds int) {
	d.broadcast(roomID, EventRoundEnded, RoundEndedPayload{Round: currentRound - 1}, "")
	d.broadcast(roomID, EventGameUpdate, GameUpdatePayload{CurrentRound: currentRound, TotalRounds: totalRounds}, "")
}

// GameEnded implements rounds.Events.
func (d *Dispatcher) GameEnded(roomID string) {
	d.broadcast(roomID, EventGameEnded, nil, "")
}

// decode unmarshals and validates a payload, logging and reporting false on
// any malformed input.
func (d *Dispatcher) decode(connID, event string, data json.RawMessage, payload any, validate func() error) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		log.Warn().Err(err).Str("connection_id", connID).Str("event", event).Msg("dropping malformed payload")
		return false
	}
	if err := validate(); err != nil {
		log.Warn().Err(err).Str("connection_id", connID).Str("event", event).Msg("dropping invalid payload")
		return false
	}
	return true
}

// route resolves the sending connection, dropping events from connections
// that never joined or already disconnected.
func (d *Dispatcher) route(connID, event string) (store.Route, bool) {
	route, ok := d.registry.Lookup(connID)
	if !ok {
		log.Debug().Str("connection_id", connID).Str("event", event).Msg("dropping event from unknown connection")
	}
	return route, ok
}

func (d *Dispatcher) broadcast(roomID, event string, payload any, excludeConnID string) {
	out, err := NewOutboundEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to build outbound event")
		return
	}
	d.transport.BroadcastToRoom(roomID, out, excludeConnID)
}

func (d *Dispatcher) unicast(connID, event string, payload any) {
	out, err := NewOutboundEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to build outbound event")
		return
	}
	d.transport.SendToConnection(connID, out)
}

func (d *Dispatcher) lookupDisplayName(participantID string) string {
	if d.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), settingsLookupTimeout)
		defer cancel()

		profile, err := d.provider.GetUserProfile(ctx, participantID)
		if err == nil && profile.Username != "" {
			return profile.Username
		}
		if err != nil {
			log.Debug().Err(err).Str("participant_id", participantID).Msg("profile lookup failed")
		}
	}
	return participantID
}
