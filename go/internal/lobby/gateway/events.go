package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/sketchrelay/go/internal/lobby/store"
)

// Inbound event names.
const (
	EventJoinLobby           = "joinLobby"
	EventLeaveLobby          = "leaveLobby"
	EventChatMessage         = "chatMessage"
	EventStartTimer          = "startTimer"
	EventDrawLineBatch       = "draw-line-batch"
	EventDrawEnd             = "draw-end"
	EventClear               = "clear"
	EventFillArea            = "fill-area"
	EventRequestInitialState = "request-initial-state"
	EventSendCanvasState     = "send-canvas-state"
	EventSyncRequest         = "sync-request"
)

// Outbound event names.
const (
	EventPlayerJoined      = "playerJoined"
	EventPlayerLeft        = "playerLeft"
	EventLobbyState        = "lobbyState"
	EventLobbyOwnerChanged = "lobbyOwnerChanged"
	EventTimerUpdate       = "timerUpdate"
	EventGameUpdate        = "gameUpdate"
	EventRoundEnded        = "roundEnded"
	EventGameEnded         = "gameEnded"
	EventGetCanvasState    = "get-canvas-state"
	EventLoadCanvasState   = "load-canvas-state"
	EventSyncCanvas        = "sync-canvas"
)

const dataURLPrefix = "data:image/"

var errMissingField = errors.New("missing required field")

// InboundEvent is the envelope every client frame arrives in.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent is the envelope for every frame the relay sends.
type OutboundEvent struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewOutboundEvent wraps a payload in an outbound envelope with a fresh event
// ID and server timestamp.
func NewOutboundEvent(event string, payload any) (*OutboundEvent, error) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = encoded
	}

	return &OutboundEvent{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// JoinLobbyPayload carries a join request. DisplayName is optional; the relay
// falls back to the account profile or the participant ID.
type JoinLobbyPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

func (p *JoinLobbyPayload) validate() error {
	if p.RoomID == "" || p.ParticipantID == "" {
		return errMissingField
	}
	return nil
}

// LeaveLobbyPayload carries an explicit leave request.
type LeaveLobbyPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

func (p *LeaveLobbyPayload) validate() error {
	if p.RoomID == "" || p.ParticipantID == "" {
		return errMissingField
	}
	return nil
}

// ChatMessagePayload is relayed to the whole room, sender included. The relay
// stamps UserID and Timestamp and otherwise forwards the text verbatim.
type ChatMessagePayload struct {
	RoomID      string     `json:"roomId"`
	Text        string     `json:"text"`
	DisplayName string     `json:"displayName,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

func (p *ChatMessagePayload) validate() error {
	if p.RoomID == "" || p.Text == "" {
		return errMissingField
	}
	return nil
}

// StartTimerPayload requests a round countdown for a room. DrawDurationSeconds
// falls back to the room's configured duration when absent.
type StartTimerPayload struct {
	RoomID              string `json:"roomId"`
	DrawDurationSeconds int    `json:"drawDurationSeconds"`
}

func (p *StartTimerPayload) validate() error {
	if p.RoomID == "" {
		return errMissingField
	}
	return nil
}

// DrawLineBatchPayload is a batch of stroke points. Point contents are opaque
// to the relay and forwarded untouched.
type DrawLineBatchPayload struct {
	Points    []json.RawMessage `json:"points"`
	Color     *string           `json:"color"`
	BrushSize *float64          `json:"brushSize"`
	UserID    string            `json:"userId,omitempty"`
}

func (p *DrawLineBatchPayload) validate() error {
	if len(p.Points) == 0 || p.Color == nil || p.BrushSize == nil {
		return errMissingField
	}
	return nil
}

// FillAreaPayload is a flood-fill request; coordinates and color are opaque to
// the relay beyond their types.
type FillAreaPayload struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Color  *string  `json:"color"`
	UserID string   `json:"userId,omitempty"`
}

func (p *FillAreaPayload) validate() error {
	if p.X == nil || p.Y == nil || p.Color == nil {
		return errMissingField
	}
	return nil
}

// SendCanvasStatePayload answers a canvas handoff request with the current
// drawing surface encoded as a data URL.
type SendCanvasStatePayload struct {
	TargetParticipantID string `json:"targetParticipantId"`
	DataURL             string `json:"dataUrl"`
}

func (p *SendCanvasStatePayload) validate() error {
	if p.TargetParticipantID == "" || !strings.HasPrefix(p.DataURL, dataURLPrefix) {
		return errMissingField
	}
	return nil
}

// SyncRequestPayload pushes a full canvas image to the rest of the room.
type SyncRequestPayload struct {
	DataURL string `json:"dataUrl"`
	UserID  string `json:"userId,omitempty"`
}

func (p *SyncRequestPayload) validate() error {
	if !strings.HasPrefix(p.DataURL, dataURLPrefix) {
		return errMissingField
	}
	return nil
}

// SenderStamp is the payload for relayed events that have no body of their
// own, such as clear and draw-end.
type SenderStamp struct {
	UserID string `json:"userId"`
}

// LobbyStatePayload is the full room snapshot unicast to a joining connection.
type LobbyStatePayload struct {
	RoomID    string              `json:"roomId"`
	Players   []store.Participant `json:"players"`
	OwnerID   string              `json:"ownerId,omitempty"`
	PainterID string              `json:"painterId,omitempty"`
}

// PlayerPresencePayload announces a join or departure.
type PlayerPresencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"username"`
}

// OwnerChangedPayload announces a reassigned room owner.
type OwnerChangedPayload struct {
	UserID string `json:"userId"`
}

// TimerUpdatePayload carries the remaining seconds of the current round.
type TimerUpdatePayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

// GameUpdatePayload carries round progress.
type GameUpdatePayload struct {
	CurrentRound int `json:"currentRound"`
	TotalRounds  int `json:"totalRounds"`
}

// RoundEndedPayload names the round that just finished.
type RoundEndedPayload struct {
	Round int `json:"round"`
}

// CanvasRequestPayload asks the room's peers for their canvas on behalf of a
// late joiner.
type CanvasRequestPayload struct {
	RequesterID string `json:"requesterId"`
}

// CanvasStatePayload delivers a peer's canvas to the requester.
type CanvasStatePayload struct {
	DataURL string `json:"dataUrl"`
}
