package internal

import (
	"sync"
	"time"
)

const (
	EventFrame      = "frame"
	EventConnection = "connection"
	EventStatus     = "status"
	EventPlug       = "plug"
	EventSample     = "sample"
	EventAlert      = "alert"
)

const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// EventHandler receives the events the station exposes to its observers; handlers must not
// block and must not call back into the station
type EventHandler interface {
	OnFrame(event *EventMessage)
	OnConnection(event *EventMessage)
	OnStatus(event *EventMessage)
	OnPlug(event *EventMessage)
	OnSample(event *EventMessage)
	OnAlert(event *EventMessage)
}

type EventMessage struct {
	Type        string      `json:"type" bson:"type"`
	StationId   string      `json:"station_id" bson:"station_id"`
	Session     string      `json:"session,omitempty" bson:"session,omitempty"`
	ConnectorId int         `json:"connector_id" bson:"connector_id"`
	Time        time.Time   `json:"time" bson:"time"`
	Direction   string      `json:"direction,omitempty" bson:"direction,omitempty"`
	Status      string      `json:"status,omitempty" bson:"status,omitempty"`
	ErrorCode   string      `json:"error_code,omitempty" bson:"error_code,omitempty"`
	Connected   bool        `json:"connected" bson:"connected"`
	Plugged     bool        `json:"plugged" bson:"plugged"`
	Info        string      `json:"info,omitempty" bson:"info,omitempty"`
	Payload     interface{} `json:"payload,omitempty" bson:"payload,omitempty"`
}

// EventBus stamps events with the station identity and fans them out to every subscriber
type EventBus struct {
	mutex     sync.RWMutex
	handlers  []EventHandler
	stationId string
	session   string
}

func NewEventBus(stationId string) *EventBus {
	return &EventBus{stationId: stationId}
}

func (b *EventBus) Subscribe(handler EventHandler) {
	if handler == nil {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *EventBus) SetSession(session string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.session = session
}

func (b *EventBus) publish(event *EventMessage, deliver func(h EventHandler, e *EventMessage)) {
	b.mutex.RLock()
	handlers := b.handlers
	if event.StationId == "" {
		event.StationId = b.stationId
	}
	if event.Session == "" {
		event.Session = b.session
	}
	b.mutex.RUnlock()
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	for _, h := range handlers {
		deliver(h, event)
	}
}

func (b *EventBus) OnFrame(event *EventMessage) {
	event.Type = EventFrame
	b.publish(event, EventHandler.OnFrame)
}

func (b *EventBus) OnConnection(event *EventMessage) {
	event.Type = EventConnection
	b.publish(event, EventHandler.OnConnection)
}

func (b *EventBus) OnStatus(event *EventMessage) {
	event.Type = EventStatus
	b.publish(event, EventHandler.OnStatus)
}

func (b *EventBus) OnPlug(event *EventMessage) {
	event.Type = EventPlug
	b.publish(event, EventHandler.OnPlug)
}

func (b *EventBus) OnSample(event *EventMessage) {
	event.Type = EventSample
	b.publish(event, EventHandler.OnSample)
}

func (b *EventBus) OnAlert(event *EventMessage) {
	event.Type = EventAlert
	b.publish(event, EventHandler.OnAlert)
}
