package transport

import (
	"encoding/json"
	"errors"
	"evsim/internal"
	"evsim/ocpp"
	"fmt"
	"sort"
	"strconv"
	"time"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrReentrant    = errors.New("frame handler called back into the transport")
)

// Sender writes one text frame to the connection
type Sender interface {
	Send(data []byte) error
}

// CallHandler processes an inbound call and must answer it with SendResult or SendError
type CallHandler func(uniqueId string, payload json.RawMessage) error

// ResultHandler processes the payload of the result to an outbound call
type ResultHandler func(payload json.RawMessage) error

// ErrorHandler processes a CALLERROR received for an outbound call
type ErrorHandler func(code ErrorCode, description string) error

type PendingCall struct {
	UniqueId string    `json:"unique_id"`
	Action   string    `json:"action"`
	Sent     time.Time `json:"sent"`
}

// Transport owns OCPP-J framing and correlation; it is not safe for concurrent use and is
// driven from the station loop
type Transport struct {
	sender  Sender
	logger  internal.LogHandler
	events  internal.EventHandler
	lastId  uint64
	pending map[string]*PendingCall
	calls   map[string]CallHandler
	results map[string]ResultHandler
	errors  map[string]ErrorHandler
	inFrame bool
	now     func() time.Time
}

func NewTransport(logger internal.LogHandler) *Transport {
	return &Transport{
		logger:  logger,
		pending: make(map[string]*PendingCall),
		calls:   make(map[string]CallHandler),
		results: make(map[string]ResultHandler),
		errors:  make(map[string]ErrorHandler),
		now:     time.Now,
	}
}

func (t *Transport) SetEventHandler(events internal.EventHandler) {
	t.events = events
}

// SetSender attaches a live connection; nil detaches it
func (t *Transport) SetSender(sender Sender) {
	t.sender = sender
}

func (t *Transport) Connected() bool {
	return t.sender != nil
}

func (t *Transport) HandleCall(action string, handler CallHandler) {
	t.calls[action] = handler
}

func (t *Transport) HandleResult(action string, handler ResultHandler) {
	t.results[action] = handler
}

func (t *Transport) HandleError(action string, handler ErrorHandler) {
	t.errors[action] = handler
}

// SendCall frames and sends a request, returning its correlation id
func (t *Transport) SendCall(request ocpp.Request) (string, error) {
	if t.sender == nil {
		return "", ErrNotConnected
	}
	t.lastId++
	uniqueId := strconv.FormatUint(t.lastId, 10)
	action := request.GetFeatureName()
	call := &Call{
		TypeId:   CallTypeRequest,
		UniqueId: uniqueId,
		Action:   action,
		Payload:  request,
	}
	data, err := json.Marshal(call)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", action, err)
	}
	t.pending[uniqueId] = &PendingCall{UniqueId: uniqueId, Action: action, Sent: t.now()}
	if err = t.send(data); err != nil {
		delete(t.pending, uniqueId)
		return "", err
	}
	t.logger.FeatureEvent(action, "", fmt.Sprintf("call %s sent", uniqueId))
	return uniqueId, nil
}

// SendResult answers an inbound call; pending calls are not touched
func (t *Transport) SendResult(uniqueId string, response ocpp.Response) error {
	if t.sender == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(&CallResult{
		TypeId:   CallTypeResult,
		UniqueId: uniqueId,
		Payload:  response,
	})
	if err != nil {
		return err
	}
	return t.send(data)
}

func (t *Transport) SendError(uniqueId string, code ErrorCode, description string) error {
	if t.sender == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(&CallError{
		TypeId:           CallTypeError,
		UniqueId:         uniqueId,
		ErrorCode:        code,
		ErrorDescription: description,
	})
	if err != nil {
		return err
	}
	return t.send(data)
}

func (t *Transport) send(data []byte) error {
	t.logger.RawDataEvent(internal.DirectionOut, string(data))
	if err := t.sender.Send(data); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	if t.events != nil {
		t.events.OnFrame(&internal.EventMessage{Direction: internal.DirectionOut, Info: string(data)})
	}
	return nil
}

// OnFrame processes one inbound frame. Malformed frames and results nobody waits for are
// dropped without error; errors returned by handlers are passed through.
func (t *Transport) OnFrame(data []byte) error {
	if t.inFrame {
		return ErrReentrant
	}
	t.inFrame = true
	defer func() { t.inFrame = false }()

	t.logger.RawDataEvent(internal.DirectionIn, string(data))
	if t.events != nil {
		t.events.OnFrame(&internal.EventMessage{Direction: internal.DirectionIn, Info: string(data)})
	}
	message, err := ParseMessage(data)
	if err != nil {
		t.logger.Warn(fmt.Sprintf("frame dropped: %v: %s", err, string(data)))
		return nil
	}
	switch message.TypeId {
	case CallTypeRequest:
		return t.dispatchCall(message)
	case CallTypeResult:
		return t.dispatchResult(message)
	default:
		return t.dispatchError(message)
	}
}

func (t *Transport) dispatchCall(message *Message) error {
	handler, ok := t.calls[message.Action]
	if !ok {
		t.logger.Warn(fmt.Sprintf("no handler for action %s", message.Action))
		return t.SendError(message.UniqueId, NotImplemented, fmt.Sprintf("action %s is not supported", message.Action))
	}
	return handler(message.UniqueId, message.Payload)
}

func (t *Transport) dispatchResult(message *Message) error {
	call, ok := t.pending[message.UniqueId]
	if !ok {
		return nil
	}
	delete(t.pending, message.UniqueId)
	handler, ok := t.results[call.Action]
	if !ok {
		return nil
	}
	return handler(message.Payload)
}

func (t *Transport) dispatchError(message *Message) error {
	call, ok := t.pending[message.UniqueId]
	if !ok {
		t.logger.Warn(fmt.Sprintf("error %s for unknown call %s: %s", message.ErrorCode, message.UniqueId, message.ErrorDescription))
		return nil
	}
	delete(t.pending, message.UniqueId)
	t.logger.Warn(fmt.Sprintf("%s call %s failed: %s %s", call.Action, call.UniqueId, message.ErrorCode, message.ErrorDescription))
	if handler, ok := t.errors[call.Action]; ok {
		return handler(message.ErrorCode, message.ErrorDescription)
	}
	return nil
}

// Reset drops every pending call; correlation ids keep increasing
func (t *Transport) Reset() {
	t.pending = make(map[string]*PendingCall)
}

// Pending lists the outstanding calls ordered by correlation id
func (t *Transport) Pending() []PendingCall {
	list := make([]PendingCall, 0, len(t.pending))
	for _, call := range t.pending {
		list = append(list, *call)
	}
	sort.Slice(list, func(i, j int) bool {
		a, _ := strconv.ParseUint(list[i].UniqueId, 10, 64)
		b, _ := strconv.ParseUint(list[j].UniqueId, 10, 64)
		return a < b
	})
	return list
}
