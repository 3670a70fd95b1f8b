package notifier

import (
	"encoding/json"
	"errors"
	"evsim/internal"
	"evsim/internal/config"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) FeatureEvent(feature, id, text string) {}
func (testLogger) Debug(text string)                     {}
func (testLogger) Warn(text string)                      {}
func (testLogger) Error(text string, err error)          {}
func (testLogger) RawDataEvent(direction, data string)   {}

type published struct {
	subject string
	data    []byte
}

type recordingPublisher struct {
	mutex    sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.messages = append(p.messages, published{subject: subject, data: data})
	return p.err
}

func TestNotifier_PublishesEventsAsJson(t *testing.T) {
	publisher := &recordingPublisher{}
	n := NewNotifier(publisher, "evsim", testLogger{})

	bus := internal.NewEventBus("CP7")
	bus.Subscribe(n)
	bus.SetSession("s-1")
	bus.OnStatus(&internal.EventMessage{ConnectorId: 1, Status: "Charging", ErrorCode: "NoError"})
	bus.OnAlert(&internal.EventMessage{Info: "authorization failed: Blocked"})
	n.Close()

	require.Len(t, publisher.messages, 2)
	assert.Equal(t, "evsim.CP7.status", publisher.messages[0].subject)
	assert.Equal(t, "evsim.CP7.alert", publisher.messages[1].subject)

	var event internal.EventMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0].data, &event))
	assert.Equal(t, "status", event.Type)
	assert.Equal(t, "CP7", event.StationId)
	assert.Equal(t, "s-1", event.Session)
	assert.Equal(t, "Charging", event.Status)
	assert.False(t, event.Time.IsZero())
}

func TestNotifier_CloseIsIdempotentAndStopsPublishing(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("no responders")}
	n := NewNotifier(publisher, "evsim", testLogger{})
	n.OnPlug(&internal.EventMessage{StationId: "CP7", Type: internal.EventPlug, Plugged: true})
	n.Close()
	n.Close()
	n.OnPlug(&internal.EventMessage{StationId: "CP7", Type: internal.EventPlug})
	assert.Len(t, publisher.messages, 1)
}

func TestConnect_DisabledReturnsNil(t *testing.T) {
	n, err := Connect(&config.Config{}, testLogger{})
	assert.NoError(t, err)
	assert.Nil(t, n)
}
