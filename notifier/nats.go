package notifier

import (
	"encoding/json"
	"evsim/internal"
	"evsim/internal/config"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of a NATS connection the notifier needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

type notification struct {
	subject string
	event   *internal.EventMessage
}

// Notifier implements internal.EventHandler and publishes every event as JSON on
// <prefix>.<station id>.<event type>. Events are queued; when the queue is full they are dropped.
type Notifier struct {
	publisher Publisher
	prefix    string
	logger    internal.LogHandler
	queue     chan notification
	done      chan struct{}
	mutex     sync.RWMutex
	closed    bool
	onClose   func()
}

func NewNotifier(publisher Publisher, prefix string, logger internal.LogHandler) *Notifier {
	n := &Notifier{
		publisher: publisher,
		prefix:    prefix,
		logger:    logger,
		queue:     make(chan notification, 256),
		done:      make(chan struct{}),
	}
	go n.publishPump()
	return n
}

// Connect opens the NATS connection from the configuration; nil when NATS is disabled
func Connect(conf *config.Config, logger internal.LogHandler) (*Notifier, error) {
	if !conf.Nats.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(conf.Nats.Url,
		nats.Name("evsim "+conf.Station.Id),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(fmt.Sprintf("nats: disconnected: %v", err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", conf.Nats.Url, err)
	}
	n := NewNotifier(conn, conf.Nats.Subject, logger)
	n.onClose = func() {
		if err := conn.Drain(); err != nil {
			logger.Warn(fmt.Sprintf("nats: drain: %v", err))
		}
	}
	return n, nil
}

func (n *Notifier) publishPump() {
	defer close(n.done)
	for item := range n.queue {
		data, err := json.Marshal(item.event)
		if err != nil {
			n.logger.Error("nats: encode event", err)
			continue
		}
		if err = n.publisher.Publish(item.subject, data); err != nil {
			n.logger.Error("nats: publish "+item.subject, err)
		}
	}
}

func (n *Notifier) Subject(event *internal.EventMessage) string {
	return fmt.Sprintf("%s.%s.%s", n.prefix, event.StationId, event.Type)
}

func (n *Notifier) enqueue(event *internal.EventMessage) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	if n.closed {
		return
	}
	copied := *event
	select {
	case n.queue <- notification{subject: n.Subject(event), event: &copied}:
	default:
		n.logger.Debug("nats: queue full, event dropped")
	}
}

// Close publishes what is queued and releases the connection
func (n *Notifier) Close() {
	n.mutex.Lock()
	if n.closed {
		n.mutex.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mutex.Unlock()
	<-n.done
	if n.onClose != nil {
		n.onClose()
	}
}

func (n *Notifier) OnFrame(event *internal.EventMessage)      { n.enqueue(event) }
func (n *Notifier) OnConnection(event *internal.EventMessage) { n.enqueue(event) }
func (n *Notifier) OnStatus(event *internal.EventMessage)     { n.enqueue(event) }
func (n *Notifier) OnPlug(event *internal.EventMessage)       { n.enqueue(event) }
func (n *Notifier) OnSample(event *internal.EventMessage)     { n.enqueue(event) }
func (n *Notifier) OnAlert(event *internal.EventMessage)      { n.enqueue(event) }
