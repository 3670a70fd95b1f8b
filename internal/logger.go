package internal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Importance string

const (
	Debug   Importance = "."
	Info    Importance = " "
	Warning Importance = "?"
	Error   Importance = "!"
	Raw     Importance = "-"
)

type Logger struct {
	log       *logrus.Logger
	database  Database
	location  *time.Location
	debugMode bool
	mutex     sync.RWMutex
	stationId string
	session   string
	writer    chan *LogEvent
	done      chan struct{}
	closeOnce sync.Once
}

type LogEvent struct {
	Importance Importance
	Message    *FeatureLogMessage
}

func NewLogger(location *time.Location) *Logger {
	if location == nil {
		location = time.UTC
	}
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger := &Logger{
		log:      log,
		location: location,
		writer:   make(chan *LogEvent, 100),
		done:     make(chan struct{}),
	}
	go logger.startWriter()
	return logger
}

func (l *Logger) startWriter() {
	defer close(l.done)
	for event := range l.writer {
		message := event.Message
		l.logLine(event.Importance, message)

		if l.database != nil && event.Importance != Raw && event.Importance != Debug {
			if err := l.database.WriteLogMessage(message); err != nil {
				l.log.WithError(err).Error("write log to database failed")
			}
		}
	}
}

// Close drains the queued records and stops the writer
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.writer)
	})
	<-l.done
}

func (l *Logger) SetDebugMode(debugMode bool) {
	l.debugMode = debugMode
	if debugMode && l.log.GetLevel() < logrus.DebugLevel {
		l.log.SetLevel(logrus.DebugLevel)
	}
}

func (l *Logger) SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.log.SetLevel(parsed)
	return nil
}

func (l *Logger) SetOutput(out io.Writer) {
	l.log.SetOutput(out)
}

func (l *Logger) SetDatabase(database Database) {
	l.database = database
}

// SetStation sets the default station id and the connection session attached to records
func (l *Logger) SetStation(stationId, session string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.stationId = stationId
	l.session = session
}

func logTime(t time.Time) string {
	timeString := fmt.Sprintf("%d-%02d-%02d %02d:%02d:%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	return timeString
}

func (l *Logger) FeatureEvent(feature, id, text string) {
	l.logEvent(Info, l.newFeatureLogMessage(feature, id, text))
}

func (l *Logger) logEvent(importance Importance, message *FeatureLogMessage) {
	l.mutex.RLock()
	if message.StationId == "" {
		message.StationId = l.stationId
	}
	message.Session = l.session
	l.mutex.RUnlock()
	if message.StationId == "" {
		message.StationId = "*"
	}
	message.Importance = string(importance)
	event := &LogEvent{
		Importance: importance,
		Message:    message,
	}
	defer func() {
		// writer already closed
		_ = recover()
	}()
	l.writer <- event
}

func (l *Logger) Debug(text string) {
	l.logEvent(Debug, l.newFeatureLogMessage("debug", "", text))
}

func (l *Logger) Warn(text string) {
	l.logEvent(Warning, l.newFeatureLogMessage("warning", "", text))
}

func (l *Logger) Error(text string, err error) {
	l.logEvent(Error, l.newFeatureLogMessage("error", "", fmt.Sprintf("%s: %s", text, err)))
}

func (l *Logger) RawDataEvent(direction, data string) {
	if l.debugMode {
		l.logEvent(Raw, l.newFeatureLogMessage("raw", "", fmt.Sprintf("%s: %s", direction, data)))
	}
}

func (l *Logger) logLine(importance Importance, message *FeatureLogMessage) {
	entry := l.log.WithFields(logrus.Fields{
		"client":  message.StationId,
		"feature": message.Feature,
	})
	switch importance {
	case Debug, Raw:
		entry.Debug(message.Text)
	case Warning:
		entry.Warn(message.Text)
	case Error:
		entry.Error(message.Text)
	default:
		entry.Info(message.Text)
	}
}

func (l *Logger) newFeatureLogMessage(feature, id, text string) *FeatureLogMessage {
	now := time.Now()
	return &FeatureLogMessage{
		Time:      logTime(now.In(l.location)),
		TimeStamp: now.UTC(),
		Text:      text,
		Feature:   feature,
		StationId: id,
	}
}
