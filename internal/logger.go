package internal

import (
	"fmt"
	"sync"
	"time"

	"evcs/models"

	"go.uber.org/zap"
)

type Importance string

const (
	Info    Importance = " "
	Warning Importance = "?"
	Error   Importance = "!"
	Raw     Importance = "-"
)

const writerBuffer = 1024

type Logger struct {
	database  Database
	location  *time.Location
	debugMode bool
	zap       *zap.Logger
	writer    chan *FeatureLogMessage
	done      chan struct{}
	mutex     sync.RWMutex
	closed    bool
}

func NewLogger(zapLogger *zap.Logger, location *time.Location) *Logger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	logger := &Logger{
		location: location,
		zap:      zapLogger,
		writer:   make(chan *FeatureLogMessage, writerBuffer),
		done:     make(chan struct{}),
	}
	go logger.startWriter()
	return logger
}

func (l *Logger) startWriter() {
	defer close(l.done)
	for message := range l.writer {
		if message.Record != nil {
			l.persist(message.Record)
			continue
		}
		l.logLine(message)
	}
}

func (l *Logger) persist(record *models.MessageLog) {
	if l.database == nil {
		return
	}
	if err := l.database.AppendMessageLog(record); err != nil {
		l.zap.Error("write message log to database failed",
			zap.String("charge_point_id", record.ChargePointId),
			zap.String("action", record.Action),
			zap.Error(err))
	}
}

func (l *Logger) logLine(message *FeatureLogMessage) {
	fields := []zap.Field{
		zap.String("feature", message.Feature),
		zap.String("charge_point_id", message.ChargePointId),
		zap.String("time", message.Time.In(l.location).Format("2006-01-02 15:04:05")),
	}
	switch message.Importance {
	case Error:
		if message.Err != nil {
			fields = append(fields, zap.Error(message.Err))
		}
		l.zap.Error(message.Text, fields...)
	case Warning:
		l.zap.Warn(message.Text, fields...)
	case Raw:
		l.zap.Debug(message.Text, fields...)
	default:
		l.zap.Info(message.Text, fields...)
	}
}

func (l *Logger) SetDebugMode(debugMode bool) {
	l.debugMode = debugMode
}

func (l *Logger) SetDatabase(database Database) {
	l.database = database
}

// Close stops accepting events and waits until the queued ones are written
func (l *Logger) Close() {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.closed = true
	close(l.writer)
	l.mutex.Unlock()
	<-l.done
	_ = l.zap.Sync()
}

func (l *Logger) logEvent(message *FeatureLogMessage) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.closed {
		return
	}
	l.writer <- message
}

func (l *Logger) newFeatureLogMessage(importance Importance, feature, id, text string) *FeatureLogMessage {
	if id == "" {
		id = "*"
	}
	return &FeatureLogMessage{
		Time:          time.Now(),
		Feature:       feature,
		ChargePointId: id,
		Text:          text,
		Importance:    importance,
	}
}

func (l *Logger) FeatureEvent(feature, id, text string) {
	l.logEvent(l.newFeatureLogMessage(Info, feature, id, text))
}

func (l *Logger) Debug(text string) {
	l.logEvent(l.newFeatureLogMessage(Info, "info", "", text))
}

func (l *Logger) Warn(text string) {
	l.logEvent(l.newFeatureLogMessage(Warning, "warning", "", text))
}

func (l *Logger) Error(text string, err error) {
	message := l.newFeatureLogMessage(Error, "error", "", text)
	message.Err = err
	l.logEvent(message)
}

func (l *Logger) RawDataEvent(direction, data string) {
	if l.debugMode {
		l.logEvent(l.newFeatureLogMessage(Raw, "raw", "", fmt.Sprintf("%s: %s", direction, data)))
	}
}

// MessageEvent queues a message log entry for asynchronous persistence
func (l *Logger) MessageEvent(entry *models.MessageLog) {
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	message := l.newFeatureLogMessage(Info, entry.Action, entry.ChargePointId, entry.MessageType)
	message.Record = entry
	l.logEvent(message)
}
