package messaging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// watermillLogger adapts logrus to watermill's logger interface
type watermillLogger struct {
	entry *logrus.Entry
}

// NewWatermillLogger returns a watermill logger writing through logrus
func NewWatermillLogger(logger *logrus.Logger) watermill.LoggerAdapter {
	return &watermillLogger{entry: logrus.NewEntry(logger).WithField("component", "watermill")}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
