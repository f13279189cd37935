package rtmpsink

import (
	"context"
	"log/slog"
)

// LogSink is a Sink that does no network I/O and instead logs every call
// (Connect, Publish and Close at info level, each SendMessage at debug
// level), identical in shape to Recorder but used in production when no real RTMP client is configured (spec.md
// section 1 treats the RTMP wire client as an external collaborator this
// module does not implement). Grounded on the teacher's sip/logger.go
// DefaultLogger()/SetDefaultLogger() package-logger convention.
type LogSink struct {
	logger *slog.Logger
	url    string
	stream string
}

var defaultLogSinkLogger = slog.Default()

// SetDefaultLogger overrides the logger new LogSinks use when none is
// given explicitly, mirroring sip.SetDefaultLogger.
func SetDefaultLogger(l *slog.Logger) {
	defaultLogSinkLogger = l
}

// NewLogSink returns a Sink backed by the default package logger.
func NewLogSink() *LogSink {
	return &LogSink{logger: defaultLogSinkLogger}
}

func (s *LogSink) Connect(ctx context.Context, url string) error {
	s.url = url
	s.logger.Info("rtmpsink: connect", "url", url)
	return nil
}

func (s *LogSink) Publish(ctx context.Context, streamName string) error {
	s.stream = streamName
	s.logger.Info("rtmpsink: publish", "url", s.url, "stream", streamName)
	return nil
}

func (s *LogSink) SendMessage(ctx context.Context, msg Message) error {
	s.logger.Debug("rtmpsink: tag", "stream", s.stream, "type", msg.Type, "timestamp", msg.Timestamp, "bytes", len(msg.Payload))
	return nil
}

func (s *LogSink) Close() error {
	s.logger.Info("rtmpsink: close", "stream", s.stream)
	return nil
}
