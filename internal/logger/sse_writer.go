package logger

import (
	"encoding/json"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

const defaultTimeFormat = "15:04:05"

// SSEPublisher is the subset of sse.Server the writer needs.
type SSEPublisher interface {
	Publish(topic string, event *sse.Event)
}

// LogMessage is the JSON shape published to the "logs" SSE stream.
type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Bytes returns the JSON encoding of the message.
func (lm LogMessage) Bytes() ([]byte, error) {
	return json.Marshal(lm)
}

func defaultPartsOrder() []string {
	return []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.MessageFieldName,
	}
}

// SSEWriter publishes zerolog lines to an SSE stream so the log view can
// follow the server live.
type SSEWriter struct {
	SSE        SSEPublisher
	TimeFormat string
	PartsOrder []string
}

// NewSSEWriter returns an SSEWriter with defaults applied, then the options.
func NewSSEWriter(publisher SSEPublisher, options ...func(w *SSEWriter)) SSEWriter {
	w := SSEWriter{
		SSE:        publisher,
		TimeFormat: defaultTimeFormat,
		PartsOrder: defaultPartsOrder(),
	}
	for _, opt := range options {
		opt(&w)
	}
	return w
}

// Write implements io.Writer. Lines that are not zerolog JSON are passed
// through as plain messages. A nil SSE server makes the writer a no-op.
func (w SSEWriter) Write(p []byte) (int, error) {
	if w.SSE == nil {
		return len(p), nil
	}

	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		fields = map[string]any{zerolog.MessageFieldName: string(p)}
	}

	msg := LogMessage{}
	if v, ok := fields[zerolog.TimestampFieldName].(string); ok {
		msg.Time = v
	}
	if v, ok := fields[zerolog.LevelFieldName].(string); ok {
		msg.Level = v
	}
	if v, ok := fields[zerolog.MessageFieldName].(string); ok {
		msg.Message = v
	}

	data, err := msg.Bytes()
	if err != nil {
		return len(p), nil
	}

	w.SSE.Publish("logs", &sse.Event{Data: data})

	return len(p), nil
}
