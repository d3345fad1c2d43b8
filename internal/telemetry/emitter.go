// Package telemetry defines the structured event contract consumed by the
// external observability collaborator.
package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// Event is one structured observation, emitted once per detection call and
// once per feedback call.
type Event struct {
	Kind       string    `json:"kind"` // "detect" or "feedback"
	TraceID    string    `json:"trace_id"`
	Mode       string    `json:"mode,omitempty"`
	Domain     string    `json:"domain,omitempty"`
	TemplateID string    `json:"template_id,omitempty"`
	Confidence float64   `json:"confidence"`
	Round      int       `json:"round"`
	Reason     string    `json:"reason,omitempty"`
	Clarify    bool      `json:"clarify"`
	Success    *bool     `json:"success,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Emitter receives events. The observability side owns everything past this
// boundary.
type Emitter interface {
	Emit(Event)
}

// ZapEmitter logs events through a zap logger.
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter wraps a zap logger as an Emitter.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	return &ZapEmitter{logger: logger}
}

// Emit logs the event with typed fields.
func (z *ZapEmitter) Emit(e Event) {
	fields := []zap.Field{
		zap.String("trace_id", e.TraceID),
		zap.String("mode", e.Mode),
		zap.String("domain", e.Domain),
		zap.Float64("confidence", e.Confidence),
		zap.Int("round", e.Round),
		zap.String("reason", e.Reason),
		zap.Bool("clarify", e.Clarify),
	}
	if e.TemplateID != "" {
		fields = append(fields, zap.String("template_id", e.TemplateID))
	}
	if e.Success != nil {
		fields = append(fields, zap.Bool("success", *e.Success))
	}
	z.logger.Info("clarify."+e.Kind, fields...)
}

// NopEmitter discards events.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) {}
