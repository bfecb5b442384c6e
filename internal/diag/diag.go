// Package diag provides the engine's observability surface: a
// level-filtered diagnostic emitter layered over zap, and a set of
// Prometheus collectors (Metrics) for transfer, search, distributed, and
// peer-connection counts, which the engine's subsystems do not update.
package diag

import (
	"go.uber.org/zap"
)

// Level mirrors the public soulseek.DiagnosticLevel ordering so internal
// packages can filter without importing the root package (which would
// create an import cycle).
type Level int

// Diagnostic levels, increasing severity.
const (
	Debug Level = iota
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the payload behind a DiagnosticGenerated notification (spec §6
// Events).
type Event struct {
	Level  Level
	Source string
	Message string
}

// Sink receives diagnostic events that pass the minimum-level filter. The
// Client wires this to its event broadcaster.
type Sink func(Event)

// Emitter pairs a zap.Logger (always logged at its own severity,
// unfiltered) with a level-gated Sink used to surface DiagnosticGenerated
// events to the embedder.
type Emitter struct {
	log    *zap.Logger
	min    Level
	sink   Sink
	module string
}

// New builds an Emitter. log must not be nil; pass zap.NewNop() to disable
// logging. sink may be nil, in which case diagnostic events are dropped
// after being logged.
func New(log *zap.Logger, min Level, sink Sink) *Emitter {
	return &Emitter{log: log, min: min, sink: sink}
}

// With returns a derived Emitter whose zap.Logger carries the module field,
// matching the teacher's convention of per-module logger derivation
// (zap.String("module", name)).
func (e *Emitter) With(module string) *Emitter {
	return &Emitter{log: e.log.With(zap.String("module", module)), min: e.min, sink: e.sink, module: module}
}

func (e *Emitter) emit(level Level, msg string, fields ...zap.Field) {
	switch level {
	case Debug:
		e.log.Debug(msg, fields...)
	case Info:
		e.log.Info(msg, fields...)
	case Warning:
		e.log.Warn(msg, fields...)
	case Error:
		e.log.Error(msg, fields...)
	}
	if e.sink == nil || level < e.min {
		return
	}
	e.sink(Event{Level: level, Source: e.module, Message: msg})
}

// Debugf, Infof, Warnf, and Errorf emit at their corresponding level. The
// fields are forwarded verbatim to zap; the event's Source is the module
// name set by With.
func (e *Emitter) Debugf(msg string, fields ...zap.Field) { e.emit(Debug, msg, fields...) }
func (e *Emitter) Infof(msg string, fields ...zap.Field)  { e.emit(Info, msg, fields...) }
func (e *Emitter) Warnf(msg string, fields ...zap.Field)  { e.emit(Warning, msg, fields...) }
func (e *Emitter) Errorf(msg string, fields ...zap.Field) { e.emit(Error, msg, fields...) }
