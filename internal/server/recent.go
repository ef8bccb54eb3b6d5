package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"aggticker/internal/metrics"
)

// recent retains the newest limit items. It is safe for concurrent use.
type recent[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRecent[T any](limit int) *recent[T] {
	if limit <= 0 {
		limit = 200
	}
	return &recent[T]{limit: limit}
}

func (r *recent[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

func (r *recent[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

type metricEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Name      string                 `json:"name"`
	Value     interface{}            `json:"value"`
	Type      string                 `json:"type"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func metricEventOf(m metrics.Metric) metricEvent {
	return metricEvent{
		Timestamp: m.Timestamp,
		Component: m.Component,
		Name:      m.Name,
		Value:     m.Value,
		Type:      m.Type,
		Fields:    m.Fields,
	}
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// problemLog is a logrus hook keeping the most recent warnings and errors, so failed
// background publishes can be inspected without access to the log sink.
type problemLog struct {
	*recent[logRecord]
	enabled atomic.Bool
}

func newProblemLog(limit int) *problemLog {
	p := &problemLog{recent: newRecent[logRecord](limit)}
	p.enabled.Store(true)
	return p
}

func (p *problemLog) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (p *problemLog) Fire(entry *logrus.Entry) error {
	if !p.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}
			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	p.add(record)
	return nil
}

func (p *problemLog) close() {
	p.enabled.Store(false)
}
