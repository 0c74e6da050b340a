package traffic

import (
	"sync"

	"go.uber.org/zap"
)

// Groups holds the requests of a window split by category.
type Groups struct {
	Business []Record
	Tag      []Record
	Noise    []Record
}

// Effect summarises the traffic that followed a tap.
type Effect struct {
	HasBusiness   bool
	HasTag        bool
	BusinessCount int
	TagCount      int
	NoiseCount    int
	Business      []Record
	Tags          []Record
}

// Monitor answers window queries against the live traffic log.
type Monitor struct {
	mu         sync.RWMutex
	path       string
	classifier *Classifier
	logger     *zap.Logger
}

// NewMonitor creates a monitor over the log at path.
func NewMonitor(path string, classifier *Classifier, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{path: path, classifier: classifier, logger: logger}
}

// Path returns the log currently queried.
func (m *Monitor) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// SetPath points the monitor at a new log, e.g. after a capture session rotation.
func (m *Monitor) SetPath(path string) {
	m.mu.Lock()
	m.path = path
	m.mu.Unlock()
}

// RequestsInWindow returns requests with startMs <= timestamp <= endMs,
// classified. An absent or unreadable log yields empty groups.
func (m *Monitor) RequestsInWindow(startMs, endMs int64) Groups {
	var g Groups

	logPath := m.Path()
	if logPath == "" {
		return g
	}
	res, err := ReadLog(logPath)
	if err != nil {
		m.logger.Debug("traffic log unreadable", zap.String("path", logPath), zap.Error(err))
		return g
	}

	for _, rec := range res.Records {
		ts := int64(rec.Timestamp)
		if ts < startMs || ts > endMs {
			continue
		}
		rec.Category = m.classifier.Classify(rec.Host, rec.URL)
		switch rec.Category {
		case CategoryBusiness:
			g.Business = append(g.Business, rec)
		case CategoryTag:
			g.Tag = append(g.Tag, rec)
		default:
			g.Noise = append(g.Noise, rec)
		}
	}
	return g
}

// CheckEffect queries the window [clickMs, clickMs+durationMs].
func (m *Monitor) CheckEffect(clickMs, durationMs int64) Effect {
	g := m.RequestsInWindow(clickMs, clickMs+durationMs)
	return Effect{
		HasBusiness:   len(g.Business) > 0,
		HasTag:        len(g.Tag) > 0,
		BusinessCount: len(g.Business),
		TagCount:      len(g.Tag),
		NoiseCount:    len(g.Noise),
		Business:      g.Business,
		Tags:          g.Tag,
	}
}
