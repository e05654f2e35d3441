package main

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	defaultEventName   = "tasks.request"
	defaultEventDomain = "taskflow"

	attrStatusCode  = "http.status_code"
	attrOp          = "taskflow.tasks.op"
	attrTotalMillis = "taskflow.tasks.total_ms"
	attrStoreMillis = "taskflow.tasks.store_ms"
	attrTasksCount  = "taskflow.tasks.tasks_count"
	attrErrorStage  = "taskflow.tasks.error_stage"
)

// logRecord is one observability.event line as written by the API's JSON
// formatter.
type logRecord struct {
	EventName    string         `json:"event.name"`
	EventDomain  string         `json:"event.domain"`
	SeverityText string         `json:"severity_text"`
	Attributes   map[string]any `json:"attributes"`
}

type stats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

func newStats() *stats { return &stats{Min: math.MaxFloat64} }

func (s *stats) add(v float64) {
	s.Count++
	s.Sum += v
	s.Min = math.Min(s.Min, v)
	s.Max = math.Max(s.Max, v)
}

type statsSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

func (s *stats) summary() statsSummary {
	if s == nil || s.Count == 0 {
		return statsSummary{}
	}
	return statsSummary{Count: s.Count, Min: s.Min, Max: s.Max, Avg: s.Sum / float64(s.Count)}
}

type collector struct {
	eventName   string
	eventDomain string

	total      int
	skipped    int
	severities map[string]int
	statuses   map[int]int
	ops        map[string]int
	stages     map[string]int
	durations  map[string]*stats
	tasks      *stats
}

type summaryOutput struct {
	EventName      string                  `json:"event_name"`
	EventDomain    string                  `json:"event_domain"`
	TotalEvents    int                     `json:"total_events"`
	SeverityCounts map[string]int          `json:"severity_counts"`
	StatusCounts   map[string]int          `json:"status_counts"`
	OpCounts       map[string]int          `json:"op_counts"`
	DurationMs     map[string]statsSummary `json:"duration_ms"`
	TasksCount     statsSummary            `json:"tasks_count"`
	ErrorStages    map[string]int          `json:"error_stages,omitempty"`
	SkippedLines   int                     `json:"skipped_lines"`
}

func newCollector(eventName, eventDomain string) *collector {
	return &collector{
		eventName:   eventName,
		eventDomain: eventDomain,
		severities:  make(map[string]int),
		statuses:    make(map[int]int),
		ops:         make(map[string]int),
		stages:      make(map[string]int),
		durations:   make(map[string]*stats),
	}
}

// ingest reads one log line. Lines prefixed by a container name and a pipe
// are accepted; anything that is not JSON counts as skipped.
func (c *collector) ingest(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if pipe := strings.Index(trimmed, "|"); pipe >= 0 && !strings.HasPrefix(trimmed, "{") {
		trimmed = strings.TrimSpace(trimmed[pipe+1:])
	}

	var rec logRecord
	dec := sonic.ConfigStd.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		c.skipped++
		return
	}
	if rec.EventName != c.eventName {
		return
	}
	if c.eventDomain != "" && rec.EventDomain != c.eventDomain {
		return
	}
	c.add(rec)
}

func (c *collector) add(rec logRecord) {
	c.total++
	severity := strings.ToUpper(strings.TrimSpace(rec.SeverityText))
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	c.severities[severity]++

	attrs := rec.Attributes
	if status, ok := asInt(attrs[attrStatusCode]); ok {
		c.statuses[status]++
	}
	if op, ok := attrs[attrOp].(string); ok && op != "" {
		c.ops[op]++
	}
	if stage, ok := attrs[attrErrorStage].(string); ok && stage != "" {
		c.stages[stage]++
	}
	c.observe("total", attrs[attrTotalMillis])
	c.observe("store", attrs[attrStoreMillis])
	if v, ok := asFloat(attrs[attrTasksCount]); ok {
		if c.tasks == nil {
			c.tasks = newStats()
		}
		c.tasks.add(v)
	}
}

func (c *collector) observe(key string, raw any) {
	v, ok := asFloat(raw)
	if !ok {
		return
	}
	s, exists := c.durations[key]
	if !exists {
		s = newStats()
		c.durations[key] = s
	}
	s.add(v)
}

func (c *collector) summary() summaryOutput {
	durations := make(map[string]statsSummary, len(c.durations))
	for k, s := range c.durations {
		durations[k] = s.summary()
	}
	statuses := make(map[string]int, len(c.statuses))
	for code, n := range c.statuses {
		statuses[strconv.Itoa(code)] = n
	}
	out := summaryOutput{
		EventName:      c.eventName,
		EventDomain:    c.eventDomain,
		TotalEvents:    c.total,
		SeverityCounts: c.severities,
		StatusCounts:   statuses,
		OpCounts:       c.ops,
		DurationMs:     durations,
		TasksCount:     c.tasks.summary(),
		SkippedLines:   c.skipped,
	}
	if len(c.stages) > 0 {
		out.ErrorStages = c.stages
	}
	return out
}

func (s summaryOutput) ShortString() string {
	total := s.DurationMs["total"]
	return strings.Join([]string{
		"event=" + s.EventName,
		"total=" + strconv.Itoa(s.TotalEvents),
		"info=" + strconv.Itoa(s.SeverityCounts["INFO"]),
		"warn=" + strconv.Itoa(s.SeverityCounts["WARN"]),
		"error=" + strconv.Itoa(s.SeverityCounts["ERROR"]),
		"avg_total_ms=" + strconv.FormatFloat(total.Avg, 'f', 2, 64),
		"max_total_ms=" + strconv.FormatFloat(total.Max, 'f', 2, 64),
	}, " ")
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
