package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mnemora/mnemora-backend/internal/platform/logger"
)

// Metrics is the process-wide registry for the memory engine. All methods
// are nil-safe so call sites never need an enabled check.
type Metrics struct {
	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	ingestTotal   *CounterVec
	ingestLatency *HistogramVec

	searchTotal   *CounterVec
	searchLatency *HistogramVec
	branchTotal   *CounterVec

	recencyFill  *Gauge
	storeRecords *GaugeVec
	jobQueue     *GaugeVec

	jobTotal   *CounterVec
	jobLatency *HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			llmRequests: NewCounterVec("mn_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
			llmLatency: NewHistogramVec(
				"mn_llm_request_duration_seconds",
				"LLM request latency in seconds by model/endpoint/status.",
				[]string{"model", "endpoint", "status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			),
			llmTokens: NewCounterVec("mn_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
			ingestTotal: NewCounterVec(
				"mn_memory_ingest_total",
				"Ingests by analyzed type/placement/status.",
				[]string{"analyzed_type", "placement", "status"},
			),
			ingestLatency: NewHistogramVec(
				"mn_memory_ingest_duration_seconds",
				"Ingest latency in seconds by status.",
				[]string{"status"},
				[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			),
			searchTotal: NewCounterVec(
				"mn_memory_search_total",
				"Searches by mode/strategy/status.",
				[]string{"mode", "strategy", "status"},
			),
			searchLatency: NewHistogramVec(
				"mn_memory_search_duration_seconds",
				"Search latency in seconds by mode.",
				[]string{"mode"},
				[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			),
			branchTotal: NewCounterVec(
				"mn_memory_search_branch_total",
				"Search branch outcomes by branch/status.",
				[]string{"branch", "status"},
			),
			recencyFill:  NewGauge("mn_memory_recency_fill", "Recency cache entries currently held."),
			storeRecords: NewGaugeVec("mn_memory_store_records", "Stored records by category.", []string{"category"}),
			jobQueue:     NewGaugeVec("mn_analysis_job_queue_depth", "Analysis jobs by status.", []string{"status"}),
			jobTotal:     NewCounterVec("mn_analysis_job_total", "Analysis jobs by type/status.", []string{"job_type", "status"}),
			jobLatency: NewHistogramVec(
				"mn_analysis_job_duration_seconds",
				"Analysis job duration in seconds by type.",
				[]string{"job_type"},
				[]float64{1, 5, 10, 30, 60, 120, 300, 600},
			),
		}
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

var (
	llmTelemetryOnce sync.Once
	llmTelemetryOn   bool
)

func llmTelemetryEnabled() bool {
	llmTelemetryOnce.Do(func() {
		v := strings.TrimSpace(strings.ToLower(os.Getenv("LLM_TELEMETRY_ENABLED")))
		llmTelemetryOn = v == "1" || v == "true" || v == "yes"
	})
	return llmTelemetryOn
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil || !llmTelemetryEnabled() {
		return
	}
	model = orUnknown(model)
	endpoint = orUnknown(endpoint)
	status = strings.TrimSpace(status)
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveIngest(analyzedType, placement, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.Inc(orUnknown(analyzedType), orUnknown(placement), orUnknown(status))
	if dur > 0 {
		m.ingestLatency.Observe(dur.Seconds(), orUnknown(status))
	}
}

func (m *Metrics) ObserveSearch(mode, strategy, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.searchTotal.Inc(orUnknown(mode), orUnknown(strategy), orUnknown(status))
	if dur > 0 {
		m.searchLatency.Observe(dur.Seconds(), orUnknown(mode))
	}
}

func (m *Metrics) IncSearchBranch(branch, status string) {
	if m == nil {
		return
	}
	m.branchTotal.Inc(orUnknown(branch), orUnknown(status))
}

func (m *Metrics) SetRecencyFill(n int) {
	if m == nil {
		return
	}
	m.recencyFill.Set(float64(n))
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobTotal.Inc(orUnknown(jobType), orUnknown(status))
	if dur > 0 {
		m.jobLatency.Observe(dur.Seconds(), orUnknown(jobType))
	}
}

// StartStoreCollector samples stored-record counts per category and analysis
// job queue depth on an interval.
func (m *Metrics) StartStoreCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var catRows []struct {
					Category string
					Count    int64
				}
				if err := db.WithContext(ctx).
					Table("memories").
					Select("category, count(*) as count").
					Group("category").
					Scan(&catRows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: store count query failed", "error", err)
					}
				} else {
					for _, row := range catRows {
						m.storeRecords.Set(float64(row.Count), orUnknown(row.Category))
					}
				}

				var jobRows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Table("analysis_jobs").
					Select("status, count(*) as count").
					Group("status").
					Scan(&jobRows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, row := range jobRows {
					m.jobQueue.Set(float64(row.Count), orUnknown(row.Status))
				}
			}
		}
	}()
}

// WritePrometheus renders the registry in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.ingestTotal, m.ingestLatency,
		m.searchTotal, m.searchLatency, m.branchTotal,
		m.recencyFill, m.storeRecords, m.jobQueue,
		m.jobTotal, m.jobLatency,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// ---- lightweight metric primitives (Prometheus exposition) ----

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}
