package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Metric names shared by the runtime and the dashboards.
const (
	TelemetryReceived = "aegis_telemetry_received_total"
	TelemetryUnrouted = "aegis_telemetry_unrouted_total"
	TelemetryDropped  = "aegis_telemetry_dropped_total"
	ActionsExecuted   = "aegis_actions_executed_total"
	ActionsFailed     = "aegis_actions_failed_total"
	IncidentsReported = "aegis_incidents_reported_total"
	ReportDLQ         = "aegis_report_dlq_total"
	QueueDropped      = "aegis_queue_dropped_total"
	AgentsSkipped     = "aegis_agents_skipped_total"

	ThreatsByKind   = "aegis_threats_total"
	DecisionsByTier = "aegis_decisions_total"

	JournalSize      = "aegis_journal_size_bytes"
	QueueLength      = "aegis_queue_length"
	PendingApprovals = "aegis_pending_approvals"
	AgentsActive     = "aegis_agents_active"

	ReportLatency   = "aegis_report_latency_seconds"
	AnalysisLatency = "aegis_analysis_latency_seconds"
)

// PromObs implements ports.Observability with Prometheus collectors and slog.
type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	labeled  map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

var _ ports.Observability = (*PromObs)(nil)

// NewPromObs registers every collector on reg. A nil reg means the default registerer.
func NewPromObs(reg prometheus.Registerer, log *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if log == nil {
		log = slog.Default()
	}
	p := &PromObs{
		log:      log,
		counters: map[string]prometheus.Counter{},
		labeled:  map[string]*prometheus.CounterVec{},
		gauges:   map[string]prometheus.Gauge{},
		histos:   map[string]prometheus.Observer{},
	}

	counter := func(name, help string) {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		reg.MustRegister(c)
		p.counters[name] = c
	}
	counter(TelemetryReceived, "Telemetry frames accepted from collectors.")
	counter(TelemetryUnrouted, "Telemetry frames no agent claimed.")
	counter(TelemetryDropped, "Telemetry frames a collector dropped because intake was full.")
	counter(ActionsExecuted, "Actions executed against machines.")
	counter(ActionsFailed, "Actions whose execution returned an error.")
	counter(IncidentsReported, "Incidents delivered to every sink.")
	counter(ReportDLQ, "Incidents that exhausted delivery attempts.")
	counter(QueueDropped, "Incidents not queued because the report queue was full.")
	counter(AgentsSkipped, "Configured agents skipped because of configuration errors.")

	vec := func(name, help, label string) {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{label})
		reg.MustRegister(c)
		p.labeled[name] = c
	}
	vec(ThreatsByKind, "Threats detected, by kind.", "kind")
	vec(DecisionsByTier, "Decisions taken, by response tier.", "tier")

	gauge := func(name, help string) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		reg.MustRegister(g)
		p.gauges[name] = g
	}
	gauge(JournalSize, "Size of the decision journal on disk.")
	gauge(QueueLength, "Incidents waiting in the report queue.")
	gauge(PendingApprovals, "Decisions waiting for operator approval.")
	gauge(AgentsActive, "Agents registered with the dispatcher.")

	histo := func(name, help string) {
		h := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		})
		reg.MustRegister(h)
		p.histos[name] = h
	}
	histo(ReportLatency, "Time from dequeue to sink commit for a batch of incidents.")
	histo(AnalysisLatency, "Time an agent spends analyzing one telemetry frame.")

	return p
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(fields), "error", err)...)
}

// LogCritical is used when a decision may be lost. It logs at error level
// with critical=true so log shippers can page on it.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(attrs(fields), "error", err, "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) IncLabeled(name, label string, v float64) {
	if c, ok := p.labeled[name]; ok {
		c.WithLabelValues(label).Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.JournalEntryID, inc *domain.Incident, err error) {
	p.IncCounter(ReportDLQ, 1)
	args := []any{"journal_id", uint64(id), "error", err}
	if inc != nil {
		args = append(args, "incident_id", inc.ID, "machine_id", inc.MachineID, "tier", inc.Tier.String())
	}
	p.log.Error("incident moved to dead letter", args...)
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
