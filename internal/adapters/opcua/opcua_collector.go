package opcua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// Config describes one OPC UA server and the machine readings mapped onto its nodes.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig binds a node to a machine reading. Numeric values land in
// Telemetry.Metrics, strings and booleans in Telemetry.States.
type NodeConfig struct {
	NodeID    string `yaml:"node_id"`
	MachineID string `yaml:"machine_id"`
	Metric    string `yaml:"metric"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "AegisSentinel"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 500 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if len(c.Nodes) == 0 {
		errs = append(errs, errors.New("at least one node must be configured"))
	}
	for i, n := range c.Nodes {
		if n.NodeID == "" || n.MachineID == "" || n.Metric == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: node_id, machine_id and metric are required", i))
		}
	}
	return errors.Join(errs...)
}

// Collector turns OPC UA data changes into per-machine telemetry frames. Each
// frame carries the latest known value of every mapped reading for that machine.
type Collector struct {
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	handles map[uint32]NodeConfig
	metrics map[string]map[string]float64
	states  map[string]map[string]string
}

var _ ports.Collector = (*Collector)(nil)

func NewCollector(cfg Config, log *slog.Logger) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	handles := make(map[uint32]NodeConfig, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		handles[uint32(i+1)] = n
	}
	return &Collector{
		cfg:     cfg,
		log:     log.With("component", "opcua_collector", "endpoint", cfg.Endpoint),
		now:     time.Now,
		handles: handles,
		metrics: map[string]map[string]float64{},
		states:  map[string]map[string]string{},
	}, nil
}

func (c *Collector) Start(out chan<- *domain.Telemetry) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("opcua collector already started")
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := opcua.NewClient(c.cfg.Endpoint, c.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notify := make(chan *opcua.PublishNotificationData, len(c.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: c.cfg.PublishInterval}, notify)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	reqs := make([]*ua.MonitoredItemCreateRequest, 0, len(c.handles))
	for handle := uint32(1); handle <= uint32(len(c.cfg.Nodes)); handle++ {
		node := c.handles[handle]
		id, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			c.abort(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)
		if c.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(c.cfg.SamplingInterval / time.Millisecond)
		}
		reqs = append(reqs, req)
	}
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, reqs...)
	if err != nil {
		c.abort(ctx, cancel, sub, client)
		return fmt.Errorf("opcua monitor: %w", err)
	}
	for i, r := range res.Results {
		if r.StatusCode != ua.StatusOK {
			c.abort(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %s", c.cfg.Nodes[i].NodeID, r.StatusCode)
		}
	}

	c.mu.Lock()
	c.client, c.sub, c.cancel, c.started = client, sub, cancel, true
	c.mu.Unlock()

	c.log.Info("opcua collector started", "nodes", len(c.cfg.Nodes))
	c.wg.Add(1)
	go c.consume(ctx, notify, out)
	return nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel, sub, client := c.cancel, c.sub, c.client
	c.started, c.cancel, c.sub, c.client = false, nil, nil, nil
	c.mu.Unlock()

	cancel()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	var err error
	if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
		err = errors.Join(err, e)
	}
	if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
		err = errors.Join(err, e)
	}
	c.wg.Wait()
	return err
}

func (c *Collector) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- *domain.Telemetry) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ch:
			if n == nil {
				continue
			}
			if n.Error != nil {
				c.log.Warn("opcua notification error", "error", n.Error)
				continue
			}
			data, ok := n.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}
			for _, t := range c.frames(data.MonitoredItems) {
				select {
				case <-ctx.Done():
					return
				case out <- t:
				}
			}
		}
	}
}

// frames folds a batch of item changes into the per-machine snapshots and
// returns one frame per touched machine, ordered by machine id.
func (c *Collector) frames(items []*ua.MonitoredItemNotification) []*domain.Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()

	touched := map[string]time.Time{}
	for _, item := range items {
		if item == nil || item.Value == nil {
			continue
		}
		node, ok := c.handles[item.ClientHandle]
		if !ok {
			continue
		}
		if !c.apply(node, item.Value.Value) {
			c.log.Debug("skipping unsupported opcua value", "node_id", node.NodeID)
			continue
		}
		ts := item.Value.SourceTimestamp
		if ts.IsZero() {
			ts = item.Value.ServerTimestamp
		}
		if prev, seen := touched[node.MachineID]; !seen || ts.After(prev) {
			touched[node.MachineID] = ts
		}
	}

	machines := make([]string, 0, len(touched))
	for m := range touched {
		machines = append(machines, m)
	}
	sort.Strings(machines)

	out := make([]*domain.Telemetry, 0, len(machines))
	for _, m := range machines {
		ts := touched[m]
		if ts.IsZero() {
			ts = c.now()
		}
		t := &domain.Telemetry{
			Timestamp: ts.UTC(),
			MachineID: m,
			Metrics:   make(map[string]float64, len(c.metrics[m])),
		}
		for k, v := range c.metrics[m] {
			t.Metrics[k] = v
		}
		if len(c.states[m]) > 0 {
			t.States = make(map[string]string, len(c.states[m]))
			for k, v := range c.states[m] {
				t.States[k] = v
			}
		}
		out = append(out, t)
	}
	return out
}

func (c *Collector) apply(node NodeConfig, v *ua.Variant) bool {
	if v == nil {
		return false
	}
	if f, ok := variantToFloat(v); ok {
		if c.metrics[node.MachineID] == nil {
			c.metrics[node.MachineID] = map[string]float64{}
		}
		c.metrics[node.MachineID][node.Metric] = f
		return true
	}
	var s string
	switch val := v.Value().(type) {
	case string:
		s = val
	case bool:
		s = fmt.Sprintf("%t", val)
	default:
		return false
	}
	if c.states[node.MachineID] == nil {
		c.states[node.MachineID] = map[string]string{}
	}
	c.states[node.MachineID][node.Metric] = s
	return true
}

func (c *Collector) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(c.cfg.SecurityMode)),
		opcua.SecurityPolicy(c.cfg.SecurityPolicy),
		opcua.ApplicationName(c.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if c.cfg.Username != "" {
		return append(opts, opcua.AuthUsername(c.cfg.Username, c.cfg.Password))
	}
	return append(opts, opcua.AuthAnonymous())
}

func (c *Collector) abort(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	_ = sub.Cancel(ctx)
	_ = client.Close(ctx)
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}
