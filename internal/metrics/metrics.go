package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dstatus/internal/ipc"
)

// Result labels for counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultRemote  = "remote_error"
)

// Metrics owns a private registry. It implements ipc.Observer.
type Metrics struct {
	registry *prometheus.Registry

	connectionState prometheus.Gauge
	dialAttempts    *prometheus.CounterVec
	frames          *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec
	activityUpdates *prometheus.CounterVec
	configReloads   *prometheus.CounterVec

	mu         sync.Mutex
	state      ipc.State
	endpoint   string
	lastUpdate time.Time
	now        func() time.Time
}

var _ ipc.Observer = (*Metrics)(nil)

// New registers every dstatus collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dstatus_connection_state",
			Help: "IPC connection state: 0 disconnected, 1 pending, 2 connected",
		}),
		dialAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dstatus_dial_attempts_total",
			Help: "Connection attempts against discovered IPC sockets",
		}, []string{"result"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dstatus_frames_total",
			Help: "IPC frames by direction and opcode",
		}, []string{"direction", "opcode"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dstatus_frame_bytes_total",
			Help: "IPC bytes including frame headers",
		}, []string{"direction"}),
		activityUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dstatus_activity_updates_total",
			Help: "SET_ACTIVITY round trips by result",
		}, []string{"result"}),
		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dstatus_config_reloads_total",
			Help: "Configuration reloads by result",
		}, []string{"result"}),
		now: time.Now,
	}
	m.registry.MustRegister(
		m.connectionState,
		m.dialAttempts,
		m.frames,
		m.frameBytes,
		m.activityUpdates,
		m.configReloads,
	)
	return m
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// OnStateChange records the connection state.
func (m *Metrics) OnStateChange(state ipc.State) {
	m.connectionState.Set(float64(state))
	m.mu.Lock()
	m.state = state
	if state != ipc.Connected {
		m.endpoint = ""
	}
	m.mu.Unlock()
}

// OnDial counts a connection attempt.
func (m *Metrics) OnDial(path string, err error) {
	if err != nil {
		m.dialAttempts.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.dialAttempts.WithLabelValues(ResultSuccess).Inc()
	m.mu.Lock()
	m.endpoint = path
	m.mu.Unlock()
}

// OnFrame counts a frame and its size.
func (m *Metrics) OnFrame(direction string, opcode uint32, size int) {
	m.frames.WithLabelValues(direction, strconv.FormatUint(uint64(opcode), 10)).Inc()
	m.frameBytes.WithLabelValues(direction).Add(float64(size))
}

// ObserveActivity records the outcome of one SET_ACTIVITY round trip.
func (m *Metrics) ObserveActivity(result string) {
	m.activityUpdates.WithLabelValues(result).Inc()
	if result != ResultSuccess {
		return
	}
	m.mu.Lock()
	m.lastUpdate = m.now()
	m.mu.Unlock()
}

// ObserveReload records a configuration reload outcome.
func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.configReloads.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.configReloads.WithLabelValues(ResultSuccess).Inc()
}

// Health is the /healthz body.
type Health struct {
	State      string     `json:"state"`
	Endpoint   string     `json:"endpoint,omitempty"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// Health snapshots the connection for /healthz.
func (m *Metrics) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := Health{State: m.state.String(), Endpoint: m.endpoint}
	if !m.lastUpdate.IsZero() {
		last := m.lastUpdate.UTC()
		h.LastUpdate = &last
	}
	return h
}
