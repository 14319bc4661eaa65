package stats

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gomessenger"

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	registry   *prometheus.Registry
	gauges     map[string]prometheus.Gauge
	gaugesLock sync.RWMutex
	updateChan chan *metricsUpdateReq
	running    bool
	stop       chan struct{}
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value float64
}

// NewStatsUpdater creates a new stats updater and serves its metrics on
// GET /metrics of r.
func NewStatsUpdater(r *mux.Router) *StatsUpdater {
	su := &StatsUpdater{
		registry:   prometheus.NewRegistry(),
		gauges:     make(map[string]prometheus.Gauge),
		updateChan: make(chan *metricsUpdateReq, 512),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	su.initializeMetrics()

	r.Handle("/metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	startTime := time.Now()
	su.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started.",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	}))
}

// metricName turns a name like "NumActiveClients" into "num_active_clients".
func metricName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)

	for {
		select {
		case req := <-su.updateChan:
			su.apply(req)
		case <-su.stop:
			// apply what was queued before the stop
			for {
				select {
				case req := <-su.updateChan:
					su.apply(req)
				default:
					return
				}
			}
		}
	}
}

func (su *StatsUpdater) apply(req *metricsUpdateReq) {
	su.gaugesLock.RLock()
	g, ok := su.gauges[req.name]
	su.gaugesLock.RUnlock()
	if !ok {
		return
	}

	g.Add(req.value)
}

// update never blocks once the updater is stopped; late updates are dropped.
func (su *StatsUpdater) update(name string, value float64) {
	select {
	case su.updateChan <- &metricsUpdateReq{name: name, value: value}:
	case <-su.stop:
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.update(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.update(name, -1)
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.gaugesLock.Lock()
	defer su.gaugesLock.Unlock()

	if _, ok := su.gauges[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      metricName(name),
		Help:      name,
	})
	su.registry.MustRegister(g)
	su.gauges[name] = g
}

func (su *StatsUpdater) Run() {
	su.running = true
	go su.updateMetrics()
}

// Stop waits for queued updates to apply. Later updates are dropped.
func (su *StatsUpdater) Stop() {
	close(su.stop)
	if su.running {
		<-su.done
	}
}
