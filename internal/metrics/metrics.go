package metrics

import (
	"slices"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex        sync.RWMutex
	probes       map[string]*probeStats
	sections     map[string]*sectionStats
	cycles       int64
	skipped      int64
	lastCycle    time.Duration
	lastCycleEnd time.Time
	startTime    time.Time
}

type probeStats struct {
	total     int64
	online    int64
	offline   int64
	lastState bool
	latencies []time.Duration
}

type sectionStats struct {
	loads    int64
	failures int64
	rows     int
	total    time.Duration
}

type Snapshot struct {
	Uptime         time.Duration             `json:"uptime"`
	Cycles         int64                     `json:"cycles"`
	SkippedProbes  int64                     `json:"skipped_probes"`
	LastCycle      time.Duration             `json:"last_cycle_duration"`
	LastCycleEnded time.Time                 `json:"last_cycle_ended,omitzero"`
	Services       map[string]ServiceMetrics `json:"services"`
	Sections       map[string]SectionMetrics `json:"sections"`
}

type ServiceMetrics struct {
	Probes     int64         `json:"probes"`
	Online     int64         `json:"online"`
	Offline    int64         `json:"offline"`
	LastOnline bool          `json:"last_online"`
	AvgLatency time.Duration `json:"avg_latency"`
	P50Latency time.Duration `json:"p50_latency"`
	P95Latency time.Duration `json:"p95_latency"`
	P99Latency time.Duration `json:"p99_latency"`
}

type SectionMetrics struct {
	Loads      int64         `json:"loads"`
	Failures   int64         `json:"failures"`
	LastRows   int           `json:"last_rows"`
	AvgLatency time.Duration `json:"avg_latency"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		probes:    make(map[string]*probeStats),
		sections:  make(map[string]*sectionStats),
		startTime: time.Now(),
	}
}

func (m *Metrics) RecordProbe(service string, duration time.Duration, online bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ps, ok := m.probes[service]
	if !ok {
		ps = &probeStats{}
		m.probes[service] = ps
	}

	ps.total++
	if online {
		ps.online++
	} else {
		ps.offline++
	}
	ps.lastState = online

	ps.latencies = append(ps.latencies, duration)
	if len(ps.latencies) > maxSamples {
		ps.latencies = ps.latencies[1:]
	}
}

func (m *Metrics) RecordCycle(duration time.Duration, skipped int, endedAt time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.cycles++
	m.skipped += int64(skipped)
	m.lastCycle = duration
	m.lastCycleEnd = endedAt
}

// RecordSection keys section statistics by "<service>/<kind>".
func (m *Metrics) RecordSection(key string, duration time.Duration, rows int, failed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ss, ok := m.sections[key]
	if !ok {
		ss = &sectionStats{}
		m.sections[key] = ss
	}

	ss.loads++
	ss.total += duration
	if failed {
		ss.failures++
		return
	}
	ss.rows = rows
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:         time.Since(m.startTime),
		Cycles:         m.cycles,
		SkippedProbes:  m.skipped,
		LastCycle:      m.lastCycle,
		LastCycleEnded: m.lastCycleEnd,
		Services:       make(map[string]ServiceMetrics, len(m.probes)),
		Sections:       make(map[string]SectionMetrics, len(m.sections)),
	}

	for service, ps := range m.probes {
		sm := ServiceMetrics{
			Probes:     ps.total,
			Online:     ps.online,
			Offline:    ps.offline,
			LastOnline: ps.lastState,
		}

		if len(ps.latencies) > 0 {
			sorted := slices.Clone(ps.latencies)
			slices.Sort(sorted)

			sm.AvgLatency = average(sorted)
			sm.P50Latency = percentile(sorted, 0.50)
			sm.P95Latency = percentile(sorted, 0.95)
			sm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Services[service] = sm
	}

	for key, ss := range m.sections {
		sec := SectionMetrics{
			Loads:    ss.loads,
			Failures: ss.failures,
			LastRows: ss.rows,
		}
		if ss.loads > 0 {
			sec.AvgLatency = ss.total / time.Duration(ss.loads)
		}
		snap.Sections[key] = sec
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
