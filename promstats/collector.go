package promstats

import (
	"github.com/joeycumines/go-combinelock"
	"github.com/joeycumines/go-combinelock/vrand"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// Lock models combinelock.Lock, for any type parameter.
	Lock interface {
		Stats() combinelock.Stats
		InspectPoison() combinelock.PoisonState
	}

	// Pool models vrand.Pool.
	Pool interface {
		Stats() vrand.PoolStats
	}

	lockCollector struct {
		lock  Lock
		descs lockDescs
	}

	poolCollector struct {
		pool  Pool
		descs poolDescs
		lock  lockDescs
	}

	lockDescs struct {
		executed *prometheus.Desc
		panicked *prometheus.Desc
		rejected *prometheus.Desc
		sessions *prometheus.Desc
		handoffs *prometheus.Desc
		parks    *prometheus.Desc
		poisoned *prometheus.Desc
	}

	poolDescs struct {
		regionsMapped   *prometheus.Desc
		regionsUnmapped *prometheus.Desc
		freeStates      *prometheus.Desc
		rentedStates    *prometheus.Desc
		staleDiscards   *prometheus.Desc
		fallbacks       *prometheus.Desc
	}
)

var (
	_ Lock = (*combinelock.Lock[struct{}])(nil)
	_ Pool = (*vrand.Pool)(nil)
)

// NewLockCollector returns a collector for lock, with each metric labeled
// with the given name.
func NewLockCollector(name string, lock Lock) prometheus.Collector {
	if lock == nil {
		panic(`promstats: nil lock`)
	}
	return &lockCollector{
		lock:  lock,
		descs: newLockDescs(prometheus.Labels{`lock`: name}),
	}
}

// NewPoolCollector returns a collector for pool, including its internal
// lock, with each metric labeled with the given name.
func NewPoolCollector(name string, pool Pool) prometheus.Collector {
	if pool == nil {
		panic(`promstats: nil pool`)
	}
	labels := prometheus.Labels{`pool`: name}
	return &poolCollector{
		pool: pool,
		descs: poolDescs{
			regionsMapped:   prometheus.NewDesc(`vrand_regions_mapped_total`, `Total number of regions mapped.`, nil, labels),
			regionsUnmapped: prometheus.NewDesc(`vrand_regions_unmapped_total`, `Total number of regions unmapped.`, nil, labels),
			freeStates:      prometheus.NewDesc(`vrand_free_states`, `Number of states on the free list.`, nil, labels),
			rentedStates:    prometheus.NewDesc(`vrand_rented_states`, `Number of rented states.`, nil, labels),
			staleDiscards:   prometheus.NewDesc(`vrand_stale_discards_total`, `Total number of states discarded after a fork.`, nil, labels),
			fallbacks:       prometheus.NewDesc(`vrand_fallbacks_total`, `Total number of fills served by the getrandom system call.`, nil, labels),
		},
		lock: newLockDescs(prometheus.Labels{`lock`: `vrand_pool`, `pool`: name}),
	}
}

// RegisterLock registers a collector for lock, see NewLockCollector.
func RegisterLock(reg prometheus.Registerer, name string, lock Lock) error {
	return reg.Register(NewLockCollector(name, lock))
}

// RegisterPool registers a collector for pool, see NewPoolCollector.
func RegisterPool(reg prometheus.Registerer, name string, pool Pool) error {
	return reg.Register(NewPoolCollector(name, pool))
}

func newLockDescs(labels prometheus.Labels) lockDescs {
	return lockDescs{
		executed: prometheus.NewDesc(`combinelock_tasks_executed_total`, `Total number of tasks started.`, nil, labels),
		panicked: prometheus.NewDesc(`combinelock_tasks_panicked_total`, `Total number of tasks that panicked.`, nil, labels),
		rejected: prometheus.NewDesc(`combinelock_tasks_rejected_total`, `Total number of tasks not run, due to poisoning.`, nil, labels),
		sessions: prometheus.NewDesc(`combinelock_combiner_sessions_total`, `Total number of times a goroutine became the combiner.`, nil, labels),
		handoffs: prometheus.NewDesc(`combinelock_handoffs_total`, `Total number of combiner hand-offs.`, nil, labels),
		parks:    prometheus.NewDesc(`combinelock_parks_total`, `Total number of times a waiter parked.`, nil, labels),
		poisoned: prometheus.NewDesc(`combinelock_poisoned`, `Whether the lock is poisoned (1) or healthy (0).`, nil, labels),
	}
}

func (x lockDescs) describe(ch chan<- *prometheus.Desc) {
	ch <- x.executed
	ch <- x.panicked
	ch <- x.rejected
	ch <- x.sessions
	ch <- x.handoffs
	ch <- x.parks
}

func (x lockDescs) collect(ch chan<- prometheus.Metric, stats combinelock.Stats) {
	ch <- prometheus.MustNewConstMetric(x.executed, prometheus.CounterValue, float64(stats.Executed))
	ch <- prometheus.MustNewConstMetric(x.panicked, prometheus.CounterValue, float64(stats.Panicked))
	ch <- prometheus.MustNewConstMetric(x.rejected, prometheus.CounterValue, float64(stats.Rejected))
	ch <- prometheus.MustNewConstMetric(x.sessions, prometheus.CounterValue, float64(stats.Sessions))
	ch <- prometheus.MustNewConstMetric(x.handoffs, prometheus.CounterValue, float64(stats.Handoffs))
	ch <- prometheus.MustNewConstMetric(x.parks, prometheus.CounterValue, float64(stats.Parks))
}

func (x *lockCollector) Describe(ch chan<- *prometheus.Desc) {
	x.descs.describe(ch)
	ch <- x.descs.poisoned
}

func (x *lockCollector) Collect(ch chan<- prometheus.Metric) {
	x.descs.collect(ch, x.lock.Stats())
	var poisoned float64
	if x.lock.InspectPoison() == combinelock.Poisoned {
		poisoned = 1
	}
	ch <- prometheus.MustNewConstMetric(x.descs.poisoned, prometheus.GaugeValue, poisoned)
}

func (x *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- x.descs.regionsMapped
	ch <- x.descs.regionsUnmapped
	ch <- x.descs.freeStates
	ch <- x.descs.rentedStates
	ch <- x.descs.staleDiscards
	ch <- x.descs.fallbacks
	x.lock.describe(ch)
}

func (x *poolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := x.pool.Stats()
	ch <- prometheus.MustNewConstMetric(x.descs.regionsMapped, prometheus.CounterValue, float64(stats.RegionsMapped))
	ch <- prometheus.MustNewConstMetric(x.descs.regionsUnmapped, prometheus.CounterValue, float64(stats.RegionsUnmapped))
	ch <- prometheus.MustNewConstMetric(x.descs.freeStates, prometheus.GaugeValue, float64(stats.FreeStates))
	ch <- prometheus.MustNewConstMetric(x.descs.rentedStates, prometheus.GaugeValue, float64(stats.RentedStates))
	ch <- prometheus.MustNewConstMetric(x.descs.staleDiscards, prometheus.CounterValue, float64(stats.StaleDiscards))
	ch <- prometheus.MustNewConstMetric(x.descs.fallbacks, prometheus.CounterValue, float64(stats.Fallbacks))
	x.lock.collect(ch, stats.Lock)
}
