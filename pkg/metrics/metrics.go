// Copyright © 2024 OpenIM. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements objcache.Stats (IncrGetHit/IncrGetMiss/IncrEvicted)
// without objcache importing prometheus directly, the same narrow-surface
// discipline dispatch.InvalidateFunc/NotifyFunc use to keep leaf packages
// free of infra imports.
type Collector struct {
	registry *prometheus.Registry
	getHit   prometheus.Counter
	getMiss  prometheus.Counter
	evicted  prometheus.Counter
}

// New creates a private registry (never prometheus.DefaultRegisterer) and
// registers every dscached collector on it.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		getHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dscache",
			Name:      "object_cache_hits_total",
			Help:      "Number of lookups served from the resident object cache.",
		}),
		getMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dscache",
			Name:      "object_cache_misses_total",
			Help:      "Number of lookups that missed the resident object cache.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dscache",
			Name:      "object_cache_evictions_total",
			Help:      "Number of entries evicted from the resident object cache by the cache cron.",
		}),
	}
	reg.MustRegister(c.getHit, c.getMiss, c.evicted)
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) IncrGetHit()   { c.getHit.Inc() }
func (c *Collector) IncrGetMiss()  { c.getMiss.Inc() }
func (c *Collector) IncrEvicted()  { c.evicted.Inc() }

// GaugeFunc registers a gauge sampled on every scrape, for values the
// engine owns directly (resident key count, schedule depth, negative
// cache size) rather than values this package would have to duplicate
// bookkeeping for.
func (c *Collector) GaugeFunc(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dscache",
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler returns the /metrics HTTP handler internal/admin mounts.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
