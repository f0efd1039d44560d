// Copyright The AccelRT Authors. All Rights Reserved.
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

// Package metrics implements registration of runtime metrics collectors
// into a shared prometheus registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	model "github.com/prometheus/client_model/go"

	logger "github.com/edgeaccel/accelrt/pkg/log"
)

const (
	// Namespace is the prefix for all metrics registered by this runtime.
	Namespace = "accelrt"
)

var (
	log = logger.Get("metrics")

	registry = prometheus.NewRegistry()
	mu       sync.Mutex
	byName   = map[string]prometheus.Collector{}
)

// Register registers the given collector under a unique name. Registering
// the same name twice returns the collector registered first.
func Register(name string, collector prometheus.Collector) prometheus.Collector {
	mu.Lock()
	defer mu.Unlock()

	if existing, ok := byName[name]; ok {
		return existing
	}

	if err := registry.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			collector = are.ExistingCollector
		} else {
			log.Error("failed to register collector %s: %v", name, err)
			return collector
		}
	}

	byName[name] = collector
	log.Debug("registered collector %s", name)
	return collector
}

// Gatherer returns the shared registry as a prometheus gatherer.
func Gatherer() prometheus.Gatherer {
	return registry
}

// Gather collects the current state of all registered metrics.
func Gather() ([]*model.MetricFamily, error) {
	return registry.Gather()
}

// NewHistogram registers and returns a histogram vector in the runtime
// namespace.
func NewHistogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	return Register(name, h).(*prometheus.HistogramVec)
}

// NewGauge registers and returns a gauge vector in the runtime namespace.
func NewGauge(name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, labels)
	return Register(name, g).(*prometheus.GaugeVec)
}
