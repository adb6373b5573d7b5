// Copyright 2026 The Kernex Authors.
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

package metric

import (
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// PrometheusName converts a "/component/name" metric name into a Prometheus
// metric name under the given namespace.
func PrometheusName(namespace, name string) string {
	n := strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
	if namespace == "" {
		return n
	}
	return namespace + "_" + n
}

// family returns m as a single-sample counter family.
func (m *Uint64Metric) family(namespace string) *dto.MetricFamily {
	name := PrometheusName(namespace, m.name)
	v := float64(m.Value())
	mf := &dto.MetricFamily{
		Name:   &name,
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: &v}}},
	}
	if m.description != "" {
		help := m.description
		mf.Help = &help
	}
	return mf
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format, ordered by name. All metrics are exported as counters.
func WritePrometheus(w io.Writer, namespace string) error {
	for _, m := range sorted() {
		if _, err := expfmt.MetricFamilyToText(w, m.family(namespace)); err != nil {
			return err
		}
	}
	return nil
}
