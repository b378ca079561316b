/*
 * Copyright (C) 2023 WiltonOS, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package operational

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
)

func TestDefineMetricIsDocumented(t *testing.T) {
	def := DefineMetric("test_counter", "help text", TypeCounter, "label1")
	require.Equal(t, "test_counter", def.Name)

	found := false
	for _, d := range GetDocumentation() {
		if d.Name == "test_counter" {
			found = true
			require.Equal(t, "help text", d.Help)
			require.Equal(t, TypeCounter, d.Type)
			require.Equal(t, []string{"label1"}, d.Labels)
		}
	}
	require.True(t, found)
}

func TestInstancesDoNotCollide(t *testing.T) {
	def := DefineMetric("test_collision_gauge", "help", TypeGauge)
	a := NewMetrics(&config.MetricsSettings{})
	b := NewMetrics(&config.MetricsSettings{})

	ga := a.NewGauge(&def)
	gb := b.NewGauge(&def)
	ga.Set(1)
	gb.Set(2)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, 1.0, families[0].GetMetric()[0].GetGauge().GetValue())
}

func TestNilMetricsSkipsRegistration(t *testing.T) {
	def := DefineMetric("test_nil_counter", "help", TypeCounter)
	var m *Metrics
	c := m.NewCounter(&def)
	require.NotNil(t, c)
	c.Inc()
}
