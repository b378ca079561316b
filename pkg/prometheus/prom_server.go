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

package prometheus

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
)

var plog = logrus.WithField("component", "prometheus")

// InitializePrometheus starts the metrics HTTP server for the given
// gatherer, or returns nil when metrics are disabled.
func InitializePrometheus(settings *config.MetricsSettings, gatherer prometheus.Gatherer) *http.Server {
	if settings.Disabled {
		plog.Info("metrics endpoint disabled")
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%v", settings.Address, settings.Port),
		Handler: mux,
	}
	plog.Infof("Prometheus server: addr = %s", server.Addr)

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			plog.Errorf("error in http.ListenAndServe: %v", err)
		}
	}()

	return server
}
