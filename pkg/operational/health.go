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
	"net"
	"net/http"

	"github.com/heptiolabs/healthcheck"
	log "github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
)

// NewHealthServer starts an HTTP server exposing /live and /ready backed
// by the provided engine checks.
func NewHealthServer(opts *config.Options, isAlive, isReady healthcheck.Check) *http.Server {
	handler := healthcheck.NewHandler()
	address := net.JoinHostPort(opts.Health.Address, opts.Health.Port)
	handler.AddLivenessCheck("EngineCheck", isAlive)
	handler.AddReadinessCheck("EngineCheck", isReady)

	server := &http.Server{
		Addr:    address,
		Handler: handler,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("http.ListenAndServe error %v", err)
		}
	}()

	return server
}
