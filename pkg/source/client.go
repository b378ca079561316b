/*
 * Copyright (C) 2024 WiltonOS, Inc.
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

package source

import (
	"context"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/wiltonos/coherence-pipeline/pkg/api"
)

var slog = logrus.WithField("component", "source.Client")

// Client fetches coherence payloads over HTTP and turns them into Samples.
type Client struct {
	httpClient *http.Client
	extractor  *Extractor
}

func NewClient(aliases api.SampleAliases) *Client {
	return &Client{
		httpClient: &http.Client{},
		extractor:  NewExtractor(aliases),
	}
}

// Fetch performs one GET against the spec and extracts a Sample. Transport
// failures, bad statuses and undecodable bodies are all plain errors: the
// caller decides whether to fall back.
func (c *Client) Fetch(ctx context.Context, spec api.SourceSpec) (api.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(spec.TimeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return api.Sample{}, errors.Wrapf(err, "building request for %s", spec.Name)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return api.Sample{}, errors.Wrapf(err, "fetching %s", spec.Name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return api.Sample{}, errors.Errorf("fetching %s: unexpected status %d", spec.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Sample{}, errors.Wrapf(err, "reading %s response", spec.Name)
	}
	payload := map[string]interface{}{}
	if err := jsoniter.Unmarshal(body, &payload); err != nil {
		return api.Sample{}, errors.Wrapf(err, "decoding %s response", spec.Name)
	}
	slog.Debugf("fetched %s: %d fields", spec.Name, len(payload))
	return c.extractor.Extract(payload, time.Now()), nil
}
