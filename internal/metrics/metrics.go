// Copyright 2025 Tom Barlow
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

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_actions_total",
			Help: "Total provider action calls by provider, action and outcome",
		},
		[]string{"provider", "action", "outcome"},
	)

	actionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchboard_action_duration_seconds",
			Help:    "Provider action call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_token_refreshes_total",
			Help: "OAuth2 token refreshes by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	oauthFlows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_oauth_flows_total",
			Help: "OAuth2 authorization flows by provider and stage",
		},
		[]string{"provider", "stage"},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_webhook_deliveries_total",
			Help: "Outbound webhook deliveries by event and final outcome",
		},
		[]string{"event", "outcome"},
	)

	webhookAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_webhook_delivery_attempts_total",
			Help: "Individual outbound webhook HTTP attempts by outcome",
		},
		[]string{"outcome"},
	)

	webhookInbound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_webhook_inbound_total",
			Help: "Inbound webhook requests by result",
		},
		[]string{"result"},
	)

	persistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_persistence_errors_total",
			Help: "Total persistence operation errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)
)

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// RecordAction counts one provider action call and observes its latency.
func RecordAction(provider, action string, success bool, elapsed time.Duration) {
	actionsTotal.WithLabelValues(provider, action, outcome(success)).Inc()
	actionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordTokenRefresh counts one refresh attempt.
func RecordTokenRefresh(provider string, success bool) {
	tokenRefreshes.WithLabelValues(provider, outcome(success)).Inc()
}

// RecordOAuthFlow counts an OAuth2 flow transition (started, completed, failed).
func RecordOAuthFlow(provider, stage string) {
	oauthFlows.WithLabelValues(provider, stage).Inc()
}

// RecordDelivery counts the final outcome of one outbound delivery.
func RecordDelivery(event string, success bool) {
	webhookDeliveries.WithLabelValues(event, outcome(success)).Inc()
}

// RecordDeliveryAttempt counts one outbound HTTP attempt.
func RecordDeliveryAttempt(success bool) {
	webhookAttempts.WithLabelValues(outcome(success)).Inc()
}

// RecordInbound counts an inbound webhook request by result
// (triggered, unauthorized, not_found, bad_request, trigger_failed).
func RecordInbound(result string) {
	webhookInbound.WithLabelValues(result).Inc()
}

// RecordPersistenceError records a persistence operation error.
func RecordPersistenceError(operation, errorType string) {
	persistenceErrors.WithLabelValues(operation, errorType).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
