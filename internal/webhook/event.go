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

package webhook

import (
	"slices"
	"time"
)

// Event is a workflow lifecycle event that outgoing webhooks subscribe to.
type Event string

const (
	EventWorkflowStarted   Event = "workflow.started"
	EventWorkflowCompleted Event = "workflow.completed"
	EventWorkflowFailed    Event = "workflow.failed"
	EventNodeStarted       Event = "node.started"
	EventNodeCompleted     Event = "node.completed"
	EventNodeFailed        Event = "node.failed"

	// EventTest is sent by Dispatcher.SendTest only. Subscriptions cannot
	// name it.
	EventTest Event = "webhook.test"
)

// Events lists the lifecycle events in a stable order.
var Events = []Event{
	EventWorkflowStarted,
	EventWorkflowCompleted,
	EventWorkflowFailed,
	EventNodeStarted,
	EventNodeCompleted,
	EventNodeFailed,
}

// Valid reports whether e is a lifecycle event.
func (e Event) Valid() bool {
	return slices.Contains(Events, e)
}

// Envelope is the JSON body of every outgoing delivery.
type Envelope struct {
	Event     Event          `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (e Envelope) env() map[string]any {
	return map[string]any{
		"event":     string(e.Event),
		"timestamp": e.Timestamp,
		"data":      e.Data,
	}
}
