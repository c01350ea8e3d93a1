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
	"context"
	"encoding/json"
	"fmt"

	"github.com/tombee/switchboard/internal/transport"
)

// EngineTrigger starts workflow runs through the execution engine's HTTP
// API: it POSTs {"workflow_id", "inputs"} and reads the run id from the
// response.
type EngineTrigger struct {
	transport transport.Transport
	url       string
	token     string
}

// NewEngineTrigger creates a trigger for the engine endpoint at url. token,
// when set, is sent as a bearer token.
func NewEngineTrigger(t transport.Transport, url, token string) *EngineTrigger {
	return &EngineTrigger{transport: t, url: url, token: token}
}

// Trigger implements Trigger.
func (e *EngineTrigger) Trigger(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"workflow_id": workflowID,
		"inputs":      input,
	})
	if err != nil {
		return "", fmt.Errorf("encode trigger request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if e.token != "" {
		headers["Authorization"] = "Bearer " + e.token
	}
	resp, err := e.transport.Execute(ctx, &transport.Request{
		Method:  "POST",
		URL:     e.url,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", transport.StatusError(resp)
	}

	var run struct {
		RunID string `json:"run_id"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &run); err != nil {
		return "", fmt.Errorf("decode trigger response: %w", err)
	}
	if run.RunID != "" {
		return run.RunID, nil
	}
	if run.ID != "" {
		return run.ID, nil
	}
	return "", fmt.Errorf("trigger response carried no run id")
}
