package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tombee/switchboard/internal/integration/api"
)

// adf wraps plain text in an Atlassian Document Format document, one
// paragraph per line.
func adf(text string) map[string]any {
	content := []any{}
	for _, line := range strings.Split(text, "\n") {
		para := map[string]any{"type": "paragraph", "content": []any{}}
		if line != "" {
			para["content"] = []any{map[string]any{"type": "text", "text": line}}
		}
		content = append(content, para)
	}
	return map[string]any{"type": "doc", "version": 1, "content": content}
}

func (j *JiraIntegration) createIssue(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	fields := map[string]any{
		"project":   map[string]any{"key": api.String(actx.Input, "project_key")},
		"summary":   api.String(actx.Input, "summary"),
		"issuetype": map[string]any{"name": api.String(actx.Input, "issue_type")},
	}
	if desc := api.String(actx.Input, "description"); desc != "" {
		fields["description"] = adf(desc)
	}
	if labels, ok := actx.Input["labels"]; ok {
		fields["labels"] = labels
	}

	var created Issue
	creds := actx.Credentials()
	if err := j.do(ctx, http.MethodPost, "/issue", nil, map[string]any{"fields": fields}, creds, &created); err != nil {
		return nil, err
	}

	site, _ := j.apiBase(creds)
	return map[string]any{
		"id":  created.ID,
		"key": created.Key,
		"url": strings.TrimSuffix(site, apiPath) + "/browse/" + created.Key,
	}, nil
}

func (j *JiraIntegration) getIssue(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	var issue Issue
	if err := j.do(ctx, http.MethodGet, "/issue/{issue_key}", actx.Input, nil, actx.Credentials(), &issue); err != nil {
		return nil, err
	}

	out := map[string]any{
		"id":       issue.ID,
		"key":      issue.Key,
		"summary":  issue.Fields.Summary,
		"labels":   issue.Fields.Labels,
		"created":  issue.Fields.Created,
		"updated":  issue.Fields.Updated,
		"status":   "",
		"assignee": "",
	}
	if issue.Fields.Status != nil {
		out["status"] = issue.Fields.Status.Name
	}
	if issue.Fields.Assignee != nil {
		out["assignee"] = issue.Fields.Assignee.DisplayName
	}
	if issue.Fields.IssueType != nil {
		out["issue_type"] = issue.Fields.IssueType.Name
	}
	if issue.Fields.Priority != nil {
		out["priority"] = issue.Fields.Priority.Name
	}
	return out, nil
}

func (j *JiraIntegration) addComment(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	var c Comment
	body := map[string]any{"body": adf(api.String(actx.Input, "body"))}
	if err := j.do(ctx, http.MethodPost, "/issue/{issue_key}/comment", actx.Input, body, actx.Credentials(), &c); err != nil {
		return nil, err
	}
	return map[string]any{"id": c.ID, "created": c.Created}, nil
}

// transitionIssue resolves a transition name to its id before applying it.
func (j *JiraIntegration) transitionIssue(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	creds := actx.Credentials()
	var available TransitionsResponse
	if err := j.do(ctx, http.MethodGet, "/issue/{issue_key}/transitions", actx.Input, nil, creds, &available); err != nil {
		return nil, err
	}

	want := api.String(actx.Input, "transition")
	var match *Transition
	for i, t := range available.Transitions {
		if t.ID == want || strings.EqualFold(t.Name, want) {
			match = &available.Transitions[i]
			break
		}
	}
	if match == nil {
		names := make([]string, 0, len(available.Transitions))
		for _, t := range available.Transitions {
			names = append(names, t.Name)
		}
		return nil, fmt.Errorf("transition %q not available (have: %s)", want, strings.Join(names, ", "))
	}

	body := map[string]any{"transition": map[string]any{"id": match.ID}}
	var ignored map[string]any
	if err := j.do(ctx, http.MethodPost, "/issue/{issue_key}/transitions", actx.Input, body, creds, &ignored); err != nil {
		return nil, err
	}
	return map[string]any{"transition_id": match.ID, "status": match.To.Name}, nil
}
