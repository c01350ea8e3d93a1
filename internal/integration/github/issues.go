package github

import (
	"context"
	"net/http"

	"github.com/tombee/switchboard/internal/integration/api"
)

func issueOutputOf(issue Issue) map[string]any {
	return map[string]any{
		"number":   issue.Number,
		"html_url": issue.HTMLURL,
		"state":    issue.State,
	}
}

func (g *GitHubIntegration) createIssue(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := g.BuildURL("/repos/{owner}/{repo}/issues", actx.Input)
	if err != nil {
		return nil, err
	}

	var issue Issue
	body := api.Pick(actx.Input, "title", "body", "labels", "assignees")
	if err := g.do(ctx, http.MethodPost, url, body, actx.Credentials(), &issue); err != nil {
		return nil, err
	}
	return issueOutputOf(issue), nil
}

func (g *GitHubIntegration) addComment(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := g.BuildURL("/repos/{owner}/{repo}/issues/{issue_number}/comments", actx.Input)
	if err != nil {
		return nil, err
	}

	var comment Comment
	body := api.Pick(actx.Input, "body")
	if err := g.do(ctx, http.MethodPost, url, body, actx.Credentials(), &comment); err != nil {
		return nil, err
	}
	return map[string]any{"id": comment.ID, "html_url": comment.HTMLURL}, nil
}

func (g *GitHubIntegration) closeIssue(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := g.BuildURL("/repos/{owner}/{repo}/issues/{issue_number}", actx.Input)
	if err != nil {
		return nil, err
	}

	var issue Issue
	body := map[string]any{
		"state":        "closed",
		"state_reason": actx.Input["state_reason"],
	}
	if err := g.do(ctx, http.MethodPatch, url, body, actx.Credentials(), &issue); err != nil {
		return nil, err
	}
	return issueOutputOf(issue), nil
}

// listIssues excludes pull requests, which the issues endpoint also returns.
func (g *GitHubIntegration) listIssues(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := g.BuildURL("/repos/{owner}/{repo}/issues", actx.Input)
	if err != nil {
		return nil, err
	}
	url += api.BuildQueryString(actx.Input, "state", "labels", "per_page", "page")

	var issues []Issue
	if err := g.do(ctx, http.MethodGet, url, nil, actx.Credentials(), &issues); err != nil {
		return nil, err
	}

	out := make([]any, 0, len(issues))
	for _, issue := range issues {
		if issue.PullRequest != nil {
			continue
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.Name)
		}
		out = append(out, map[string]any{
			"number":     issue.Number,
			"title":      issue.Title,
			"state":      issue.State,
			"html_url":   issue.HTMLURL,
			"author":     issue.User.Login,
			"labels":     labels,
			"comments":   issue.Comments,
			"created_at": issue.CreatedAt,
		})
	}
	return map[string]any{"issues": out, "count": len(out)}, nil
}
