package github

import (
	"context"
	"net/http"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

type action string

const (
	createIssue action = "create_issue"
	addComment  action = "add_comment"
	closeIssue  action = "close_issue"
	listIssues  action = "list_issues"
)

var repoFields = map[string]schema.FieldSchema{
	"owner": {Type: schema.TypeString, Required: true, Description: "Repository owner"},
	"repo":  {Type: schema.TypeString, Required: true, Description: "Repository name"},
}

func withRepo(extra map[string]schema.FieldSchema) map[string]schema.FieldSchema {
	out := make(map[string]schema.FieldSchema, len(repoFields)+len(extra))
	for k, v := range repoFields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var issueOutput = map[string]schema.FieldSchema{
	"number":   {Type: schema.TypeInteger},
	"html_url": {Type: schema.TypeString},
	"state":    {Type: schema.TypeString},
}

// Definition describes the GitHub integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "github",
		Name:        "GitHub",
		Description: "Create, comment on and close issues in GitHub repositories",
		Category:    schema.CategoryDeveloper,
		AuthType:    schema.AuthOAuth2,
		BaseURL:     "https://api.github.com",
		OAuth2: &schema.OAuth2Config{
			AuthorizationURL: "https://github.com/login/oauth/authorize",
			TokenURL:         "https://github.com/login/oauth/access_token",
			Scopes:           []string{"repo", "read:user"},
		},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(createIssue),
				Name:        "Create Issue",
				Description: "Open a new issue",
				InputSchema: withRepo(map[string]schema.FieldSchema{
					"title":     {Type: schema.TypeString, Required: true},
					"body":      {Type: schema.TypeString},
					"labels":    {Type: schema.TypeArray},
					"assignees": {Type: schema.TypeArray},
				}),
				OutputSchema: issueOutput,
			},
			{
				ID:          string(addComment),
				Name:        "Add Comment",
				Description: "Comment on an issue or pull request",
				InputSchema: withRepo(map[string]schema.FieldSchema{
					"issue_number": {Type: schema.TypeInteger, Required: true},
					"body":         {Type: schema.TypeString, Required: true},
				}),
				OutputSchema: map[string]schema.FieldSchema{
					"id":       {Type: schema.TypeInteger},
					"html_url": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(closeIssue),
				Name:        "Close Issue",
				Description: "Close an open issue",
				InputSchema: withRepo(map[string]schema.FieldSchema{
					"issue_number": {Type: schema.TypeInteger, Required: true},
					"state_reason": {Type: schema.TypeString, Default: "completed", Enum: []any{"completed", "not_planned"}},
				}),
				OutputSchema: issueOutput,
			},
			{
				ID:          string(listIssues),
				Name:        "List Issues",
				Description: "List issues in a repository",
				InputSchema: withRepo(map[string]schema.FieldSchema{
					"state":    {Type: schema.TypeString, Default: "open", Enum: []any{"open", "closed", "all"}},
					"labels":   {Type: schema.TypeString, Description: "Comma-separated label names"},
					"per_page": {Type: schema.TypeInteger, Default: 30},
					"page":     {Type: schema.TypeInteger},
				}),
				OutputSchema: map[string]schema.FieldSchema{
					"issues": {Type: schema.TypeArray},
					"count":  {Type: schema.TypeInteger},
				},
			},
		},
	}
}

// GitHubIntegration implements api.Adapter for the GitHub REST API.
type GitHubIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewGitHubIntegration creates a new GitHub integration.
func NewGitHubIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	})
	if err != nil {
		return nil, err
	}

	g := &GitHubIntegration{BaseAdapter: base}
	g.handlers = api.HandlerTable[action]{
		createIssue: g.createIssue,
		addComment:  g.addComment,
		closeIssue:  g.closeIssue,
		listIssues:  g.listIssues,
	}
	return g, nil
}

// ExecuteAction runs a named action.
func (g *GitHubIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, g.BaseAdapter, actionID, actx, g.handlers)
}

// ValidateCredentials fetches the authenticated user.
func (g *GitHubIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return g.Probe(ctx, http.MethodGet, g.BaseURL()+"/user", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var u User
			if err := api.DecodeJSON(resp, &u); err != nil {
				return nil, err
			}
			return map[string]any{"login": u.Login, "id": u.ID, "name": u.Name}, nil
		})
}

// do sends a JSON request and decodes a 2xx response into target.
func (g *GitHubIntegration) do(ctx context.Context, method, url string, body any, creds credential.Credentials, target any) error {
	resp, err := g.DoJSON(ctx, method, url, body, creds)
	if err != nil {
		return err
	}
	if err := ParseError(resp); err != nil {
		return err
	}
	return api.DecodeJSON(resp, target)
}
