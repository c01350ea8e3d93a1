package jira

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

// SiteURLKey is the credential extra holding the Atlassian site,
// e.g. https://acme.atlassian.net.
const SiteURLKey = "site_url"

const apiPath = "/rest/api/3"

type action string

const (
	createIssue     action = "create_issue"
	getIssue        action = "get_issue"
	addComment      action = "add_comment"
	transitionIssue action = "transition_issue"
)

// Definition describes the Jira integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "jira",
		Name:        "Jira",
		Description: "Track work in Jira Cloud: create, comment on and move issues between statuses",
		Category:    schema.CategoryDeveloper,
		AuthType:    schema.AuthBasicAuth,
		BasicAuth:   &schema.BasicAuthConfig{UsernameLabel: "Email", PasswordLabel: "API token"},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(createIssue),
				Name:        "Create Issue",
				Description: "Create an issue in a project",
				InputSchema: map[string]schema.FieldSchema{
					"project_key": {Type: schema.TypeString, Required: true},
					"summary":     {Type: schema.TypeString, Required: true},
					"description": {Type: schema.TypeString},
					"issue_type":  {Type: schema.TypeString, Default: "Task"},
					"labels":      {Type: schema.TypeArray},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":  {Type: schema.TypeString},
					"key": {Type: schema.TypeString},
					"url": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(getIssue),
				Name:        "Get Issue",
				Description: "Fetch an issue by key",
				InputSchema: map[string]schema.FieldSchema{
					"issue_key": {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"key":      {Type: schema.TypeString},
					"summary":  {Type: schema.TypeString},
					"status":   {Type: schema.TypeString},
					"assignee": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(addComment),
				Name:        "Add Comment",
				Description: "Comment on an issue",
				InputSchema: map[string]schema.FieldSchema{
					"issue_key": {Type: schema.TypeString, Required: true},
					"body":      {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":      {Type: schema.TypeString},
					"created": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(transitionIssue),
				Name:        "Transition Issue",
				Description: "Move an issue through its workflow by transition name or id",
				InputSchema: map[string]schema.FieldSchema{
					"issue_key":  {Type: schema.TypeString, Required: true},
					"transition": {Type: schema.TypeString, Required: true, Description: "Transition name (e.g. Done) or id"},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"transition_id": {Type: schema.TypeString},
					"status":        {Type: schema.TypeString},
				},
			},
		},
	}
}

// JiraIntegration implements api.Adapter for Jira Cloud REST API v3.
type JiraIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewJiraIntegration creates a new Jira integration.
func NewJiraIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, err
	}

	j := &JiraIntegration{BaseAdapter: base}
	j.handlers = api.HandlerTable[action]{
		createIssue:     j.createIssue,
		getIssue:        j.getIssue,
		addComment:      j.addComment,
		transitionIssue: j.transitionIssue,
	}
	return j, nil
}

// ExecuteAction runs a named action.
func (j *JiraIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, j.BaseAdapter, actionID, actx, j.handlers)
}

// ValidateCredentials fetches the account behind the email and token.
func (j *JiraIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	base, err := j.apiBase(creds)
	if err != nil {
		return api.ValidationResult{Valid: false, Error: err.Error()}
	}
	return j.Probe(ctx, http.MethodGet, base+"/myself", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var u User
			if err := api.DecodeJSON(resp, &u); err != nil {
				return nil, err
			}
			return map[string]any{
				"account_id":   u.AccountID,
				"display_name": u.DisplayName,
				"email":        u.EmailAddress,
			}, nil
		})
}

// apiBase resolves the REST root from the connection's site, falling back to
// the configured base URL.
func (j *JiraIntegration) apiBase(creds credential.Credentials) (string, error) {
	site := creds.Extra[SiteURLKey]
	if site == "" {
		site = j.BaseURL()
	}
	if site == "" {
		return "", errors.New("jira connection has no site_url")
	}
	return strings.TrimRight(site, "/") + apiPath, nil
}

func (j *JiraIntegration) do(ctx context.Context, method, path string, inputs map[string]any, body any, creds credential.Credentials, target any) error {
	base, err := j.apiBase(creds)
	if err != nil {
		return err
	}
	url, err := api.BuildURL(base, path, inputs)
	if err != nil {
		return err
	}
	resp, err := j.DoJSON(ctx, method, url, body, creds)
	if err != nil {
		return err
	}
	if err := ParseError(resp); err != nil {
		return err
	}
	return api.DecodeJSON(resp, target)
}
