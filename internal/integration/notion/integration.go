package notion

import (
	"context"
	"net/http"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

// APIVersion is sent as Notion-Version on every request.
const APIVersion = "2022-06-28"

type action string

const (
	createPage    action = "create_page"
	appendContent action = "append_content"
	queryDatabase action = "query_database"
	search        action = "search"
)

var listOutput = map[string]schema.FieldSchema{
	"results":     {Type: schema.TypeArray},
	"has_more":    {Type: schema.TypeBoolean},
	"next_cursor": {Type: schema.TypeString},
}

// Definition describes the Notion integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "notion",
		Name:        "Notion",
		Description: "Create pages, query databases and search a Notion workspace",
		Category:    schema.CategoryProductivity,
		AuthType:    schema.AuthOAuth2,
		BaseURL:     "https://api.notion.com/v1",
		OAuth2: &schema.OAuth2Config{
			AuthorizationURL: "https://api.notion.com/v1/oauth/authorize",
			TokenURL:         "https://api.notion.com/v1/oauth/token",
			ExtraAuthParams:  map[string]string{"owner": "user"},
			TokenAuthStyle:   schema.TokenAuthInHeader,
		},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(createPage),
				Name:        "Create Page",
				Description: "Create a page under a parent page or in a database",
				InputSchema: map[string]schema.FieldSchema{
					"parent_page_id": {Type: schema.TypeString, Description: "Parent page; one of parent_page_id or database_id is required"},
					"database_id":    {Type: schema.TypeString},
					"title":          {Type: schema.TypeString, Required: true},
					"content":        {Type: schema.TypeString, Description: "Page body as markdown"},
					"properties":     {Type: schema.TypeObject, Description: "Raw database properties"},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":  {Type: schema.TypeString},
					"url": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(appendContent),
				Name:        "Append Content",
				Description: "Append markdown content to an existing page",
				InputSchema: map[string]schema.FieldSchema{
					"page_id": {Type: schema.TypeString, Required: true},
					"content": {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"blocks_added": {Type: schema.TypeInteger},
				},
			},
			{
				ID:          string(queryDatabase),
				Name:        "Query Database",
				Description: "Query rows of a database",
				InputSchema: map[string]schema.FieldSchema{
					"database_id":  {Type: schema.TypeString, Required: true},
					"filter":       {Type: schema.TypeObject},
					"sorts":        {Type: schema.TypeArray},
					"page_size":    {Type: schema.TypeInteger, Default: 100},
					"start_cursor": {Type: schema.TypeString},
				},
				OutputSchema: listOutput,
			},
			{
				ID:          string(search),
				Name:        "Search",
				Description: "Search pages and databases by title",
				InputSchema: map[string]schema.FieldSchema{
					"query":        {Type: schema.TypeString},
					"object_type":  {Type: schema.TypeString, Enum: []any{"page", "database"}},
					"page_size":    {Type: schema.TypeInteger, Default: 20},
					"start_cursor": {Type: schema.TypeString},
				},
				OutputSchema: listOutput,
			},
		},
	}
}

// NotionIntegration implements api.Adapter for the Notion API.
type NotionIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewNotionIntegration creates a new Notion integration.
func NewNotionIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, map[string]string{
		"Notion-Version": APIVersion,
	})
	if err != nil {
		return nil, err
	}

	n := &NotionIntegration{BaseAdapter: base}
	n.handlers = api.HandlerTable[action]{
		createPage:    n.createPage,
		appendContent: n.appendContent,
		queryDatabase: n.queryDatabase,
		search:        n.search,
	}
	return n, nil
}

// ExecuteAction runs a named action.
func (n *NotionIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, n.BaseAdapter, actionID, actx, n.handlers)
}

// ValidateCredentials fetches the bot user behind the token.
func (n *NotionIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return n.Probe(ctx, http.MethodGet, n.BaseURL()+"/users/me", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var u User
			if err := api.DecodeJSON(resp, &u); err != nil {
				return nil, err
			}
			meta := map[string]any{"id": u.ID, "name": u.Name, "type": u.Type}
			if u.Bot != nil && u.Bot.WorkspaceName != "" {
				meta["workspace_name"] = u.Bot.WorkspaceName
			}
			return meta, nil
		})
}

func (n *NotionIntegration) do(ctx context.Context, method, url string, body any, creds credential.Credentials, target any) error {
	resp, err := n.DoJSON(ctx, method, url, body, creds)
	if err != nil {
		return err
	}
	if err := ParseError(resp); err != nil {
		return err
	}
	return api.DecodeJSON(resp, target)
}
