package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

// ContentURL is the host for upload and download endpoints.
const ContentURL = "https://content.dropboxapi.com/2"

type action string

const (
	listFolder       action = "list_folder"
	uploadFile       action = "upload_file"
	createSharedLink action = "create_shared_link"
)

// Definition describes the Dropbox integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "dropbox",
		Name:        "Dropbox",
		Description: "Upload files, list folders and share links in Dropbox",
		Category:    schema.CategoryStorage,
		AuthType:    schema.AuthOAuth2,
		BaseURL:     "https://api.dropboxapi.com/2",
		OAuth2: &schema.OAuth2Config{
			AuthorizationURL: "https://www.dropbox.com/oauth2/authorize",
			TokenURL:         "https://api.dropboxapi.com/oauth2/token",
			ExtraAuthParams:  map[string]string{"token_access_type": "offline"},
		},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(listFolder),
				Name:        "List Folder",
				Description: "List the entries of a folder",
				InputSchema: map[string]schema.FieldSchema{
					"path":      {Type: schema.TypeString, Default: "", Description: "Folder path; empty for the root"},
					"recursive": {Type: schema.TypeBoolean, Default: false},
					"limit":     {Type: schema.TypeInteger},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"entries":  {Type: schema.TypeArray},
					"cursor":   {Type: schema.TypeString},
					"has_more": {Type: schema.TypeBoolean},
				},
			},
			{
				ID:          string(uploadFile),
				Name:        "Upload File",
				Description: "Upload text content to a path",
				InputSchema: map[string]schema.FieldSchema{
					"path":    {Type: schema.TypeString, Required: true},
					"content": {Type: schema.TypeString, Required: true},
					"mode":    {Type: schema.TypeString, Default: "add", Enum: []any{"add", "overwrite"}},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":           {Type: schema.TypeString},
					"path":         {Type: schema.TypeString},
					"size":         {Type: schema.TypeInteger},
					"content_hash": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(createSharedLink),
				Name:        "Create Shared Link",
				Description: "Create a public link to a file or folder",
				InputSchema: map[string]schema.FieldSchema{
					"path": {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"url": {Type: schema.TypeString},
				},
			},
		},
	}
}

// DropboxError is the error envelope of the Dropbox API.
type DropboxError struct {
	Summary    string
	Tag        string
	StatusCode int
}

func (e *DropboxError) Error() string {
	return fmt.Sprintf("Dropbox API error: %s (status %d)", e.Summary, e.StatusCode)
}

// ParseError converts a non-2xx response into a *DropboxError. Some 400s are
// plain text.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	derr := &DropboxError{StatusCode: resp.StatusCode}
	var body struct {
		ErrorSummary string `json:"error_summary"`
		Error        struct {
			Tag string `json:".tag"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.ErrorSummary != "" {
		derr.Summary = body.ErrorSummary
		derr.Tag = body.Error.Tag
	} else if text := strings.TrimSpace(string(resp.Body)); text != "" {
		derr.Summary = text
	} else {
		derr.Summary = http.StatusText(resp.StatusCode)
	}
	return derr
}

// DropboxIntegration implements api.Adapter for the Dropbox API v2.
type DropboxIntegration struct {
	*api.BaseAdapter
	contentURL string
	handlers   api.HandlerTable[action]
}

// NewDropboxIntegration creates a new Dropbox integration. An overridden
// BaseURL serves both the RPC and content endpoints.
func NewDropboxIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, nil)
	if err != nil {
		return nil, err
	}

	d := &DropboxIntegration{BaseAdapter: base, contentURL: ContentURL}
	if cfg.BaseURL != "" {
		d.contentURL = base.BaseURL()
	}
	d.handlers = api.HandlerTable[action]{
		listFolder:       d.listFolder,
		uploadFile:       d.uploadFile,
		createSharedLink: d.createSharedLink,
	}
	return d, nil
}

// ExecuteAction runs a named action.
func (d *DropboxIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, d.BaseAdapter, actionID, actx, d.handlers)
}

// ValidateCredentials fetches the current account. The endpoint takes a POST
// with no body.
func (d *DropboxIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return d.Probe(ctx, http.MethodPost, d.BaseURL()+"/users/get_current_account", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var acct struct {
				AccountID string `json:"account_id"`
				Email     string `json:"email"`
				Name      struct {
					DisplayName string `json:"display_name"`
				} `json:"name"`
			}
			if err := api.DecodeJSON(resp, &acct); err != nil {
				return nil, err
			}
			return map[string]any{
				"account_id":   acct.AccountID,
				"email":        acct.Email,
				"display_name": acct.Name.DisplayName,
			}, nil
		})
}

func (d *DropboxIntegration) rpc(ctx context.Context, endpoint string, body any, creds credential.Credentials, target any) error {
	resp, err := d.DoJSON(ctx, http.MethodPost, d.BaseURL()+endpoint, body, creds)
	if err != nil {
		return err
	}
	if err := ParseError(resp); err != nil {
		return err
	}
	return api.DecodeJSON(resp, target)
}

// normalizePath returns "" for the root and a leading-slash path otherwise.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "id:") {
		p = "/" + p
	}
	return p
}

func (d *DropboxIntegration) listFolder(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	body := api.Pick(actx.Input, "recursive", "limit")
	body["path"] = normalizePath(api.String(actx.Input, "path"))

	var resp struct {
		Entries []struct {
			Tag         string `json:".tag"`
			Name        string `json:"name"`
			PathDisplay string `json:"path_display"`
			ID          string `json:"id"`
			Size        int64  `json:"size"`
		} `json:"entries"`
		Cursor  string `json:"cursor"`
		HasMore bool   `json:"has_more"`
	}
	if err := d.rpc(ctx, "/files/list_folder", body, actx.Credentials(), &resp); err != nil {
		return nil, err
	}

	entries := make([]any, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entry := map[string]any{"type": e.Tag, "name": e.Name, "path": e.PathDisplay, "id": e.ID}
		if e.Tag == "file" {
			entry["size"] = e.Size
		}
		entries = append(entries, entry)
	}
	return map[string]any{"entries": entries, "cursor": resp.Cursor, "has_more": resp.HasMore}, nil
}

// uploadFile sends raw bytes with the arguments JSON-encoded in the
// Dropbox-API-Arg header.
func (d *DropboxIntegration) uploadFile(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	arg, err := json.Marshal(map[string]any{
		"path":       normalizePath(api.String(actx.Input, "path")),
		"mode":       api.String(actx.Input, "mode"),
		"autorename": true,
		"mute":       false,
	})
	if err != nil {
		return nil, err
	}

	resp, err := d.MakeRequest(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    d.contentURL + "/files/upload",
		Headers: map[string]string{
			"Content-Type":    "application/octet-stream",
			"Dropbox-API-Arg": asciiJSON(arg),
		},
		Body: []byte(api.String(actx.Input, "content")),
	}, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}

	var meta struct {
		ID          string `json:"id"`
		PathDisplay string `json:"path_display"`
		Size        int64  `json:"size"`
		ContentHash string `json:"content_hash"`
	}
	if err := api.DecodeJSON(resp, &meta); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           meta.ID,
		"path":         meta.PathDisplay,
		"size":         meta.Size,
		"content_hash": meta.ContentHash,
	}, nil
}

// createSharedLink returns the existing link when the path is already shared.
func (d *DropboxIntegration) createSharedLink(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	path := normalizePath(api.String(actx.Input, "path"))
	creds := actx.Credentials()

	var link struct {
		URL string `json:"url"`
	}
	err := d.rpc(ctx, "/sharing/create_shared_link_with_settings", map[string]any{"path": path}, creds, &link)
	if derr, ok := err.(*DropboxError); ok && strings.HasPrefix(derr.Summary, "shared_link_already_exists") {
		var existing struct {
			Links []struct {
				URL string `json:"url"`
			} `json:"links"`
		}
		body := map[string]any{"path": path, "direct_only": true}
		if err := d.rpc(ctx, "/sharing/list_shared_links", body, creds, &existing); err != nil {
			return nil, err
		}
		if len(existing.Links) == 0 {
			return nil, derr
		}
		return map[string]any{"url": existing.Links[0].URL}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": link.URL}, nil
}

// asciiJSON escapes non-ASCII characters, which HTTP headers cannot carry.
func asciiJSON(b []byte) string {
	var sb strings.Builder
	for _, r := range string(b) {
		if r < 0x80 {
			sb.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			fmt.Fprintf(&sb, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&sb, `\u%04x`, r)
	}
	return sb.String()
}
