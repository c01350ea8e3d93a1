package notion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
)

// maxChildren is the most blocks Notion accepts in one request.
const maxChildren = 100

func (n *NotionIntegration) createPage(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	parentPage := api.String(actx.Input, "parent_page_id")
	database := api.String(actx.Input, "database_id")
	if (parentPage == "") == (database == "") {
		return nil, errors.New("exactly one of parent_page_id or database_id is required")
	}

	title := []any{richText(api.String(actx.Input, "title"), annotations{}, "")}
	properties := map[string]any{}
	if raw, ok := actx.Input["properties"].(map[string]any); ok {
		for k, v := range raw {
			properties[k] = v
		}
	}

	body := map[string]any{}
	if parentPage != "" {
		body["parent"] = map[string]any{"page_id": normalizeID(parentPage)}
		properties["title"] = map[string]any{"title": title}
	} else {
		body["parent"] = map[string]any{"database_id": normalizeID(database)}
		if !hasTitleProperty(properties) {
			properties["Name"] = map[string]any{"title": title}
		}
	}
	body["properties"] = properties

	blocks := markdownToBlocks(api.String(actx.Input, "content"))
	first, rest := splitBlocks(blocks)
	if len(first) > 0 {
		body["children"] = first
	}

	var page Page
	if err := n.do(ctx, http.MethodPost, n.BaseURL()+"/pages", body, actx.Credentials(), &page); err != nil {
		return nil, err
	}
	if err := n.appendBlocks(ctx, page.ID, rest, actx.Credentials()); err != nil {
		return nil, err
	}
	return map[string]any{"id": page.ID, "url": page.URL}, nil
}

func (n *NotionIntegration) appendContent(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	blocks := markdownToBlocks(api.String(actx.Input, "content"))
	if err := n.appendBlocks(ctx, normalizeID(api.String(actx.Input, "page_id")), blocks, actx.Credentials()); err != nil {
		return nil, err
	}
	return map[string]any{"blocks_added": len(blocks)}, nil
}

// appendBlocks adds blocks to a page in batches of maxChildren.
func (n *NotionIntegration) appendBlocks(ctx context.Context, pageID string, blocks []any, creds credential.Credentials) error {
	for len(blocks) > 0 {
		var batch []any
		batch, blocks = splitBlocks(blocks)

		url, err := n.BuildURL("/blocks/{id}/children", map[string]any{"id": pageID})
		if err != nil {
			return err
		}
		var ignored map[string]any
		if err := n.do(ctx, http.MethodPatch, url, map[string]any{"children": batch}, creds, &ignored); err != nil {
			return err
		}
	}
	return nil
}

func (n *NotionIntegration) queryDatabase(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := n.BuildURL("/databases/{id}/query", map[string]any{"id": normalizeID(api.String(actx.Input, "database_id"))})
	if err != nil {
		return nil, err
	}

	var list List
	body := api.Pick(actx.Input, "filter", "sorts", "page_size", "start_cursor")
	if err := n.do(ctx, http.MethodPost, url, body, actx.Credentials(), &list); err != nil {
		return nil, err
	}
	return listOutputOf(list), nil
}

func (n *NotionIntegration) search(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	body := api.Pick(actx.Input, "query", "page_size", "start_cursor")
	if kind := api.String(actx.Input, "object_type"); kind != "" {
		body["filter"] = map[string]any{"property": "object", "value": kind}
	}

	var list List
	if err := n.do(ctx, http.MethodPost, n.BaseURL()+"/search", body, actx.Credentials(), &list); err != nil {
		return nil, err
	}
	return listOutputOf(list), nil
}

func listOutputOf(list List) map[string]any {
	results := make([]any, 0, len(list.Results))
	for _, p := range list.Results {
		results = append(results, map[string]any{
			"id":               p.ID,
			"object":           p.Object,
			"url":              p.URL,
			"title":            pageTitle(p),
			"last_edited_time": p.LastEditedTime,
			"properties":       p.Properties,
		})
	}
	cursor := ""
	if list.NextCursor != nil {
		cursor = *list.NextCursor
	}
	return map[string]any{
		"results":     results,
		"has_more":    list.HasMore,
		"next_cursor": cursor,
	}
}

func splitBlocks(blocks []any) (head, tail []any) {
	if len(blocks) <= maxChildren {
		return blocks, nil
	}
	return blocks[:maxChildren], blocks[maxChildren:]
}

// normalizeID accepts ids with or without hyphens.
func normalizeID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

func hasTitleProperty(props map[string]any) bool {
	for _, v := range props {
		if m, ok := v.(map[string]any); ok {
			if _, ok := m["title"]; ok {
				return true
			}
		}
	}
	return false
}

// pageTitle finds the title property of a page, or the title of a database.
func pageTitle(p Page) string {
	if len(p.Title) > 0 {
		return plainFromRich(p.Title)
	}
	for _, v := range p.Properties {
		prop, ok := v.(map[string]any)
		if !ok || prop["type"] != "title" {
			continue
		}
		if rich, ok := prop["title"].([]any); ok {
			return plainFromRich(rich)
		}
	}
	return ""
}

func plainFromRich(rich []any) string {
	var b strings.Builder
	for _, item := range rich {
		if m, ok := item.(map[string]any); ok {
			if s, ok := m["plain_text"].(string); ok {
				b.WriteString(s)
			}
		}
	}
	return b.String()
}
