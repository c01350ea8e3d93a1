package notion

// User is a Notion user or bot.
type User struct {
	Object string `json:"object"`
	ID     string `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Bot    *struct {
		WorkspaceName string `json:"workspace_name"`
	} `json:"bot,omitempty"`
}

// Page is the subset of a page object the actions return.
type Page struct {
	Object         string         `json:"object"`
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	CreatedTime    string         `json:"created_time"`
	LastEditedTime string         `json:"last_edited_time"`
	Archived       bool           `json:"archived"`
	Properties     map[string]any `json:"properties"`
	Title          []any          `json:"title,omitempty"`
}

// List is the paginated envelope returned by query and search.
type List struct {
	Object     string  `json:"object"`
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}
