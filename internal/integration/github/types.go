package github

// User is the authenticated account.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
}

// Label is an issue label.
type Label struct {
	Name string `json:"name"`
}

// Issue is the subset of an issue the actions return.
type Issue struct {
	Number      int     `json:"number"`
	Title       string  `json:"title"`
	State       string  `json:"state"`
	HTMLURL     string  `json:"html_url"`
	User        User    `json:"user"`
	Labels      []Label `json:"labels"`
	Comments    int     `json:"comments"`
	CreatedAt   string  `json:"created_at"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}

// Comment is an issue comment.
type Comment struct {
	ID      int64  `json:"id"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}
