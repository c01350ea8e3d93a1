package jira

// Issue represents a Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields is the subset of issue fields returned by get_issue.
type IssueFields struct {
	Summary   string   `json:"summary"`
	IssueType *Named   `json:"issuetype,omitempty"`
	Status    *Named   `json:"status,omitempty"`
	Priority  *Named   `json:"priority,omitempty"`
	Assignee  *User    `json:"assignee,omitempty"`
	Reporter  *User    `json:"reporter,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Created   string   `json:"created,omitempty"`
	Updated   string   `json:"updated,omitempty"`
	Project   *Project `json:"project,omitempty"`
}

// Named is any Jira object identified by id and name.
type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project represents a Jira project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// User represents a Jira user.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
}

// Comment represents a Jira comment.
type Comment struct {
	ID      string `json:"id"`
	Self    string `json:"self"`
	Created string `json:"created"`
}

// Transition is an available workflow transition.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   Named  `json:"to"`
}

// TransitionsResponse is returned by GET /issue/{key}/transitions.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}
