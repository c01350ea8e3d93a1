package slack

// Envelope is the part shared by every Web API response.
type Envelope struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// AuthTestResponse is the auth.test payload.
type AuthTestResponse struct {
	Envelope
	Team   string `json:"team"`
	TeamID string `json:"team_id"`
	User   string `json:"user"`
	UserID string `json:"user_id"`
	URL    string `json:"url"`
}

// MessageResponse is returned by chat.postMessage and chat.update.
type MessageResponse struct {
	Envelope
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// Channel is a conversation as listed by conversations.list.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
	NumMembers int    `json:"num_members"`
}

// ChannelsResponse is the conversations.list payload.
type ChannelsResponse struct {
	Envelope
	Channels         []Channel `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// User is a workspace member.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	IsBot    bool   `json:"is_bot"`
	TZ       string `json:"tz"`
	Profile  struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

// UserResponse is the users.info payload.
type UserResponse struct {
	Envelope
	User User `json:"user"`
}
