package discord

// Message is a Discord message.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    User   `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// User is a Discord user or bot.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Channel is a guild channel.
type Channel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Name     string `json:"name,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Position int    `json:"position,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// Embed is a rich embed attached to a message.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
}
