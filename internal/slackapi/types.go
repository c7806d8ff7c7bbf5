package slackapi

// Message is one Slack message as returned by the Events API or
// conversations.replies. Only the fields this service reads are mapped.
type Message struct {
	Type        string       `json:"type,omitempty"`
	Subtype     string       `json:"subtype,omitempty"`
	UserID      string       `json:"user,omitempty"`
	BotID       string       `json:"bot_id,omitempty"`
	Text        string       `json:"text,omitempty"`
	TS          string       `json:"ts,omitempty"`
	ThreadTS    string       `json:"thread_ts,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Files       []File       `json:"files,omitempty"`
}

type Attachment struct {
	Text string `json:"text,omitempty"`
}

type File struct {
	Name               string `json:"name,omitempty"`
	Mimetype           string `json:"mimetype,omitempty"`
	URLPrivateDownload string `json:"url_private_download,omitempty"`
}

// UserProfile is the subset of users.info this service reads to resolve
// speaker labels.
type UserProfile struct {
	UserID      string
	DisplayName string
	RealName    string
	Pronouns    string
	IsBot       bool
}

// BotIdentity is the registered identity returned by auth.test.
type BotIdentity struct {
	TeamID string
	UserID string
	BotID  string
	User   string
	Team   string
}
