package transfer

type RelayMedia struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// RelayPublishRequest is one payload unit sent to the publishing gateway.
type RelayPublishRequest struct {
	AccountID   string         `json:"account_id"`
	AccessToken string         `json:"access_token"`
	Text        string         `json:"text"`
	Media       []RelayMedia   `json:"media,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	ReplyTo     string         `json:"reply_to,omitempty"`
	Sequence    int            `json:"sequence"`
	Total       int            `json:"total"`
}

type RelayPublishResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
