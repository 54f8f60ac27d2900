package line

import "encoding/json"

type WebhookRequest struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

type Event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Source     Source  `json:"source"`
	Message    Message `json:"message"`
}

type Source struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseWebhook decodes a verified webhook body into its events.
func ParseWebhook(body []byte) (WebhookRequest, error) {
	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return WebhookRequest{}, err
	}
	return req, nil
}
