package http

// Cloud API webhook envelope, reduced to the fields the funnel consumes.

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []webhookContact `json:"contacts,omitempty"`
	Messages         []webhookMessage `json:"messages,omitempty"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *textContent        `json:"text,omitempty"`
	Interactive *interactiveContent `json:"interactive,omitempty"`
}

type textContent struct {
	Body string `json:"body"`
}

type interactiveContent struct {
	Type        string        `json:"type"`
	ButtonReply *replyContent `json:"button_reply,omitempty"`
	ListReply   *replyContent `json:"list_reply,omitempty"`
}

type replyContent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
