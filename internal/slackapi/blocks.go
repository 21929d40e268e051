package slackapi

// Block Kit building blocks, limited to the shapes this tool sends.

// Block is one Block Kit layout block.
type Block struct {
	Type   string        `json:"type"`
	Text   *TextObject   `json:"text,omitempty"`
	Fields []TextObject  `json:"fields,omitempty"`
}

// TextObject is a Block Kit text element.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Header returns a plain-text header block.
func Header(text string) Block {
	return Block{Type: "header", Text: &TextObject{Type: "plain_text", Text: text}}
}

// Section returns a markdown section block.
func Section(markdown string) Block {
	return Block{Type: "section", Text: &TextObject{Type: "mrkdwn", Text: markdown}}
}

// FieldSection returns a two-column section of markdown fields.
func FieldSection(fields ...string) Block {
	objs := make([]TextObject, len(fields))
	for i, f := range fields {
		objs[i] = TextObject{Type: "mrkdwn", Text: f}
	}
	return Block{Type: "section", Fields: objs}
}

// Divider returns a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}
