package render

import "strings"

// Run is a span of text with optional interactive decorations. Text keeps
// its &-color codes; transports decide how to show them.
type Run struct {
	Text    string `json:"text"`
	Hover   string `json:"hover,omitempty"`
	Suggest string `json:"suggest,omitempty"`
}

// Interactive reports whether the run carries a tooltip or click action.
func (r Run) Interactive() bool {
	return r.Hover != "" || r.Suggest != ""
}

// Message is a rendered chat line.
type Message struct {
	Runs []Run `json:"runs"`
}

// Text returns a message consisting of one plain run.
func Text(s string) Message {
	if s == "" {
		return Message{}
	}
	return Message{Runs: []Run{{Text: s}}}
}

// PlainText concatenates the text of every run, color codes included.
func (m Message) PlainText() string {
	var sb strings.Builder
	for _, r := range m.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

func (m Message) String() string {
	return StripCodes(m.PlainText())
}
