package provider

import (
	"encoding/json"
	"strings"
)

// ContentText decodes an OpenAI-style content value. It accepts a plain
// string, or an array whose elements are strings or objects with a text
// field. Anything else yields "".
func ContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		var str string
		if err := json.Unmarshal(p, &str); err == nil {
			b.WriteString(str)
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p, &obj); err == nil {
			b.WriteString(obj.Text)
		}
	}
	return b.String()
}
