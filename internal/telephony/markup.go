// Package telephony serves the call-control webhooks: it maps provider
// payloads onto sessions and answers with XML call markup.
package telephony

import (
	"strconv"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// Apology spoken when a webhook cannot be handled.
const technicalIssueReply = "I'm sorry, there was a technical issue. Please try calling again later."

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML escapes the five XML special characters.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// Markup renders the provider's call-control XML.
type Markup struct {
	Voice         string // Say voice attribute
	RecordTimeout int    // seconds of silence before recording stops
	Action        string // where the recording is posted
}

// DefaultMarkup returns the markup settings used when none are configured.
func DefaultMarkup() Markup {
	return Markup{Voice: "woman", RecordTimeout: 10, Action: "/voice/process-input"}
}

// Reply speaks text, or plays audioURL when one is given, then either records
// the caller's next utterance or hangs up.
func (m Markup) Reply(text, audioURL string, continueCall bool) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString("<Response>")
	m.speak(&b, text, audioURL)
	if continueCall {
		b.WriteString(`<Record timeout="`)
		b.WriteString(strconv.Itoa(m.RecordTimeout))
		b.WriteString(`" finishOnKey="#" action="`)
		b.WriteString(EscapeXML(m.Action))
		b.WriteString(`" method="POST"/>`)
	} else {
		b.WriteString("<Hangup/>")
	}
	b.WriteString("</Response>")
	return b.String()
}

// Error apologises and hangs up.
func (m Markup) Error() string {
	return m.Reply(technicalIssueReply, "", false)
}

func (m Markup) speak(b *strings.Builder, text, audioURL string) {
	if audioURL != "" {
		b.WriteString("<Play>")
		b.WriteString(EscapeXML(audioURL))
		b.WriteString("</Play>")
		return
	}
	b.WriteString(`<Say voice="`)
	b.WriteString(EscapeXML(m.Voice))
	b.WriteString(`">`)
	b.WriteString(EscapeXML(text))
	b.WriteString("</Say>")
}
