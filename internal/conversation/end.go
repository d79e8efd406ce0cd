package conversation

var endPhrases = []string{
	"appointment confirmed",
	"thank you",
	"goodbye",
	"that's all",
	"no more questions",
}

// ShouldEnd reports whether the call should hang up after this turn. It looks
// for closing phrases in either the caller's input or the agent's reply.
func ShouldEnd(reply, input string) bool {
	for _, text := range []string{reply, input} {
		normalized := normalizeUtterance(text)
		if containsAny(normalized, endPhrases...) {
			return true
		}
		if wordSet(normalized).any("bye") {
			return true
		}
	}
	return false
}
