package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/wolfman30/derma-voice-agent/internal/directory"
)

// Intent is what a single utterance says, as far as the booking dialogue cares.
type Intent struct {
	Greeting  bool   // hello, hi, need
	Booking   bool   // mentions a dermatologist, doctor or appointment
	Affirm    bool   // yes, proceed, confirm, book
	Negate    bool   // no, cancel
	Show      bool   // yes, show, see
	Name      string // caller's first name, title-cased
	DoctorID  string // doctor referenced by surname or id
	Slot      string // normalised slot label
	HasTime   bool
	Utterance string
}

// IntentExtractor turns free text into an Intent. The scripted engine's
// transition table only reads Intents, so a model-based extractor can replace
// the keyword one.
type IntentExtractor interface {
	Extract(utterance string) Intent
}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z'-]*)`),
	regexp.MustCompile(`(?i)\bi'm ([a-z][a-z'-]*)`),
	regexp.MustCompile(`(?i)\bi am ([a-z][a-z'-]*)`),
	regexp.MustCompile(`(?i)\bthis is ([a-z][a-z'-]*)`),
	regexp.MustCompile(`(?i)\b([a-z][a-z'-]*) here\b`),
}

// Words that follow "I'm" or precede "here" without being a name.
var notNames = map[string]bool{
	"a": true, "an": true, "the": true, "not": true, "just": true, "looking": true,
	"calling": true, "trying": true, "interested": true, "fine": true, "good": true,
	"okay": true, "ok": true, "here": true, "sorry": true, "available": true,
	"free": true, "ready": true, "sure": true, "also": true, "still": true,
	"going": true, "hoping": true, "wondering": true, "very": true, "so": true,
	"is": true, "am": true, "be": true, "doctor": true, "dermatologist": true,
	"appointment": true, "new": true, "back": true, "in": true, "from": true,
	"having": true, "getting": true, "feeling": true, "asking": true, "checking": true,
	"booking": true, "needing": true, "regarding": true, "thinking": true, "planning": true,
	"about": true, "with": true, "for": true, "at": true, "on": true, "to": true,
	"my": true, "your": true, "his": true, "her": true, "their": true, "our": true,
	"it": true, "that": true, "what": true, "who": true, "there": true, "out": true,
	"glad": true, "happy": true, "done": true, "right": true, "well": true, "great": true,
	"i": true, "you": true, "we": true, "they": true, "me": true, "someone": true, "was": true,
}

// KeywordExtractor is the default IntentExtractor. Matching is keyword based
// against the closed vocabulary of the clinic.
type KeywordExtractor struct {
	dir *directory.Directory
}

// NewKeywordExtractor creates an extractor that resolves doctors against dir.
func NewKeywordExtractor(dir *directory.Directory) *KeywordExtractor {
	return &KeywordExtractor{dir: dir}
}

// Extract implements IntentExtractor.
func (e *KeywordExtractor) Extract(utterance string) Intent {
	normalized := normalizeUtterance(utterance)
	words := wordSet(normalized)

	intent := Intent{
		Utterance: normalized,
		Greeting:  words.any("hello", "hi", "hey") || strings.Contains(normalized, "need"),
		Booking:   containsAny(normalized, "dermatologist", "doctor", "appointment", "dr."),
		Affirm:    words.any("yes", "yeah", "yep", "sure", "ok", "okay") || containsAny(normalized, "proceed", "confirm", "book"),
		Negate:    words.any("no", "nope", "nah") || strings.Contains(normalized, "cancel"),
		Show:      words.any("yes", "yeah", "sure", "ok", "okay") || containsAny(normalized, "show", "see", "list"),
		Name:      extractName(utterance),
	}
	if e.dir != nil {
		if doc, ok := e.dir.Match(normalized); ok {
			intent.DoctorID = doc.ID
		}
	}
	intent.Slot, intent.HasTime = NormalizeSlot(normalized)
	return intent
}

func normalizeUtterance(s string) string {
	s = strings.ReplaceAll(s, "’", "'")
	return strings.ToLower(strings.TrimSpace(s))
}

func extractName(utterance string) string {
	utterance = strings.ReplaceAll(utterance, "’", "'")
	for _, re := range namePatterns {
		for _, m := range re.FindAllStringSubmatch(utterance, -1) {
			candidate := strings.Trim(m[1], "'-")
			if candidate == "" || notNames[strings.ToLower(candidate)] {
				continue
			}
			return titleCase(candidate)
		}
	}
	return ""
}

func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

type words map[string]bool

func wordSet(s string) words {
	set := make(words)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		set[w] = true
	}
	return set
}

func (w words) any(candidates ...string) bool {
	for _, c := range candidates {
		if w[c] {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
