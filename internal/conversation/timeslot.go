package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CanonicalSlots is the clinic's slot vocabulary. Time expressions are only
// recognised in so far as they normalise onto labels of this shape.
var CanonicalSlots = []string{"2 PM", "3 PM", "3:30 PM", "4:30 PM", "5 PM", "6 PM"}

var (
	meridiemTimeRe = regexp.MustCompile(`\b(\d{1,2})(?::?(\d{2}))?\s*(a\.?m\b\.?|p\.?m\b\.?)`)
	clockTimeRe    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	compactTimeRe  = regexp.MustCompile(`\b([1-9])([0-5]\d)\b`)
	oclockTimeRe   = regexp.MustCompile(`\b(\d{1,2})\s*o['’]?\s*clock\b`)
	// A bare hour only counts after a word that introduces a time.
	bareHourRe = regexp.MustCompile(`\b(?:at|around|about|by|take|say|make it)\s+(\d{1,2})\b`)
)

// NormalizeSlot extracts the first time expression from text and returns it as
// a slot label ("4:30 PM"). ok is false when no time expression is present.
// Times without a meridiem are read as clinic hours: 8-11 AM, otherwise PM.
func NormalizeSlot(text string) (label string, ok bool) {
	text = strings.ToLower(text)

	if m := meridiemTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		meridiem := "PM"
		if strings.HasPrefix(m[3], "a") {
			meridiem = "AM"
		}
		return formatSlot(hour, minute, meridiem)
	}
	if m := clockTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return formatSlot(hour, minute, "")
	}
	if m := compactTimeRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return formatSlot(hour, minute, "")
	}
	for _, re := range []*regexp.Regexp{oclockTimeRe, bareHourRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			hour, _ := strconv.Atoi(m[1])
			return formatSlot(hour, 0, "")
		}
	}
	return "", false
}

func formatSlot(hour, minute int, meridiem string) (string, bool) {
	if hour < 1 || hour > 12 || minute < 0 || minute > 59 {
		return "", false
	}
	if meridiem == "" {
		meridiem = "PM"
		if hour >= 8 && hour <= 11 {
			meridiem = "AM"
		}
	}
	if minute == 0 {
		return fmt.Sprintf("%d %s", hour, meridiem), true
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, meridiem), true
}

// IsCanonicalSlot reports whether label belongs to CanonicalSlots.
func IsCanonicalSlot(label string) bool {
	for _, s := range CanonicalSlots {
		if s == label {
			return true
		}
	}
	return false
}
