package intake

import (
	"regexp"
	"strings"

	"cityalert/internal/incident"
)

// Summary holds the fields captured from a summary-confirmation sentence.
type Summary struct {
	Description    string
	Location       string
	Classification string
}

// Analysis is the pure reading of one assistant reply. The engine decides
// which parts apply given the current phase.
type Analysis struct {
	// Visible is the reply as shown to the user: a marker on its own or at
	// the end of a line is removed, one inside a sentence becomes its
	// bracketed list.
	Visible string

	HasMarker   bool
	Departments incident.DepartmentSet

	Summary *Summary

	MentionsLocation bool
	MentionsImage    bool
	AsksSubmit       bool
}

const submitQuestion = "Shall I submit this report now?"

var markerRe = regexp.MustCompile(`DEPARTMENT_CLASSIFICATION:\s*\[([^\]]*)\]`)

// summaryPatterns are tried in order; each captures description, location
// and classification.
var summaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)(?:(?:okay|ok|alright|so)[,.!]?\s+)?(?:so,?\s+)?I\s+have\s+that\s+there\s+(?:is|are)\s+(.+?)\s+at\s+(.+?)\.\s*This\s+will\s+be\s+classified\s+under\s+(.+?)\.\s*Is\s+this\s+information\s+correct\s+and\s+complete\??`),
	regexp.MustCompile(`(?is)I\s+have\s+(?:noted|recorded)\s+that\s+(?:there\s+(?:is|are)\s+)?(.+?)\s+at\s+(.+?)\.\s*(?:It|This)\s+(?:will\s+be|has\s+been|is)\s+classified\s+(?:under|as)\s+(.+?)\.\s*Is\s+(?:this|that)\s+(?:information\s+)?correct`),
	regexp.MustCompile(`(?is)To\s+(?:confirm|summarize)[:,]\s*(.+?)\s+at\s+(.+?)\.\s*Departments?:\s*(.+?)\.?\s+(?:Is|Are)\s+(?:this|these\s+details)\s+correct`),
}

// Analyze reads a reply without touching any session state.
func Analyze(reply string) Analysis {
	a := Analysis{Visible: strings.TrimSpace(reply)}

	if m := markerRe.FindStringSubmatch(reply); m != nil {
		a.HasMarker = true
		a.Departments = parseMarker(m[1])
		a.Visible = stripMarker(reply)
	}

	// the model may put the marker inside the summary sentence itself
	inline := markerRe.ReplaceAllString(reply, "[$1]")
	for _, re := range summaryPatterns {
		m := re.FindStringSubmatch(inline)
		if m == nil {
			continue
		}
		a.Summary = &Summary{
			Description:    cleanField(m[1]),
			Location:       cleanField(m[2]),
			Classification: cleanField(m[3]),
		}
		break
	}

	lower := strings.ToLower(a.Visible)
	a.MentionsLocation = strings.Contains(lower, "location")
	a.MentionsImage = strings.Contains(lower, "image")
	a.AsksSubmit = strings.Contains(a.Visible, submitQuestion)
	return a
}

// parseMarker keeps recognized tokens; a marker with none falls back to
// GENERAL.
func parseMarker(raw string) incident.DepartmentSet {
	set := incident.ParseDepartmentList(raw)
	if set.Empty() {
		return incident.DepartmentSet{incident.General}
	}
	return set
}

func stripMarker(reply string) string {
	lines := strings.Split(reply, "\n")
	for i, l := range lines {
		lines[i] = stripLineMarkers(l)
	}
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) == "" && len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(l, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// stripLineMarkers drops a marker that ends its line and keeps the list of
// one followed by more text.
func stripLineMarkers(line string) string {
	locs := markerRe.FindAllStringSubmatchIndex(line, -1)
	if locs == nil {
		return line
	}
	var b strings.Builder
	prev := 0
	for _, loc := range locs {
		b.WriteString(line[prev:loc[0]])
		if strings.TrimSpace(line[loc[1]:]) != "" {
			b.WriteString("[" + line[loc[2]:loc[3]] + "]")
		}
		prev = loc[1]
	}
	b.WriteString(line[prev:])
	return b.String()
}

// FirstDepartment reads the leading token of a free-text classification
// such as "FIRE and MEDICAL" or "[Public Works]".
func FirstDepartment(raw string) (incident.Department, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	for _, sep := range []string{",", " and ", " & ", ";", "/"} {
		if i := strings.Index(strings.ToLower(raw), sep); i >= 0 {
			raw = raw[:i]
		}
	}
	return incident.ParseDepartment(raw)
}

func cleanField(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " \"'*[]")
}

var (
	affirmativeTokens = map[string]struct{}{"yes": {}, "yep": {}, "correct": {}, "submit": {}, "y": {}}
	negativeTokens    = map[string]struct{}{"no": {}, "nope": {}, "incorrect": {}, "n": {}}
)

// NormalizeAnswer trims, lower-cases and drops trailing '.' or '!'.
func NormalizeAnswer(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!")
	return strings.TrimSpace(s)
}

func IsAffirmative(text string) bool {
	_, ok := affirmativeTokens[NormalizeAnswer(text)]
	return ok
}

func IsNegative(text string) bool {
	_, ok := negativeTokens[NormalizeAnswer(text)]
	return ok
}
