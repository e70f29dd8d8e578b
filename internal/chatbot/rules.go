package chatbot

import (
	"errors"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// Intent a canned answer triggered by any of its keywords.
type Intent struct {
	Name     string
	Keywords []string
	Answer   string
}

// RuleMatch result of a rule lookup.
type RuleMatch struct {
	Intent string `json:"intent"`
	Answer string `json:"answer"`
	Score  int    `json:"score"`
}

// RuleEngine keyword intent matcher.
// Patterns are space-padded so a hit always lands on whole words.
type RuleEngine struct {
	intents  []Intent
	patterns []string
	owner    []int // pattern index -> intent index
	vocab    map[string]bool
	ac       *ahocorasick.Automaton
	stop     *stopwords.Stopwords
}

func NewRuleEngine(intents []Intent) (*RuleEngine, error) {
	e := &RuleEngine{intents: intents, vocab: make(map[string]bool), stop: stopwords.MustGet("en")}
	for _, in := range intents {
		for _, kw := range in.Keywords {
			for _, t := range tokenize(kw) {
				e.vocab[t] = true
			}
		}
	}
	seen := make(map[string]bool)
	for i, in := range intents {
		for _, kw := range in.Keywords {
			p := e.normalize(kw)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			e.patterns = append(e.patterns, p)
			e.owner = append(e.owner, i)
		}
	}
	if len(e.patterns) == 0 {
		return nil, errors.New("chatbot: no usable keywords")
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(e.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	e.ac = ac
	return e, nil
}

// Match picks the intent with the most distinct keyword hits. Ties go to the earlier intent.
func (e *RuleEngine) Match(text string) (RuleMatch, bool) {
	haystack := e.normalize(text)
	if haystack == "" {
		return RuleMatch{}, false
	}

	scores := make([]int, len(e.intents))
	hit := make(map[int]bool)
	for _, m := range e.ac.FindAllOverlapping([]byte(haystack)) {
		if m.PatternID < 0 || m.PatternID >= len(e.owner) || hit[m.PatternID] {
			continue
		}
		hit[m.PatternID] = true
		scores[e.owner[m.PatternID]]++
	}

	best := -1
	for i, s := range scores {
		if s > 0 && (best < 0 || s > scores[best]) {
			best = i
		}
	}
	if best < 0 {
		return RuleMatch{}, false
	}
	return RuleMatch{Intent: e.intents[best].Name, Answer: e.intents[best].Answer, Score: scores[best]}, true
}

// tokenize lowercases and splits on anything but letters, digits, '+' and '-'.
// Trailing '-' survives so "O-" stays a blood type.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimLeft(f, "-"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// normalize drops stopwords that no keyword uses. Each kept token is wrapped in
// its own pair of spaces so adjacent keyword hits never share a byte.
func (e *RuleEngine) normalize(s string) string {
	var kept []string
	for _, t := range tokenize(s) {
		if !e.vocab[t] && e.stop.Contains(t) {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return ""
	}
	return " " + strings.Join(kept, "  ") + " "
}

// DefaultIntents the registry's built-in answers.
func DefaultIntents() []Intent {
	return []Intent{
		{
			Name:     "greeting",
			Keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "kumusta"},
			Answer:   "Hello! I can help with donor eligibility, blood types, the donation process, finding donors and active alerts.",
		},
		{
			Name:     "eligibility",
			Keywords: []string{"eligible", "eligibility", "qualify", "requirements", "age limit", "weight", "donate again", "how often"},
			Answer:   "Donors must be 18 to 65 years old, weigh at least 50 kg and be in good health. Whole blood can be given every 3 months.",
		},
		{
			Name:     "blood_types",
			Keywords: []string{"blood type", "blood types", "universal donor", "universal recipient", "compatible", "compatibility", "o+", "o-", "a+", "a-", "b+", "b-", "ab+", "ab-"},
			Answer:   "O- is the universal red cell donor and AB+ the universal recipient. Each donor record carries one of the eight ABO/Rh types.",
		},
		{
			Name:     "donation_process",
			Keywords: []string{"process", "procedure", "steps", "how long", "before donating", "after donating", "screening", "needle"},
			Answer:   "Donation takes about an hour: registration, a short health screening, around 10 minutes of collection, then rest and refreshments.",
		},
		{
			Name:     "find_donors",
			Keywords: []string{"find donor", "find donors", "search donor", "available donors", "donor list", "need blood", "looking donor"},
			Answer:   "Open the Donors page and filter by blood type, municipality or availability to find matching donors.",
		},
		{
			Name:     "alerts",
			Keywords: []string{"alert", "alerts", "emergency", "urgent", "shortage", "critical"},
			Answer:   "Active blood alerts are listed on the Alerts page. Emergency alerts also arrive as notifications.",
		},
		{
			Name:     "registration",
			Keywords: []string{"register", "registration", "sign up", "become donor", "apply"},
			Answer:   "Submit the donor registration form. A health officer reviews it and you receive your login once it is approved.",
		},
	}
}
