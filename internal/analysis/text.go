package analysis

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// flagThreshold is the aggregate confidence a label needs before it is
// reported.
const flagThreshold = 0.5

// maxTextRunes bounds how much of a description is inspected.
const maxTextRunes = 4096

// ruleFunc inspects normalised text and returns zero or more Findings.
type ruleFunc func(words []string, text string) []Finding

// RuleBasedTextAnalyzer is the default TextAnalyzer. It runs a fixed set of
// keyword rules grouped by label and reports every label whose accumulated
// confidence reaches flagThreshold.
type RuleBasedTextAnalyzer struct {
	rules []ruleFunc
}

// NewRuleBasedTextAnalyzer returns an analyzer loaded with the default rules.
func NewRuleBasedTextAnalyzer() *RuleBasedTextAnalyzer {
	return &RuleBasedTextAnalyzer{
		rules: []ruleFunc{
			keywordRule("toxic", 0.5, toxicTerms),
			keywordRule("insult", 0.6, insultTerms),
			keywordRule("threat", 0.8, threatTerms),
			keywordRule("obscene", 0.6, obsceneTerms),
			keywordRule("identity_hate", 0.3, identityHateTerms),
			phraseRule("threat", 0.9, threatPhrases),
			phraseRule("toxic", 0.6, exclusionPhrases),
			phraseRule("identity_hate", 0.8, identityHatePhrases),
		},
	}
}

// AnalyzeText implements TextAnalyzer.
func (a *RuleBasedTextAnalyzer) AnalyzeText(_ context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return "No text provided."
	}

	labels := a.Flags(text)
	if len(labels) > 0 {
		return "Potential bullying detected. Flags: " + strings.Join(labels, ", ")
	}
	return "No clear bullying indicators detected in text."
}

// Flags returns the sorted labels whose findings reach the threshold.
func (a *RuleBasedTextAnalyzer) Flags(text string) []string {
	if r := []rune(text); len(r) > maxTextRunes {
		text = string(r[:maxTextRunes])
	}
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	scores := make(map[string]float64)
	for _, rule := range a.rules {
		for _, f := range rule(words, lower) {
			scores[f.Label] += f.Confidence
		}
	}

	var labels []string
	for label, score := range scores {
		if score >= flagThreshold {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// keywordRule matches whole words.
func keywordRule(label string, confidence float64, terms []string) ruleFunc {
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return func(words []string, _ string) []Finding {
		var findings []Finding
		for _, w := range words {
			if set[w] {
				findings = append(findings, Finding{Label: label, Term: w, Confidence: confidence})
			}
		}
		return findings
	}
}

// phraseRule matches substrings of the lower-cased text.
func phraseRule(label string, confidence float64, phrases []string) ruleFunc {
	return func(_ []string, text string) []Finding {
		var findings []Finding
		for _, p := range phrases {
			if strings.Contains(text, p) {
				findings = append(findings, Finding{Label: label, Term: p, Confidence: confidence})
			}
		}
		return findings
	}
}

// ── Rule vocabularies ─────────────────────────────────────────────────────────

var toxicTerms = []string{
	"hate", "disgusting", "worthless", "pathetic", "trash", "garbage", "shut",
}

var insultTerms = []string{
	"stupid", "idiot", "loser", "ugly", "fat", "dumb", "freak", "weirdo", "moron", "retard",
}

var threatTerms = []string{
	"kill", "hurt", "beat", "punch", "stab", "destroy", "threaten", "threatened",
}

var obsceneTerms = []string{
	"damn", "crap", "bastard", "bitch", "ass",
}

var identityHateTerms = []string{
	"immigrant", "foreigner", "terrorist", "gay", "homo",
}

var threatPhrases = []string{
	"going to hurt", "gonna hurt", "beat you up", "beat him up", "beat her up",
	"after school", "watch your back", "you're dead", "kill yourself",
}

var exclusionPhrases = []string{
	"nobody likes you", "no one likes you", "not invited", "can't sit with us",
	"left out", "go away",
}

var identityHatePhrases = []string{
	"go back to your country", "your kind", "people like you",
}
