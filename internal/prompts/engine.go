// Package prompts implements the text transformations behind the metered
// optimize and analyze endpoints.
package prompts

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
)

// MaxPromptLength is the largest accepted prompt, in characters.
const MaxPromptLength = 20000

const (
	defaultRole      = "You are an expert assistant."
	formatDirective  = "Respond in a clear, structured format."
	longSentenceMark = 30
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
	sentenceEnd     = regexp.MustCompile(`[.!?]+(\s|$)`)
	rolePattern     = regexp.MustCompile(`(?i)^\s*(you are|you're|act as|as an? |imagine you are)`)
	formatPattern   = regexp.MustCompile(`(?i)\b(format|bullet|bullets|list|json|table|markdown|steps|outline|paragraphs?)\b`)
	constraintWords = regexp.MustCompile(`(?i)\b(must|should|only|avoid|do not|don't|never|limit|at most|at least|under \d+)\b`)
	examplePattern  = regexp.MustCompile(`(?i)(e\.g\.|for example|for instance|example:|such as)`)
	fillerPattern   = regexp.MustCompile(`(?i)\b(basically|actually|kind of|sort of|just|really|very)\s+`)
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}']+`)
)

var vagueTerms = map[string]bool{
	"thing": true, "things": true, "stuff": true, "something": true, "somehow": true,
	"etc": true, "whatever": true, "good": true, "nice": true, "better": true,
}

// Optimization is the result of Optimize.
type Optimization struct {
	Original  string   `json:"original"`
	Optimized string   `json:"optimized"`
	Changes   []string `json:"changes"`
}

// Analysis is the result of Analyze. VagueTerms is only filled for
// advanced analysis.
type Analysis struct {
	Words             int      `json:"words"`
	Characters        int      `json:"characters"`
	Sentences         int      `json:"sentences"`
	AvgSentenceLength float64  `json:"avgSentenceLength"`
	ClarityScore      int      `json:"clarityScore"`
	HasRole           bool     `json:"hasRole"`
	HasFormat         bool     `json:"hasFormat"`
	HasConstraints    bool     `json:"hasConstraints"`
	HasExamples       bool     `json:"hasExamples"`
	Suggestions       []string `json:"suggestions"`
	VagueTerms        []string `json:"vagueTerms,omitempty"`
}

// Validate rejects empty and oversized prompts.
func Validate(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "prompt is too long")
	}
	return nil
}

// Optimize tidies the prompt and adds the role and output-format scaffold
// when the prompt lacks them.
func Optimize(prompt string) (Optimization, error) {
	if err := Validate(prompt); err != nil {
		return Optimization{}, err
	}
	out := Optimization{Original: prompt, Changes: []string{}}

	text := normalizeWhitespace(prompt)
	if text != prompt {
		out.Changes = append(out.Changes, "normalized whitespace")
	}

	if stripped := strings.TrimSpace(fillerPattern.ReplaceAllString(text, "")); stripped != text && stripped != "" {
		text = stripped
		out.Changes = append(out.Changes, "removed filler words")
	}

	if !hasTerminalPunctuation(text) {
		text += "."
		out.Changes = append(out.Changes, "closed the final sentence")
	}

	if !rolePattern.MatchString(text) {
		text = defaultRole + "\n\n" + text
		out.Changes = append(out.Changes, "added a role")
	}

	if !formatPattern.MatchString(text) {
		text += "\n\n" + formatDirective
		out.Changes = append(out.Changes, "added an output format")
	}

	out.Optimized = text
	return out, nil
}

// Analyze scores the prompt's clarity and suggests improvements.
func Analyze(prompt string, advanced bool) (Analysis, error) {
	if err := Validate(prompt); err != nil {
		return Analysis{}, err
	}
	text := normalizeWhitespace(prompt)
	words := wordPattern.FindAllString(text, -1)

	a := Analysis{
		Words:          len(words),
		Characters:     utf8.RuneCountInString(text),
		Sentences:      countSentences(text),
		HasRole:        rolePattern.MatchString(text),
		HasFormat:      formatPattern.MatchString(text),
		HasConstraints: constraintWords.MatchString(text),
		HasExamples:    examplePattern.MatchString(text),
		Suggestions:    []string{},
	}
	if a.Sentences > 0 {
		a.AvgSentenceLength = math.Round(float64(a.Words)/float64(a.Sentences)*10) / 10
	}

	score := 50
	if a.HasRole {
		score += 15
	} else {
		a.Suggestions = append(a.Suggestions, "Start by telling the model who it should act as.")
	}
	if a.HasFormat {
		score += 15
	} else {
		a.Suggestions = append(a.Suggestions, "Describe the output format you expect.")
	}
	if a.HasConstraints {
		score += 10
	} else {
		a.Suggestions = append(a.Suggestions, "Add constraints such as length, tone or what to avoid.")
	}
	if a.HasExamples {
		score += 10
	} else {
		a.Suggestions = append(a.Suggestions, "Include an example of a good answer.")
	}
	if a.AvgSentenceLength > longSentenceMark {
		score -= 10
		a.Suggestions = append(a.Suggestions, "Split long sentences into shorter instructions.")
	}
	if a.Words < 5 {
		score -= 10
		a.Suggestions = append(a.Suggestions, "Give more context about the task.")
	}

	if advanced {
		a.VagueTerms = findVagueTerms(words)
		if len(a.VagueTerms) > 0 {
			score -= 5 * min(len(a.VagueTerms), 4)
			a.Suggestions = append(a.Suggestions, "Replace vague words ("+strings.Join(a.VagueTerms, ", ")+") with specifics.")
		}
	}

	a.ClarityScore = max(0, min(100, score))
	return a, nil
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func hasTerminalPunctuation(s string) bool {
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return strings.ContainsRune(".!?:)\"'`", r)
}

func countSentences(s string) int {
	n := len(sentenceEnd.FindAllStringIndex(s, -1))
	if n == 0 && strings.TrimSpace(s) != "" {
		return 1
	}
	if !hasTerminalPunctuation(s) {
		n++
	}
	return n
}

func findVagueTerms(words []string) []string {
	seen := map[string]bool{}
	for _, w := range words {
		lw := strings.ToLower(w)
		if vagueTerms[lw] {
			seen[lw] = true
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
