// Package normalize turns loosely structured model text into a strict run
// outcome. Nothing in this package panics or returns an error past its
// caller: every failure becomes a well-formed error outcome.
package normalize

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Strategy names one way of locating a JSON object inside model text.
type Strategy string

const (
	StrategyFenced Strategy = "fenced"
	StrategyBraces Strategy = "braces"
	StrategyRaw    Strategy = "raw"
)

// Extractor pulls a JSON candidate out of text. ok is false when the
// strategy does not apply to the text at all.
type Extractor func(text string) (candidate string, ok bool)

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ExtractFenced returns the contents of the first markdown code fence.
func ExtractFenced(text string) (string, bool) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ExtractBraces returns the substring between the first '{' and the last '}'.
func ExtractBraces(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ExtractRaw returns the text unchanged.
func ExtractRaw(text string) (string, bool) {
	return strings.TrimSpace(text), true
}

type step struct {
	strategy Strategy
	extract  Extractor
}

var chain = []step{
	{StrategyFenced, ExtractFenced},
	{StrategyBraces, ExtractBraces},
	{StrategyRaw, ExtractRaw},
}

// Parsed is a successfully located JSON object.
type Parsed struct {
	Value    gjson.Result
	Strategy Strategy
}

// Unparseable explains why no strategy produced a JSON object.
type Unparseable struct {
	Reason string
}

func (u *Unparseable) Error() string { return u.Reason }

// Parse runs the extraction chain. The first strategy that applies to the
// text decides the outcome: a fenced block that does not hold a JSON object
// is unparseable even when an object appears elsewhere in the text.
func Parse(text string) (Parsed, *Unparseable) {
	for _, s := range chain {
		candidate, ok := s.extract(text)
		if !ok {
			continue
		}
		if why := objectError(candidate); why != "" {
			return Parsed{}, &Unparseable{Reason: why}
		}
		return Parsed{Value: gjson.Parse(candidate), Strategy: s.strategy}, nil
	}
	return Parsed{}, &Unparseable{Reason: "no JSON object found"}
}

func objectError(candidate string) string {
	if candidate == "" {
		return "unexpected end of JSON input"
	}
	if !gjson.Valid(candidate) {
		return "invalid JSON"
	}
	if !gjson.Parse(candidate).IsObject() {
		return "JSON value is not an object"
	}
	return ""
}
