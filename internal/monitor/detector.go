package monitor

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// InjectionDetector looks for submitted code that talks to the model instead
// of the compiler, and for model output that echoes the instruction prompt.
// Matches are reported, never blocked: the run still proceeds.
type InjectionDetector struct {
	patterns []DetectionPattern
}

// DetectionPattern defines a suspicious pattern to match.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
}

// Severity levels for detected signals.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detection represents a matched pattern.
type Detection struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
}

// NewInjectionDetector creates a detector with default patterns.
func NewInjectionDetector() *InjectionDetector {
	return &InjectionDetector{
		patterns: defaultPatterns(),
	}
}

// AnalyzeCode checks submitted code line by line before it is embedded in
// the prompt.
func (d *InjectionDetector) AnalyzeCode(code string) []Detection {
	var detections []Detection

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		for _, p := range d.patterns {
			if p.Regex.MatchString(line) {
				detections = append(detections, Detection{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Line:     i + 1,
				})

				log.Warn().
					Str("pattern", p.Name).
					Str("severity", p.Severity.String()).
					Int("line", i+1).
					Msg("prompt injection signal in code")
			}
		}
	}

	return detections
}

// AnalyzeOutput checks simulated output for fragments of the instruction
// prompt, which means the model answered about itself rather than the program.
func (d *InjectionDetector) AnalyzeOutput(output string) []Detection {
	var detections []Detection

	outputPatterns := []struct {
		name   string
		substr string
		sev    Severity
	}{
		{"prompt_echo", "You are a secure code runner", SeverityHigh},
		{"rules_echo", "Respond ONLY with strict JSON", SeverityHigh},
		{"input_echo", "Input JSON:", SeverityMedium},
	}

	for _, p := range outputPatterns {
		if strings.Contains(output, p.substr) {
			detections = append(detections, Detection{
				Pattern:  p.name,
				Severity: p.sev.String(),
				Detail:   "instruction prompt leaked into output: " + p.name,
			})
		}
	}

	return detections
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "override_instructions",
			Description: "Asks the model to disregard its instructions",
			Regex:       regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions|rules|prompt)`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "role_change",
			Description: "Tries to assign the model a new role",
			Regex:       regexp.MustCompile(`(?i)\byou\s+are\s+(now|no\s+longer)\b|\bact\s+as\s+(a|an)\b`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "prompt_exfiltration",
			Description: "Asks for the system or instruction prompt",
			Regex:       regexp.MustCompile(`(?i)(reveal|print|show|repeat)\s+(your|the)\s+(system\s+)?(prompt|instructions)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "forged_result",
			Description: "Embeds a pre-built result object for the model to copy",
			Regex:       regexp.MustCompile(`"exitCode"\s*:\s*-?\d+\s*,\s*"durationMs"`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "output_directive",
			Description: "Dictates what the model should respond with",
			Regex:       regexp.MustCompile(`(?i)(respond|reply|answer)\s+(only\s+)?with\b`),
			Severity:    SeverityLow,
		},
	}
}
