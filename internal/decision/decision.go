// Package decision implements the decision combiner (spec §4.4): it
// selects which detectors run based on context type, aggregates their
// verdicts into a risk score and a structured threat list, and decides
// whether the result should become an incident.
package decision

import (
	"time"

	"rampart/internal/detect/exfiltration"
	"rampart/internal/detect/injection"
)

// ContextType is the kind of content under inspection.
type ContextType string

const (
	ContextInput         ContextType = "input"
	ContextOutput        ContextType = "output"
	ContextSystemPrompt  ContextType = "system_prompt"
)

// Severity is the coarse bucket derived from a threat's confidence.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Threat is one detected issue in the inspected content.
type Threat struct {
	Type              string   `json:"type"`
	Severity          Severity `json:"severity"`
	Confidence        float64  `json:"confidence"`
	Description       string   `json:"description"`
	Indicators        []string `json:"indicators"`
	RecommendedAction string   `json:"recommended_action"`
}

// Result is the inspection result entity from spec §3.
type Result struct {
	ContentHash string    `json:"content_hash"`
	Threats     []Threat  `json:"threats"`
	Risk        float64   `json:"risk"`
	Safe        bool      `json:"safe"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	LatencyMS   float64   `json:"latency_ms"`
}

// Combiner wires the injection detector and exfiltration monitor together
// under the context-type selection rule from spec §4.4.
type Combiner struct {
	Injection    *injection.Detector
	Exfiltration *exfiltration.Monitor
}

func NewCombiner(inj *injection.Detector, exfil *exfiltration.Monitor) *Combiner {
	return &Combiner{Injection: inj, Exfiltration: exfil}
}

// Analyze runs the appropriate detector set for contentHash's context and
// aggregates the result.
func (c *Combiner) Analyze(text string, ctx ContextType) Result {
	start := time.Now()
	var threats []Threat

	switch ctx {
	case ContextInput, ContextSystemPrompt:
		inj := c.Injection.Detect(text)
		if inj.IsInjection {
			indicators := make([]string, 0, len(inj.DetectedPatterns))
			for _, m := range inj.DetectedPatterns {
				indicators = append(indicators, m.Pattern)
			}
			threats = append(threats, Threat{
				Type:              "prompt_injection",
				Severity:          severityFor(inj.Confidence),
				Confidence:        inj.Confidence,
				Description:       "input matched prompt-injection patterns",
				Indicators:        indicators,
				RecommendedAction: lowerRecommendation(string(inj.Recommendation)),
			})
		}
		if phrase, ok := injection.IsJailbreakPhrase(text); ok {
			threats = append(threats, Threat{
				Type:              "jailbreak",
				Severity:          SeverityHigh,
				Confidence:        0.9,
				Description:       "input matched a known jailbreak phrase",
				Indicators:        []string{phrase},
				RecommendedAction: "block",
			})
		}
	case ContextOutput:
		exfil := c.Exfiltration.Scan(text)
		if exfil.HasExfiltrationRisk {
			indicators := make([]string, 0, len(exfil.Indicators)+len(exfil.SensitiveData))
			for _, ind := range exfil.Indicators {
				indicators = append(indicators, ind.Name)
			}
			for _, s := range exfil.SensitiveData {
				indicators = append(indicators, s.Type)
			}
			threats = append(threats, Threat{
				Type:              "data_exfiltration",
				Severity:          severityFor(exfil.Risk),
				Confidence:        exfil.Risk,
				Description:       "output matched data-exfiltration patterns",
				Indicators:        indicators,
				RecommendedAction: lowerRecommendation(string(exfil.Recommendation)),
			})
		}
	}

	risk := 0.0
	for _, t := range threats {
		if t.Confidence > risk {
			risk = t.Confidence
		}
	}

	return Result{
		ContentHash: contentHash(text),
		Threats:     threats,
		Risk:        risk,
		Safe:        risk < 0.5,
		AnalyzedAt:  time.Now().UTC(),
		LatencyMS:   float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func severityFor(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.75:
		return SeverityHigh
	case confidence >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func lowerRecommendation(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 32
		}
		out[i] = c
	}
	return string(out)
}
