// Package exfiltration implements the data-exfiltration monitor (spec
// §4.2): a pattern-based scanner for secrets, URLs, and transport verbs in
// LLM outputs, with trusted-domain awareness. Catalogues and risk
// combination are grounded directly on the source monitor this gateway's
// spec was distilled from.
package exfiltration

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// TransportMethod tags how an exfiltration indicator would carry data out.
type TransportMethod string

const (
	URLEmbedding  TransportMethod = "URL_EMBEDDING"
	EmailCommand  TransportMethod = "EMAIL_COMMAND"
	APICall       TransportMethod = "API_CALL"
	Encoding      TransportMethod = "ENCODING"
	Steganography TransportMethod = "STEGANOGRAPHY"
	SideChannel   TransportMethod = "SIDE_CHANNEL"
)

// Recommendation is the ladder output from spec §4.2.
type Recommendation string

const (
	RecommendAllow  Recommendation = "ALLOW"
	RecommendFlag   Recommendation = "FLAG"
	RecommendRedact Recommendation = "REDACT"
	RecommendBlock  Recommendation = "BLOCK"
)

type sensitivePattern struct {
	name     string
	severity float64
	re       *regexp.Regexp
}

var sensitivePatterns = []sensitivePattern{
	{"api_key", 0.95, regexp.MustCompile(`(?i)\b(sk|pk|api[_-]?key)[-_][A-Za-z0-9]{16,}`)},
	{"password", 0.9, regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`)},
	{"jwt_token", 0.95, regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
	{"aws_key", 1.0, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"private_key", 1.0, regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"database_connection", 0.9, regexp.MustCompile(`(?i)\b(mongodb|mysql|postgresql|redis)://\S+`)},
	{"internal_ip", 0.7, regexp.MustCompile(`\b(10\.\d{1,3}\.\d{1,3}\.\d{1,3}|172\.(1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}|192\.168\.\d{1,3}\.\d{1,3})\b`)},
}

type indicatorPattern struct {
	name     string
	severity float64
	method   TransportMethod
	re       *regexp.Regexp
}

var indicatorPatterns = []indicatorPattern{
	{"url_with_data", 0.9, URLEmbedding, regexp.MustCompile(`(?i)https?://\S+[?&](data|token|key|secret|password|auth|credential)=`)},
	{"email_instruction", 0.95, EmailCommand, regexp.MustCompile(`(?i)(send|email|forward)\s+.{0,40}\bto\b\s+[\w.+-]+@[\w.-]+`)},
	{"webhook_call", 0.85, APICall, regexp.MustCompile(`(?i)(webhook|callback)\s+(url|endpoint)`)},
	{"base64_encoded_url", 0.8, Encoding, regexp.MustCompile(`(?i)base64[^.]{0,20}https?://`)},
	{"curl_command", 0.9, APICall, regexp.MustCompile(`(?i)curl\s+.{0,60}-X\s*POST`)},
	{"fetch_post", 0.9, APICall, regexp.MustCompile(`(?i)fetch\([^)]*method\s*:\s*["']POST["']`)},
}

var suspiciousParams = map[string]struct{}{
	"data": {}, "token": {}, "key": {}, "secret": {}, "password": {}, "auth": {}, "credential": {},
}

// SensitiveMatch is one matched sensitive-data pattern.
type SensitiveMatch struct {
	Type     string  `json:"type"`
	Severity float64 `json:"severity"`
}

// Indicator is one matched exfiltration indicator.
type Indicator struct {
	Name     string          `json:"name"`
	Severity float64         `json:"severity"`
	Method   TransportMethod `json:"method"`
}

// Result is the monitor's contract output.
type Result struct {
	Risk                 float64           `json:"risk"`
	SensitiveData        []SensitiveMatch  `json:"sensitive_data"`
	Indicators           []Indicator       `json:"indicators"`
	URLs                 []string          `json:"urls"`
	Recommendation       Recommendation    `json:"recommendation"`
	HasExfiltrationRisk  bool              `json:"has_exfiltration_risk"`
}

// Monitor scans LLM output for exfiltration risk, keeping a mutable
// trusted-domain allowlist guarded by a reader-preferred lock (spec §5
// "Shared resources").
type Monitor struct {
	mu       sync.RWMutex
	trusted  map[string]struct{}
}

func NewMonitor() *Monitor {
	m := &Monitor{trusted: map[string]struct{}{
		"example.com": {},
		"trusted.org": {},
	}}
	return m
}

func (m *Monitor) AddTrustedDomain(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trusted[strings.ToLower(domain)] = struct{}{}
}

func (m *Monitor) RemoveTrustedDomain(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trusted, strings.ToLower(domain))
}

func (m *Monitor) isTrusted(host string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host = strings.ToLower(host)
	for domain := range m.trusted {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// Scan runs the monitor's full pipeline against output text.
func (m *Monitor) Scan(output string) Result {
	var sensitive []SensitiveMatch
	var maxSensitive float64
	for _, p := range sensitivePatterns {
		if p.re.MatchString(output) {
			sensitive = append(sensitive, SensitiveMatch{Type: p.name, Severity: p.severity})
			if p.severity > maxSensitive {
				maxSensitive = p.severity
			}
		}
	}

	var indicators []Indicator
	var maxIndicator float64
	for _, p := range indicatorPatterns {
		if p.re.MatchString(output) {
			indicators = append(indicators, Indicator{Name: p.name, Severity: p.severity, Method: p.method})
			if p.severity > maxIndicator {
				maxIndicator = p.severity
			}
		}
	}

	urls := urlPattern.FindAllString(output, -1)
	untrustedSuspicious := m.hasUntrustedSuspiciousURL(urls)

	risk := maxSensitive
	if maxIndicator > risk {
		risk = maxIndicator
	}
	if len(sensitive) > 0 && len(indicators) > 0 {
		risk *= 1.3
		if risk > 1.0 {
			risk = 1.0
		}
	}
	if untrustedSuspicious && risk < 0.75 {
		risk = 0.75
	}

	return Result{
		Risk:                risk,
		SensitiveData:       sensitive,
		Indicators:          indicators,
		URLs:                urls,
		Recommendation:      recommendationFor(risk),
		HasExfiltrationRisk: risk >= 0.6,
	}
}

func (m *Monitor) hasUntrustedSuspiciousURL(urls []string) bool {
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if m.isTrusted(u.Host) {
			continue
		}
		for param := range u.Query() {
			if _, ok := suspiciousParams[strings.ToLower(param)]; ok {
				return true
			}
		}
	}
	return false
}

func recommendationFor(risk float64) Recommendation {
	switch {
	case risk >= 0.9:
		return RecommendBlock
	case risk >= 0.7:
		return RecommendRedact
	case risk >= 0.5:
		return RecommendFlag
	default:
		return RecommendAllow
	}
}

// Redact replaces sensitive-data matches with `[<TYPE>_REDACTED]` in
// reverse-position order, leaving untouched regions' byte offsets valid.
func Redact(text string) string {
	type span struct {
		start, end int
		name       string
	}
	var spans []span
	for _, p := range sensitivePatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1], p.name})
		}
	}
	// Sort descending by start so earlier splices don't invalidate later offsets.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start < spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
	out := text
	for _, s := range spans {
		replacement := "[" + strings.ToUpper(s.name) + "_REDACTED]"
		out = out[:s.start] + replacement + out[s.end:]
	}
	return out
}
