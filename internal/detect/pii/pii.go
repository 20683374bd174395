// Package pii implements the PII detector and redactor (spec §4.3):
// regex-based entity extraction over a closed type set, with an optional
// pluggable NER strategy, and position-preserving redaction. The
// regex-pattern-table shape is grounded on this codebase's existing
// pattern-based redactor; the closed type set and splice-redaction
// semantics come from the gateway specification.
package pii

import (
	"regexp"
	"sort"
)

// EntityType is one of the closed PII categories.
type EntityType string

const (
	Email           EntityType = "email"
	Phone           EntityType = "phone"
	SSN             EntityType = "ssn"
	CreditCard      EntityType = "credit_card"
	IPAddress       EntityType = "ip_address"
	Name            EntityType = "name"
	Address         EntityType = "address"
	DateOfBirth     EntityType = "date_of_birth"
	PassportNumber  EntityType = "passport_number"
	DriverLicense   EntityType = "driver_license"
	BankAccount     EntityType = "bank_account"
	MedicalRecord   EntityType = "medical_record"
)

// Entity is one detected PII occurrence.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
	Label      string     `json:"label,omitempty"`
}

type regexRule struct {
	typ        EntityType
	confidence float64
	re         *regexp.Regexp
}

// regexRules are the pinned patterns named in spec §4.3.
var regexRules = []regexRule{
	{Email, 0.95, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{Phone, 0.85, regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)},
	{SSN, 0.9, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{CreditCard, 0.9, regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
	{IPAddress, 0.8, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// NERLabeler is the optional zero-shot labeling strategy. Raw labels are
// mapped into the closed type set by MapNERLabel; unmapped labels default
// to Name.
type NERLabeler interface {
	Label(text string) ([]RawLabel, error)
}

// RawLabel is an unmapped entity as returned by an NER backend.
type RawLabel struct {
	Label      string
	Value      string
	Start, End int
	Confidence float64
}

var nerLabelMap = map[string]EntityType{
	"person":        Name,
	"location":      Address,
	"date_of_birth": DateOfBirth,
	"passport":      PassportNumber,
	"driver_license": DriverLicense,
	"bank_account":  BankAccount,
	"medical":       MedicalRecord,
}

// MapNERLabel maps a raw NER label onto the closed entity type set,
// defaulting to Name for anything unrecognized.
func MapNERLabel(raw string) EntityType {
	if t, ok := nerLabelMap[raw]; ok {
		return t
	}
	return Name
}

// Detector extracts PII entities from text using the regex strategy and,
// if configured, an NER backend.
type Detector struct {
	ner NERLabeler
}

func NewDetector(opts ...func(*Detector)) *Detector {
	d := &Detector{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func WithNER(n NERLabeler) func(*Detector) {
	return func(d *Detector) { d.ner = n }
}

// CustomPattern lets a caller supply a name→pattern map producing entities
// of type Name with Label set to the supplied name.
type CustomPattern struct {
	Label   string
	Pattern *regexp.Regexp
}

// Detect runs the regex layer plus any custom patterns, and the NER layer
// if configured, returning entities ordered by position.
func (d *Detector) Detect(text string, custom []CustomPattern) ([]Entity, error) {
	var entities []Entity

	for _, rule := range regexRules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			entities = append(entities, Entity{
				Type:       rule.typ,
				Value:      text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: rule.confidence,
			})
		}
	}

	for _, cp := range custom {
		for _, loc := range cp.Pattern.FindAllStringIndex(text, -1) {
			entities = append(entities, Entity{
				Type:       Name,
				Value:      text[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: 0.75,
				Label:      cp.Label,
			})
		}
	}

	if d.ner != nil {
		raws, err := d.ner.Label(text)
		if err == nil {
			for _, r := range raws {
				entities = append(entities, Entity{
					Type:       MapNERLabel(r.Label),
					Value:      r.Value,
					Start:      r.Start,
					End:        r.End,
					Confidence: r.Confidence,
					Label:      r.Label,
				})
			}
		}
		// NER failure is non-fatal; regex entities still returned.
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities, nil
}

// Redact splices `[<LABEL_OR_TYPE>_REDACTED]` into text for each entity,
// processed in descending start order so earlier offsets stay valid.
func Redact(text string, entities []Entity) string {
	ordered := make([]Entity, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	for _, e := range ordered {
		tag := string(e.Type)
		if e.Label != "" {
			tag = e.Label
		}
		replacement := "[" + upper(tag) + "_REDACTED]"
		if e.Start < 0 || e.End > len(out) || e.Start > e.End {
			continue
		}
		out = out[:e.Start] + replacement + out[e.End:]
	}
	return out
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
