package compliance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
)

// Regulation is a named rule set applying to one jurisdiction code.
// A regulation for "US" also applies to "US-CA", "US-NY" and so on.
type Regulation struct {
	Name         string
	Jurisdiction string
	Disclosure   string
	Rules        RuleSet
}

// NewRegulation builds a regulation and validates its rules.
func NewRegulation(name, jurisdiction, disclosure string, rules ...Rule) (Regulation, error) {
	if name == "" || jurisdiction == "" {
		return Regulation{}, fmt.Errorf("regulation needs a name and a jurisdiction")
	}
	rs, err := NewRuleSet(rules...)
	if err != nil {
		return Regulation{}, fmt.Errorf("regulation %s: %w", name, err)
	}
	return Regulation{Name: name, Jurisdiction: strings.ToUpper(jurisdiction), Disclosure: disclosure, Rules: rs}, nil
}

// Registry maps jurisdictions to their regulations.
type Registry struct {
	regulations []Regulation
	maxWindow   time.Duration
}

func NewRegistry(regs ...Regulation) *Registry {
	r := &Registry{regulations: append([]Regulation(nil), regs...)}
	sort.SliceStable(r.regulations, func(i, j int) bool {
		return len(r.regulations[i].Jurisdiction) < len(r.regulations[j].Jurisdiction)
	})
	for _, reg := range r.regulations {
		for _, rule := range reg.Rules.rules {
			if f, ok := rule.(ContactFrequency); ok && f.Window > r.maxWindow {
				r.maxWindow = f.Window
			}
		}
	}
	return r
}

// For returns the regulations applying to a jurisdiction, broadest first.
func (r *Registry) For(jurisdiction string) []Regulation {
	code := strings.ToUpper(strings.TrimSpace(jurisdiction))
	if code == "" {
		return nil
	}
	var out []Regulation
	for _, reg := range r.regulations {
		if code == reg.Jurisdiction || strings.HasPrefix(code, reg.Jurisdiction+"-") {
			out = append(out, reg)
		}
	}
	return out
}

// MaxWindow is the longest contact-frequency window of any regulation.
func (r *Registry) MaxWindow() time.Duration {
	return r.maxWindow
}

const week = 7 * 24 * time.Hour

// DefaultRegistry returns the built-in regulations.
func DefaultRegistry() *Registry {
	return NewRegistry(
		mustRegulation(NewRegulation("FDCPA", "US",
			"This communication is from a debt collector. This is an attempt to collect a debt and any information obtained will be used for that purpose.",
			ContactFrequency{Max: 7, Window: week},
			QuietHours{StartHour: 8, EndHour: 21},
			RequiredDisclosure{DocumentType: models.DocumentValidationNotice},
		)),
		mustRegulation(NewRegulation("TCPA", "US", "",
			ChannelConsent{ForChannel: models.ChannelSMS},
		)),
		mustRegulation(NewRegulation("ROSENTHAL", "US-CA",
			"The state Rosenthal Fair Debt Collection Practices Act and the federal Fair Debt Collection Practices Act require that, except under unusual circumstances, collectors may not contact you before 8 a.m. or after 9 p.m.",
			ContactFrequency{Max: 7, Window: week},
		)),
		mustRegulation(NewRegulation("NY_DFS", "US-NY",
			"New York City Department of Consumer and Worker Protection license and contact limits apply.",
			ContactFrequency{Max: 2, Window: week},
		)),
		mustRegulation(NewRegulation("CA_ON_CPA", "CA-ON",
			"This collection is governed by the Ontario Collection and Debt Settlement Services Act.",
			ContactFrequency{Max: 3, Window: week},
			QuietHours{StartHour: 7, EndHour: 21},
		)),
		mustRegulation(NewRegulation("UK_FCA", "GB",
			"You can get free and impartial debt advice from MoneyHelper.",
			ContactFrequency{Max: 5, Window: week},
			ChannelConsent{ForChannel: models.ChannelSMS},
		)),
	)
}

func mustRegulation(r Regulation, err error) Regulation {
	if err != nil {
		panic(err)
	}
	return r
}
