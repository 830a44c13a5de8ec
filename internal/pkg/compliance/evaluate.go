package compliance

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/ManuelReschke/CollectFox/app/models"
)

// Contact is one sent collection contact.
type Contact struct {
	Channel string    `json:"channel"`
	At      time.Time `json:"at"`
}

// Snapshot is everything evaluation looks at. It is loaded once per call so
// evaluation itself never touches storage.
type Snapshot struct {
	Account   models.Account
	Contacts  []Contact
	Documents []string
}

type CheckResult struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Channel     string `json:"channel,omitempty"`
	Compliant   bool   `json:"compliant"`
	Detail      string `json:"detail,omitempty"`
}

type RegulationStatus struct {
	Name         string        `json:"name"`
	Jurisdiction string        `json:"jurisdiction"`
	Compliant    bool          `json:"compliant"`
	Checks       []CheckResult `json:"checks"`
}

// Report is the outcome of one evaluation. Overall is the AND of every check.
type Report struct {
	AccountID    uint               `json:"account_id"`
	Jurisdiction string             `json:"jurisdiction"`
	Channel      string             `json:"channel,omitempty"`
	Overall      bool               `json:"overall_status"`
	Regulations  []RegulationStatus `json:"regulations"`
	EvaluatedAt  time.Time          `json:"evaluated_at"`
}

// Failed lists "REGULATION/rule" for every failed check.
func (r Report) Failed() []string {
	var out []string
	for _, reg := range r.Regulations {
		for _, c := range reg.Checks {
			if !c.Compliant {
				out = append(out, reg.Name+"/"+c.Rule)
			}
		}
	}
	return out
}

// FailedRegulations lists the names of non-compliant regulations.
func (r Report) FailedRegulations() []string {
	var out []string
	for _, reg := range r.Regulations {
		if !reg.Compliant {
			out = append(out, reg.Name)
		}
	}
	return out
}

const regulationJurisdiction = "JURISDICTION"

// Evaluate checks a snapshot against every applicable regulation. With an
// empty channel only channel-independent rules are evaluated; otherwise rules
// bound to that channel are evaluated as well. Anything that cannot be
// evaluated fails closed.
func Evaluate(registry *Registry, snap Snapshot, channel string, now time.Time) Report {
	report := Report{
		AccountID:    snap.Account.ID,
		Jurisdiction: snap.Account.Jurisdiction,
		Channel:      channel,
		EvaluatedAt:  now,
		Overall:      true,
	}

	if channel != "" && !knownChannels[channel] {
		report.Overall = false
		report.Regulations = []RegulationStatus{failClosed("channel", fmt.Sprintf("unknown channel %q", channel), snap.Account.Jurisdiction)}
		return report
	}

	regs := registry.For(snap.Account.Jurisdiction)
	if len(regs) == 0 {
		report.Overall = false
		report.Regulations = []RegulationStatus{failClosed("jurisdiction",
			fmt.Sprintf("no regulations known for jurisdiction %q", snap.Account.Jurisdiction), snap.Account.Jurisdiction)}
		return report
	}

	for _, reg := range regs {
		status := RegulationStatus{Name: reg.Name, Jurisdiction: reg.Jurisdiction, Compliant: true, Checks: []CheckResult{}}
		for _, rule := range reg.Rules.rules {
			if rule.Channel() != "" && rule.Channel() != channel {
				continue
			}
			res := evaluateRule(rule, snap, now)
			if !res.Compliant {
				status.Compliant = false
				report.Overall = false
			}
			status.Checks = append(status.Checks, res)
		}
		report.Regulations = append(report.Regulations, status)
	}
	return report
}

func failClosed(rule, detail, jurisdiction string) RegulationStatus {
	return RegulationStatus{
		Name:         regulationJurisdiction,
		Jurisdiction: jurisdiction,
		Compliant:    false,
		Checks:       []CheckResult{{Rule: rule, Description: "rule set must be resolvable", Compliant: false, Detail: detail}},
	}
}

func evaluateRule(rule Rule, snap Snapshot, now time.Time) CheckResult {
	res := CheckResult{Rule: rule.Kind(), Description: rule.Describe(), Channel: rule.Channel()}

	switch r := rule.(type) {
	case ContactFrequency:
		since := now.Add(-r.Window)
		count := 0
		for _, c := range snap.Contacts {
			if c.At.Before(since) || c.At.After(now) {
				continue
			}
			if r.ForChannel != "" && c.Channel != r.ForChannel {
				continue
			}
			count++
		}
		res.Compliant = count < r.Max
		res.Detail = fmt.Sprintf("%d of %d contacts used", count, r.Max)

	case QuietHours:
		if snap.Account.Timezone == "" {
			res.Detail = "account has no timezone"
			return res
		}
		loc, err := time.LoadLocation(snap.Account.Timezone)
		if err != nil {
			res.Detail = fmt.Sprintf("unknown timezone %q", snap.Account.Timezone)
			return res
		}
		hour := now.In(loc).Hour()
		res.Compliant = hour >= r.StartHour && hour < r.EndHour
		res.Detail = fmt.Sprintf("local hour %02d", hour)

	case ChannelConsent:
		switch r.ForChannel {
		case models.ChannelSMS:
			res.Compliant = snap.Account.SMSOptIn
		case models.ChannelEmail:
			res.Compliant = snap.Account.EmailOptIn
		}
		if !res.Compliant {
			res.Detail = "no consent on record"
		}

	case RequiredDisclosure:
		for _, d := range snap.Documents {
			if d == r.DocumentType {
				res.Compliant = true
				break
			}
		}
		if !res.Compliant {
			res.Detail = r.DocumentType + " has not been generated"
		}

	default:
		res.Detail = "rule cannot be evaluated"
	}
	return res
}
