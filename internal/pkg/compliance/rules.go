package compliance

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
)

// Rule is a closed set of rule kinds. The unexported marker keeps other
// packages from adding kinds the evaluator does not know about.
type Rule interface {
	Kind() string
	// Channel returns the channel the rule is bound to, "" for every contact.
	Channel() string
	Describe() string
	validate() error
	sealed()
}

const (
	KindContactFrequency   = "contact_frequency"
	KindQuietHours         = "quiet_hours"
	KindChannelConsent     = "channel_consent"
	KindRequiredDisclosure = "required_disclosure"
)

var knownChannels = map[string]bool{
	models.ChannelEmail:  true,
	models.ChannelSMS:    true,
	models.ChannelPortal: true,
	models.ChannelLetter: true,
}

// consentChannels are the channels an account records consent for.
var consentChannels = map[string]bool{
	models.ChannelEmail: true,
	models.ChannelSMS:   true,
}

var knownDocuments = map[string]bool{
	models.DocumentValidationNotice:     true,
	models.DocumentPaymentPlanAgreement: true,
	models.DocumentSuspensionNotice:     true,
	models.DocumentFinalDemand:          true,
}

// ContactFrequency allows at most Max sent contacts within Window.
// An empty ForChannel counts contacts on every channel.
type ContactFrequency struct {
	ForChannel string
	Max        int
	Window     time.Duration
}

func (ContactFrequency) Kind() string      { return KindContactFrequency }
func (r ContactFrequency) Channel() string { return r.ForChannel }
func (ContactFrequency) sealed()           {}

func (r ContactFrequency) Describe() string {
	scope := "all channels"
	if r.ForChannel != "" {
		scope = r.ForChannel
	}
	return fmt.Sprintf("at most %d contacts per %s (%s)", r.Max, formatWindow(r.Window), scope)
}

func (r ContactFrequency) validate() error {
	if r.ForChannel != "" && !knownChannels[r.ForChannel] {
		return fmt.Errorf("contact frequency: unknown channel %q", r.ForChannel)
	}
	if r.Max < 0 {
		return fmt.Errorf("contact frequency: max must not be negative")
	}
	if r.Window <= 0 {
		return fmt.Errorf("contact frequency: window must be positive")
	}
	return nil
}

// QuietHours allows contact only from StartHour (inclusive) to EndHour
// (exclusive) in the account's local time.
type QuietHours struct {
	StartHour int
	EndHour   int
}

func (QuietHours) Kind() string    { return KindQuietHours }
func (QuietHours) Channel() string { return "" }
func (QuietHours) sealed()         {}

func (r QuietHours) Describe() string {
	return fmt.Sprintf("contact only between %02d:00 and %02d:00 local time", r.StartHour, r.EndHour)
}

func (r QuietHours) validate() error {
	if r.StartHour < 0 || r.EndHour > 24 || r.StartHour >= r.EndHour {
		return fmt.Errorf("quiet hours: invalid window %d-%d", r.StartHour, r.EndHour)
	}
	return nil
}

// ChannelConsent requires the account's opt-in for a channel.
type ChannelConsent struct {
	ForChannel string
}

func (ChannelConsent) Kind() string      { return KindChannelConsent }
func (r ChannelConsent) Channel() string { return r.ForChannel }
func (ChannelConsent) sealed()           {}

func (r ChannelConsent) Describe() string {
	return fmt.Sprintf("prior consent required for %s", r.ForChannel)
}

func (r ChannelConsent) validate() error {
	if !consentChannels[r.ForChannel] {
		return fmt.Errorf("channel consent: no consent is recorded for channel %q", r.ForChannel)
	}
	return nil
}

// RequiredDisclosure requires a document to have been generated for the account.
type RequiredDisclosure struct {
	DocumentType string
}

func (RequiredDisclosure) Kind() string    { return KindRequiredDisclosure }
func (RequiredDisclosure) Channel() string { return "" }
func (RequiredDisclosure) sealed()         {}

func (r RequiredDisclosure) Describe() string {
	return fmt.Sprintf("%s must be provided", r.DocumentType)
}

func (r RequiredDisclosure) validate() error {
	if !knownDocuments[r.DocumentType] {
		return fmt.Errorf("required disclosure: unknown document type %q", r.DocumentType)
	}
	return nil
}

// RuleSet is a validated, immutable list of rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates every rule. Invalid definitions never reach evaluation.
func NewRuleSet(rules ...Rule) (RuleSet, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if r == nil {
			return RuleSet{}, fmt.Errorf("rule %d is nil", i)
		}
		if err := r.validate(); err != nil {
			return RuleSet{}, err
		}
		out = append(out, r)
	}
	return RuleSet{rules: out}, nil
}

// Rules returns a copy of the rules.
func (s RuleSet) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

func formatWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	}
	return d.String()
}
