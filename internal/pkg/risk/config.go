package risk

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

// Config holds the scoring weights and level thresholds. Weights are integer
// percentages and must add up to 100; thresholds are score boundaries.
type Config struct {
	WeightAging     int
	WeightFrequency int
	WeightHistory   int
	WeightTenure    int

	MediumThreshold float64
	HighThreshold   float64
	SevereThreshold float64

	AgingSaturationDays   int
	FrequencySaturation   int
	FrequencyWindowMonths int
}

// DefaultConfig returns the built-in scoring model.
func DefaultConfig() Config {
	return Config{
		WeightAging:           40,
		WeightFrequency:       25,
		WeightHistory:         25,
		WeightTenure:          10,
		MediumThreshold:       25,
		HighThreshold:         50,
		SevereThreshold:       75,
		AgingSaturationDays:   90,
		FrequencySaturation:   5,
		FrequencyWindowMonths: 12,
	}
}

// LoadConfig loads the risk model from environment variables
func LoadConfig() (*Config, error) {
	def := DefaultConfig()
	config := &Config{
		WeightAging:           env.GetEnvInt("RISK_WEIGHT_AGING", def.WeightAging),
		WeightFrequency:       env.GetEnvInt("RISK_WEIGHT_FREQUENCY", def.WeightFrequency),
		WeightHistory:         env.GetEnvInt("RISK_WEIGHT_HISTORY", def.WeightHistory),
		WeightTenure:          env.GetEnvInt("RISK_WEIGHT_TENURE", def.WeightTenure),
		MediumThreshold:       float64(env.GetEnvInt("RISK_THRESHOLD_MEDIUM", int(def.MediumThreshold))),
		HighThreshold:         float64(env.GetEnvInt("RISK_THRESHOLD_HIGH", int(def.HighThreshold))),
		SevereThreshold:       float64(env.GetEnvInt("RISK_THRESHOLD_SEVERE", int(def.SevereThreshold))),
		AgingSaturationDays:   env.GetEnvInt("RISK_AGING_SATURATION_DAYS", def.AgingSaturationDays),
		FrequencySaturation:   env.GetEnvInt("RISK_FREQUENCY_SATURATION", def.FrequencySaturation),
		FrequencyWindowMonths: env.GetEnvInt("RISK_FREQUENCY_WINDOW_MONTHS", def.FrequencyWindowMonths),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c Config) Validate() error {
	for name, w := range map[string]int{
		"RISK_WEIGHT_AGING":     c.WeightAging,
		"RISK_WEIGHT_FREQUENCY": c.WeightFrequency,
		"RISK_WEIGHT_HISTORY":   c.WeightHistory,
		"RISK_WEIGHT_TENURE":    c.WeightTenure,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if sum := c.WeightAging + c.WeightFrequency + c.WeightHistory + c.WeightTenure; sum != 100 {
		return fmt.Errorf("risk weights must add up to 100, got %d", sum)
	}
	if !(0 < c.MediumThreshold && c.MediumThreshold < c.HighThreshold && c.HighThreshold < c.SevereThreshold && c.SevereThreshold <= 100) {
		return errors.New("risk thresholds must be strictly increasing within (0, 100]")
	}
	if c.AgingSaturationDays < 1 || c.FrequencySaturation < 1 || c.FrequencyWindowMonths < 1 {
		return errors.New("risk saturation and window values must be positive")
	}
	return nil
}
