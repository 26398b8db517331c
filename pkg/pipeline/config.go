package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/dailyreel/pkg/models"
)

// Backoff is the exponential wait between attempts of a step.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Config controls retries, timeouts and where bundles are written.
type Config struct {
	OutputRoot     string
	MaxAttempts    int
	Backoff        Backoff
	DefaultTimeout time.Duration
	StepTimeouts   map[models.StepName]time.Duration
	// HorizonDays is how far past today a run may be requested.
	HorizonDays  int
	MaxArticles  int
	PollInterval time.Duration
	Location     *time.Location
	// ShortTimeout bounds cutting and uploading the vertical clip after a full run.
	ShortTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		OutputRoot:  "output",
		MaxAttempts: 3,
		Backoff: Backoff{
			Initial:    5 * time.Second,
			Max:        time.Minute,
			Multiplier: 2,
		},
		DefaultTimeout: 10 * time.Minute,
		StepTimeouts: map[models.StepName]time.Duration{
			models.StepFetchNews:       time.Minute,
			models.StepWriteScript:     3 * time.Minute,
			models.StepSynthesizeVoice: 10 * time.Minute,
			models.StepBuildVideo:      30 * time.Minute,
			models.StepBuildThumbnail:  time.Minute,
			models.StepUpload:          30 * time.Minute,
			models.StepCrossPost:       time.Minute,
		},
		HorizonDays:  1,
		MaxArticles:  20,
		PollInterval: 2 * time.Second,
		Location:     time.UTC,
		ShortTimeout: 30 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig. A zero Backoff disables waiting.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.OutputRoot == "" {
		c.OutputRoot = d.OutputRoot
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}

	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}

	if c.HorizonDays < 0 {
		c.HorizonDays = 0
	}

	if c.MaxArticles <= 0 {
		c.MaxArticles = d.MaxArticles
	}

	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}

	if c.ShortTimeout <= 0 {
		c.ShortTimeout = d.ShortTimeout
	}

	if c.Location == nil {
		c.Location = time.UTC
	}

	if c.Backoff.Multiplier < 1 {
		c.Backoff.Multiplier = 1
	}

	if c.Backoff.Max < c.Backoff.Initial {
		c.Backoff.Max = c.Backoff.Initial
	}

	return c
}

func (c Config) timeout(step models.StepName) time.Duration {
	if t, ok := c.StepTimeouts[step]; ok && t > 0 {
		return t
	}

	return c.DefaultTimeout
}

func (c Config) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Backoff.Initial
	b.MaxInterval = c.Backoff.Max
	b.Multiplier = c.Backoff.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}
