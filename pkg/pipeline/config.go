package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/logging"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid pipeline config")

const (
	// DefaultLookback is one week.
	DefaultLookback = 7 * 24 * time.Hour

	// DefaultBatchSize is the number of lookups resolved per round.
	DefaultBatchSize = 50

	// DefaultProgressEvery is how many discovered patches pass between
	// progress lines.
	DefaultProgressEvery = 25
)

// Config holds pipeline configuration.
type Config struct {
	// ProjectID is the Evergreen project whose patches are exported.
	ProjectID string `validate:"required"`

	// Lookback bounds the listing: patches created before now-Lookback
	// end the stream.
	Lookback time.Duration `validate:"gt=0"`

	// BatchSize is the number of ids resolved per round.
	BatchSize int `validate:"gte=1"`

	// Concurrency caps in-flight lookups within a round. Zero means
	// BatchSize.
	Concurrency int `validate:"gte=0"`

	// ProgressEvery logs a progress line every N discovered patches.
	// Zero disables progress lines.
	ProgressEvery int `validate:"gte=0"`
}

// DefaultConfig returns the default configuration for projectID.
func DefaultConfig(projectID string) Config {
	return Config{
		ProjectID:     projectID,
		Lookback:      DefaultLookback,
		BatchSize:     DefaultBatchSize,
		ProgressEvery: DefaultProgressEvery,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks cfg. Every failure wraps ErrInvalidConfig.
func (c Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// concurrency returns the effective lookup cap.
func (c Config) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return c.BatchSize
}

// Option customises pipeline components.
type Option func(*options)

type options struct {
	logger *zerolog.Logger
	now    func() time.Time
}

// WithLogger sets the base logger. Components derive child loggers
// from it with a component field.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithClock replaces time.Now when computing the lookback cutoff.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// componentLogger returns a child of the configured logger, or of the
// global logger when none was set.
func (o options) componentLogger(component string) zerolog.Logger {
	if o.logger != nil {
		return o.logger.With().Str("component", component).Logger()
	}
	return logging.NewLogger(component)
}
