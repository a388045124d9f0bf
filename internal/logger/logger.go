package logger

import (
	"context"
	"os"
	"time"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/smithy-go/middleware"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Caller().Stack().Logger()
	} else {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	return logger
}

// AWSRequests logs each AWS API call made through an SDK client with its
// duration. Calls are logged at debug level, failures included, because
// not-found responses are expected while looking up existing resources.
type AWSRequests struct {
	logger zerolog.Logger
}

func NewAWSRequests(logger zerolog.Logger) *AWSRequests {
	return &AWSRequests{logger: logger}
}

// ID implements middleware.InitializeMiddleware.
func (a *AWSRequests) ID() string {
	return "pcasign.AWSRequests"
}

// HandleInitialize implements middleware.InitializeMiddleware.
func (a *AWSRequests) HandleInitialize(
	ctx context.Context,
	in middleware.InitializeInput,
	next middleware.InitializeHandler,
) (middleware.InitializeOutput, middleware.Metadata, error) {
	started := time.Now()

	out, metadata, err := next.HandleInitialize(ctx, in)

	a.logger.Debug().
		Err(err).
		Str("service", awsmiddleware.GetServiceID(ctx)).
		Str("operation", awsmiddleware.GetOperationName(ctx)).
		Dur("duration", time.Since(started)).
		Msg("aws call")

	return out, metadata, err
}

// Register adds the logger to an SDK middleware stack, for use in aws.Config.APIOptions.
func (a *AWSRequests) Register(stack *middleware.Stack) error {
	return stack.Initialize.Add(a, middleware.After)
}
