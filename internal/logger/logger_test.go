package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	require.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}

func TestAWSRequests(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success"},
		{name: "failure", err: errors.New("NotFoundException"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			requests := NewAWSRequests(zerolog.New(&buf).Level(zerolog.DebugLevel))

			stack := middleware.NewStack("test", func() interface{} { return nil })
			require.NoError(t, requests.Register(stack))

			handler := middleware.DecorateHandler(middleware.HandlerFunc(
				func(ctx context.Context, input interface{}) (interface{}, middleware.Metadata, error) {
					return "ok", middleware.Metadata{}, tt.err
				},
			), stack)

			_, _, err := handler.Handle(context.Background(), struct{}{})
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, buf.String(), "NotFoundException")
			} else {
				require.NoError(t, err)
			}
			require.Contains(t, buf.String(), "aws call")
			require.Contains(t, buf.String(), "duration")
		})
	}
}
