package awsfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSM is an in-memory Parameter Store holding the latest version of each parameter.
type SSM struct {
	mu         sync.Mutex
	parameters map[string]types.Parameter
}

// NewSSM creates an empty fake Parameter Store.
func NewSSM() *SSM {
	return &SSM{parameters: make(map[string]types.Parameter)}
}

func (f *SSM) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	existing, exists := f.parameters[name]
	if exists && !aws.ToBool(params.Overwrite) {
		return nil, &types.ParameterAlreadyExists{Message: aws.String(fmt.Sprintf("parameter %s already exists", name))}
	}

	now := time.Now()
	version := existing.Version + 1
	f.parameters[name] = types.Parameter{
		Name:             params.Name,
		Value:            params.Value,
		Type:             params.Type,
		Version:          version,
		LastModifiedDate: &now,
	}

	return &ssm.PutParameterOutput{Version: version, Tier: types.ParameterTierStandard}, nil
}

func (f *SSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parameter, ok := f.parameters[aws.ToString(params.Name)]
	if !ok {
		return nil, &types.ParameterNotFound{Message: params.Name}
	}
	return &ssm.GetParameterOutput{Parameter: &parameter}, nil
}
