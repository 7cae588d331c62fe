package config

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStore is the part of the SSM client used to resolve secrets.
type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewParameterStore builds an SSM client from the default AWS credential chain.
func NewParameterStore(ctx context.Context) (*ssm.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ssm.NewFromConfig(cfg), nil
}

type secretTarget struct {
	name     string
	dst      *string
	required bool
	override bool // replace a value that is already set
}

// ResolveSecrets fills credential fields from the parameter store. Broker
// credentials already present in env or file win over stored ones; database
// host and login always come from the store when postgres is enabled.
func ResolveSecrets(ctx context.Context, store ParameterStore, cfg *Config) error {
	prefix := cfg.App.SSMPrefix
	live := cfg.App.Mode == ModeLive

	targets := []secretTarget{
		{"fyers/client_id", &cfg.Fyers.ClientID, live, false},
		{"fyers/secret_key", &cfg.Fyers.SecretKey, live, false},
		{"fyers/refresh_token", &cfg.Fyers.RefreshToken, live, false},
		{"fyers/pin", &cfg.Fyers.PIN, live, false},
	}
	if cfg.Postgres.Enabled {
		targets = append(targets,
			secretTarget{"postgres/host", &cfg.Postgres.Host, true, true},
			secretTarget{"postgres/user", &cfg.Postgres.User, true, true},
			secretTarget{"postgres/password", &cfg.Postgres.Password, true, true},
		)
	}

	for _, tgt := range targets {
		if *tgt.dst != "" && !tgt.override {
			continue
		}
		val, err := getParameter(ctx, store, prefix+tgt.name, true)
		if err != nil {
			if tgt.required {
				return fmt.Errorf("resolve %s: %w", tgt.name, err)
			}
			continue
		}
		*tgt.dst = val
	}
	return nil
}

func getParameter(ctx context.Context, store ParameterStore, name string, decrypt bool) (string, error) {
	result, err := store.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", err
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}

	return *result.Parameter.Value, nil
}
