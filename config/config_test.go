package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBrokerEnv(t *testing.T) {
	for _, k := range []string{
		"CLIENT_ID", "SECRET_KEY", "REFRESH_TOKEN", "PIN",
		"FYERS_CLIENT_ID", "FYERS_SECRET_KEY", "FYERS_REFRESH_TOKEN", "FYERS_PIN",
		"APP_MODE", "APP_ENV",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// go test -v --run TestLoadFromEnv
func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	clearBrokerEnv(t)

	t.Setenv("CLIENT_ID", "APP-100")
	t.Setenv("SECRET_KEY", "secret")
	t.Setenv("REFRESH_TOKEN", "refresh")
	t.Setenv("FYERS_PIN", "1234")
	t.Setenv("TRACKER_POLL_INTERVAL", "3s")
	t.Setenv("TRACKER_SYMBOLS", "NSE:SBIN-EQ,NSE:INFY-EQ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "APP-100", cfg.Fyers.ClientID)
	assert.Equal(t, "1234", cfg.Fyers.PIN)
	assert.Equal(t, 3*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Tracker.FreshnessWindow)
	assert.Equal(t, []string{"NSE:SBIN-EQ", "NSE:INFY-EQ"}, cfg.Tracker.Symbols)
	assert.Equal(t, "Asia/Kolkata", cfg.Market.Timezone)
	assert.True(t, cfg.Tracker.EnforceMarketHours)
	assert.Equal(t, 50, cfg.Tracker.MaxSymbols)
	assert.Equal(t, 30, cfg.Tracker.EvictAfterMisses)
}

// go test -v --run TestLoadDotEnvAndYAML
func TestLoadDotEnvAndYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearBrokerEnv(t)

	dotenv := "CLIENT_ID=from-dotenv\nSECRET_KEY=s\nREFRESH_TOKEN=r\nPIN=0000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600))

	yaml := "tracker:\n  poll_interval: 750ms\n  dummy_fallback: false\nmarket:\n  open: \"09:00\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, k := range []string{"CLIENT_ID", "SECRET_KEY", "REFRESH_TOKEN", "PIN"} {
			os.Unsetenv(k)
		}
	})

	assert.Equal(t, "from-dotenv", cfg.Fyers.ClientID)
	assert.Equal(t, 750*time.Millisecond, cfg.Tracker.PollInterval)
	assert.False(t, cfg.Tracker.DummyFallback)
	assert.Equal(t, "09:00", cfg.Market.Open)
}

// go test -v --run TestLoadRequiresCredentialsInLiveMode
func TestLoadRequiresCredentialsInLiveMode(t *testing.T) {
	chdir(t, t.TempDir())
	clearBrokerEnv(t)
	t.Setenv("CLIENT_ID", "only-the-id")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_key")
	assert.Contains(t, err.Error(), "pin")

	t.Setenv("APP_MODE", ModeDummy)
	cfg, err := Load()
	require.NoError(t, err, "dummy mode runs without broker credentials")
	assert.Equal(t, ModeDummy, cfg.App.Mode)
}

// go test -v --run TestValidate
func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			App:     AppConfig{Mode: ModeDummy},
			Tracker: TrackerConfig{PollInterval: time.Second, FreshnessWindow: 5 * time.Second},
		}
	}

	testCases := []struct {
		desc    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid dummy", func(c *Config) {}, false},
		{"unknown mode", func(c *Config) { c.App.Mode = "paper" }, true},
		{"zero poll interval", func(c *Config) { c.Tracker.PollInterval = 0 }, true},
		{"zero freshness", func(c *Config) { c.Tracker.FreshnessWindow = 0 }, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
		{"seed over max symbols", func(c *Config) {
			c.Tracker.MaxSymbols = 1
			c.Tracker.Symbols = []string{"NSE:A-EQ", "NSE:B-EQ"}
		}, true},
		{"live with credentials", func(c *Config) {
			c.App.Mode = ModeLive
			c.Fyers = FyersConfig{ClientID: "a", SecretKey: "b", RefreshToken: "c", PIN: "d"}
		}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type fakeParameterStore struct {
	values map[string]string
	asked  []string
}

func (f *fakeParameterStore) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = append(f.asked, *in.Name)
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

// go test -v --run TestResolveSecrets
func TestResolveSecrets(t *testing.T) {
	store := &fakeParameterStore{values: map[string]string{
		"/vt/fyers/client_id":     "ssm-client",
		"/vt/fyers/secret_key":    "ssm-secret",
		"/vt/fyers/refresh_token": "ssm-refresh",
		"/vt/fyers/pin":           "ssm-pin",
		"/vt/postgres/host":       "db.internal",
		"/vt/postgres/user":       "tracker",
		"/vt/postgres/password":   "pw",
	}}

	cfg := Config{
		App:      AppConfig{Mode: ModeLive, SSMPrefix: "/vt/"},
		Fyers:    FyersConfig{ClientID: "env-client"},
		Postgres: PostgresConfig{Enabled: true, Host: "localhost"},
	}

	require.NoError(t, ResolveSecrets(context.Background(), store, &cfg))

	assert.Equal(t, "env-client", cfg.Fyers.ClientID, "values from env win")
	assert.Equal(t, "ssm-secret", cfg.Fyers.SecretKey)
	assert.Equal(t, "ssm-pin", cfg.Fyers.PIN)
	assert.Equal(t, "db.internal", cfg.Postgres.Host, "database host always comes from the store")
	assert.NotContains(t, store.asked, "/vt/fyers/client_id")
}

// go test -v --run TestResolveSecretsMissingRequired
func TestResolveSecretsMissingRequired(t *testing.T) {
	store := &fakeParameterStore{values: map[string]string{}}
	cfg := Config{App: AppConfig{Mode: ModeLive, SSMPrefix: "/vt/"}}

	err := ResolveSecrets(context.Background(), store, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fyers/client_id")

	cfg.App.Mode = ModeDummy
	assert.NoError(t, ResolveSecrets(context.Background(), store, &cfg))
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "localhost", Port: 5432, User: "postgres", Password: "pw",
		DBName: "volumetracker", SSLMode: "disable", TimeZone: "Asia/Kolkata",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=volumetracker sslmode=disable TimeZone=Asia/Kolkata",
		cfg.DSN())
	assert.Contains(t, cfg.ServerDSN(), "dbname=postgres")
}

// chdir switches the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
