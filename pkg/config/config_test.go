package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
service_name = "btclending"

[database]
dsn = "root:root@tcp(localhost:3306)/btclending"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "btclending", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "marketdata.btc.price", cfg.Kafka.PriceTopic)
	assert.Equal(t, "lending.loan.events", cfg.Kafka.EventTopic)

	assert.InDelta(t, 0.7, cfg.Lending.LoanToValueRatio, 1e-9)
	assert.InDelta(t, 0.8, cfg.Lending.LiquidationThreshold, 1e-9)
	assert.InDelta(t, 0.08, cfg.Lending.InterestRateAnnual, 1e-9)
	assert.Equal(t, 365, cfg.Lending.MaxDurationDays)
	assert.Equal(t, 30, cfg.Lending.GracePeriodDays)
	assert.InDelta(t, 50, cfg.Lending.ExtensionFees["30"], 1e-9)
	assert.InDelta(t, 120, cfg.Lending.ExtensionFees["90"], 1e-9)

	assert.Equal(t, 3, cfg.Custody.RequiredConfirmations)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
[lending]
loan_to_value_ratio = 0.5
grace_period_days = 14

[lending.extension_fees]
30 = 25.0
`))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, cfg.Lending.LoanToValueRatio, 1e-9)
	assert.Equal(t, 14, cfg.Lending.GracePeriodDays)
	assert.InDelta(t, 25, cfg.Lending.ExtensionFees["30"], 1e-9)
}

func TestLoadRejectsMissingServiceName(t *testing.T) {
	_, err := Load(writeConfig(t, `
[database]
dsn = "root:root@tcp(localhost:3306)/btclending"
`))
	assert.Error(t, err)
}

func TestLoadRejectsBadLoanToValue(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
[lending]
loan_to_value_ratio = 1.5
`))
	assert.Error(t, err)
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	_, err := Load(writeConfig(t, `service_name = "btclending"`))
	assert.Error(t, err)
}
