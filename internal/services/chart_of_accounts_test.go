package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletpay/backend/internal/models"
)

func TestNewChartOfAccounts(t *testing.T) {
	t.Run("seed resolves every scenario", func(t *testing.T) {
		chart, err := NewChartOfAccounts(SeedAccounts())
		require.NoError(t, err)

		accounts := chart.Accounts()
		require.Len(t, accounts, 16)
		assert.Equal(t, "1001", accounts[0].AccountID)
		assert.Equal(t, "1016", accounts[15].AccountID)

		for _, s := range Scenarios() {
			rule := scenarioRules[s]
			_, err := chart.Resolve(rule.DebitAccount)
			assert.NoError(t, err, s)
			_, err = chart.Resolve(rule.CreditAccount)
			assert.NoError(t, err, s)
		}
	})

	t.Run("missing account fails startup", func(t *testing.T) {
		var accounts []models.Account
		for _, a := range SeedAccounts() {
			if a.AccountID != "1010" {
				accounts = append(accounts, a)
			}
		}
		_, err := NewChartOfAccounts(accounts)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.Contains(t, err.Error(), "1010")
	})

	t.Run("inactive account fails startup", func(t *testing.T) {
		accounts := SeedAccounts()
		accounts[0].Active = false
		_, err := NewChartOfAccounts(accounts)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.Contains(t, err.Error(), "inactive")
	})
}

func TestScenarios(t *testing.T) {
	all := Scenarios()
	assert.Len(t, all, 8)
	assert.Contains(t, all, ScenarioWalletPayout)

	prefixes := map[string]bool{}
	for _, s := range all {
		rule := scenarioRules[s]
		assert.NotEqual(t, rule.DebitAccount, rule.CreditAccount, s)
		assert.Len(t, rule.RefPrefix, 3, s)
		assert.False(t, prefixes[rule.RefPrefix], "prefix %s reused", rule.RefPrefix)
		prefixes[rule.RefPrefix] = true
	}

	assert.Equal(t, "reversal:payment_success", ReversalScenario("payment_success"))
	assert.True(t, isReversalScenario("reversal:refund_failed"))
	assert.False(t, isReversalScenario("refund_failed"))
}
