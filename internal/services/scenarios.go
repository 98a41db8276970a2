package services

import (
	"sort"
	"strings"
)

// Scenario names a business event that moves money between two accounts.
type Scenario string

const (
	ScenarioPaymentSuccess             Scenario = "payment_success"
	ScenarioRefundApproved             Scenario = "refund_approved"
	ScenarioRefundProcessedSuccess     Scenario = "refund_processed_success"
	ScenarioRefundFailed               Scenario = "refund_failed"
	ScenarioWalletPayout               Scenario = "wallet_payout"
	ScenarioWithdrawalApproved         Scenario = "withdrawal_approved"
	ScenarioWithdrawalProcessedSuccess Scenario = "withdrawal_processed_success"
	ScenarioWithdrawalFailed           Scenario = "withdrawal_failed"
)

const (
	reversalPrefix         = "REV"
	reversalScenarioPrefix = "reversal:"
)

type scenarioRule struct {
	DebitAccount    string
	CreditAccount   string
	RefPrefix       string
	DebitNarrative  string
	CreditNarrative string
}

// scenarioRules is the static posting table. Each scenario owns its own
// debit/credit account pair in the chart of accounts.
var scenarioRules = map[Scenario]scenarioRule{
	ScenarioPaymentSuccess:             {"1001", "1002", "PAY", "Payment received", "Sales revenue"},
	ScenarioRefundApproved:             {"1003", "1004", "RFA", "Refund issued", "Refund payable"},
	ScenarioRefundProcessedSuccess:     {"1005", "1006", "RFP", "Refund payout", "Bank transfer for refund"},
	ScenarioRefundFailed:               {"1007", "1008", "RFF", "Refund failed", "Revenue restored"},
	ScenarioWalletPayout:               {"1009", "1010", "WLT", "Wallet expense", "Wallet liability"},
	ScenarioWithdrawalApproved:         {"1011", "1012", "WDA", "Wallet payout", "Payout clearing"},
	ScenarioWithdrawalProcessedSuccess: {"1013", "1014", "WDP", "Payout processed", "Bank payout"},
	ScenarioWithdrawalFailed:           {"1015", "1016", "WDF", "Payout failed", "Wallet liability restored"},
}

// Scenarios returns every known posting scenario in a stable order.
func Scenarios() []Scenario {
	out := make([]Scenario, 0, len(scenarioRules))
	for s := range scenarioRules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReversalScenario is the scenario recorded on the compensating pair.
func ReversalScenario(original string) string {
	return reversalScenarioPrefix + original
}

func isReversalScenario(s string) bool {
	return strings.HasPrefix(s, reversalScenarioPrefix)
}
