package enums

import "fmt"

// WalletLogStatus is the payout ledger state for one deal.
type WalletLogStatus string

const (
	WalletLogStatusPending  WalletLogStatus = "pending"
	WalletLogStatusSettled  WalletLogStatus = "settled"
	WalletLogStatusRefunded WalletLogStatus = "refunded"
	WalletLogStatusOther    WalletLogStatus = "other"
)

var validWalletLogStatuses = []WalletLogStatus{
	WalletLogStatusPending,
	WalletLogStatusSettled,
	WalletLogStatusRefunded,
	WalletLogStatusOther,
}

func (s WalletLogStatus) IsValid() bool {
	for _, candidate := range validWalletLogStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseWalletLogStatus(value string) (WalletLogStatus, error) {
	for _, candidate := range validWalletLogStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet log status %q", value)
}
