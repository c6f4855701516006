package types

import (
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionView is the raw transaction and receipt returned for client-side
// status polling. Receipt is nil while the transaction is pending.
type TransactionView struct {
	Network     Network               `json:"network"`
	Hash        string                `json:"hash"`
	Pending     bool                  `json:"pending"`
	Transaction *ethtypes.Transaction `json:"transaction"`
	Receipt     *ethtypes.Receipt     `json:"receipt,omitempty"`
	ExplorerURL string                `json:"explorerUrl,omitempty"`
}
