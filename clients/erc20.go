package clients

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = erc20.Events["Transfer"].ID

// TokenTransfer is one decoded ERC-20 Transfer event.
type TokenTransfer struct {
	Contract common.Address
	From     common.Address
	To       common.Address
	Value    *big.Int
	LogIndex uint
}

// DecodeTokenTransfers returns the ERC-20 Transfer events emitted by contract
// in receipt. ERC-721 transfers share the event signature but index the token
// id as a fourth topic, so they are skipped.
func DecodeTokenTransfers(receipt *ethtypes.Receipt, contract common.Address) ([]TokenTransfer, error) {
	if receipt == nil {
		return nil, nil
	}

	var out []TokenTransfer
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != contract {
			continue
		}
		if len(lg.Topics) != 3 || lg.Topics[0] != TransferTopic {
			continue
		}
		if len(lg.Data) != 32 {
			return nil, fmt.Errorf("transfer log %d: unexpected data length %d", lg.Index, len(lg.Data))
		}
		out = append(out, TokenTransfer{
			Contract: lg.Address,
			From:     common.BytesToAddress(lg.Topics[1].Bytes()),
			To:       common.BytesToAddress(lg.Topics[2].Bytes()),
			Value:    new(big.Int).SetBytes(lg.Data),
			LogIndex: lg.Index,
		})
	}
	return out, nil
}

// TransferLog builds the log an ERC-20 contract emits for a transfer.
func TransferLog(contract, from, to common.Address, value *big.Int) *ethtypes.Log {
	return &ethtypes.Log{
		Address: contract,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

// PackTokenTransfer builds call data for transfer(to, value).
func PackTokenTransfer(to common.Address, value *big.Int) ([]byte, error) {
	data, err := erc20.Pack("transfer", to, value)
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}
	return data, nil
}
