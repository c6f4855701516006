package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// OwnerOf reads the current holder of tokenID from an ERC-721 collection.
func OwnerOf(ctx context.Context, b ContractBackend, collection common.Address, tokenID uint64) (common.Address, error) {
	data, err := erc721.Pack("ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, fmt.Errorf("pack ownerOf: %w", err)
	}

	out, err := b.CallContract(ctx, ethereum.CallMsg{To: &collection, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call ownerOf(%d): %w", tokenID, err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("ownerOf(%d): empty result", tokenID)
	}

	values, err := erc721.Unpack("ownerOf", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack ownerOf: %w", err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf(%d): unexpected result type %T", tokenID, values[0])
	}
	return owner, nil
}

// PackSafeTransferFrom builds call data for safeTransferFrom(from, to, tokenId).
func PackSafeTransferFrom(from, to common.Address, tokenID uint64) ([]byte, error) {
	data, err := erc721.Pack("safeTransferFrom", from, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("pack safeTransferFrom: %w", err)
	}
	return data, nil
}

// EncodeOwnerOfResult ABI-encodes an ownerOf return value.
func EncodeOwnerOfResult(owner common.Address) ([]byte, error) {
	return erc721.Methods["ownerOf"].Outputs.Pack(owner)
}

// DecodeOwnerOfCall extracts the token id from ownerOf call data.
func DecodeOwnerOfCall(data []byte) (uint64, bool) {
	m := erc721.Methods["ownerOf"]
	if len(data) < 4 || string(data[:4]) != string(m.ID) {
		return 0, false
	}
	values, err := m.Inputs.Unpack(data[4:])
	if err != nil || len(values) != 1 {
		return 0, false
	}
	id, ok := values[0].(*big.Int)
	if !ok || !id.IsUint64() {
		return 0, false
	}
	return id.Uint64(), true
}

// DecodeSafeTransferFromCall extracts the arguments of safeTransferFrom call data.
func DecodeSafeTransferFromCall(data []byte) (from, to common.Address, tokenID uint64, ok bool) {
	m := erc721.Methods["safeTransferFrom"]
	if len(data) < 4 || string(data[:4]) != string(m.ID) {
		return common.Address{}, common.Address{}, 0, false
	}
	values, err := m.Inputs.Unpack(data[4:])
	if err != nil || len(values) != 3 {
		return common.Address{}, common.Address{}, 0, false
	}
	from, ok1 := values[0].(common.Address)
	to, ok2 := values[1].(common.Address)
	id, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !id.IsUint64() {
		return common.Address{}, common.Address{}, 0, false
	}
	return from, to, id.Uint64(), true
}
