// Package clienttest provides an in-memory EVM backend for tests. It serves
// real signed transactions and receipts and tracks ERC-721 ownership for one
// collection.
package clienttest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mohamed3773/MyCProject-sub000/clients"
)

// Backend is a fake node. Zero values of the error fields mean success.
type Backend struct {
	mu sync.Mutex

	ChainID    *big.Int
	Collection common.Address

	head     uint64
	txs      map[common.Hash]*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
	owners   map[uint64]common.Address
	nonces   map[common.Address]uint64
	calls    map[string]int
	sent     []*ethtypes.Transaction

	ReadErr      error
	EstimateErr  error
	GasPriceErr  error
	SendErr      error
	RevertOnMine bool
	// WithholdReceipts keeps submitted transactions pending forever.
	WithholdReceipts bool
	// OnSend runs before a transaction is accepted.
	OnSend func(tx *ethtypes.Transaction)
}

var _ clients.Backend = (*Backend)(nil)

// New returns an empty chain at block 100.
func New(chainID int64) *Backend {
	return &Backend{
		ChainID:  big.NewInt(chainID),
		head:     100,
		txs:      make(map[common.Hash]*ethtypes.Transaction),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		owners:   make(map[uint64]common.Address),
		nonces:   make(map[common.Address]uint64),
		calls:    make(map[string]int),
	}
}

// NewKey generates a fresh account key.
func NewKey() *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key
}

// Address returns the account address of key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Calls returns how many times method was invoked.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// TotalCalls returns the number of RPC calls of any kind.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// SetHead moves the chain head.
func (b *Backend) SetHead(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = n
}

// SetOwner assigns an ERC-721 token in the collection.
func (b *Backend) SetOwner(tokenID uint64, owner common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owners[tokenID] = owner
}

// Owner returns the current token holder.
func (b *Backend) Owner(tokenID uint64) common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owners[tokenID]
}

// Sent returns every transaction submitted through SendTransaction.
func (b *Backend) Sent() []*ethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*ethtypes.Transaction(nil), b.sent...)
}

// Pay signs a payment from key and stores it as mined in the current head
// block with the given status. logs are attached to the receipt.
func (b *Backend) Pay(key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte, status uint64, logs ...*ethtypes.Log) *ethtypes.Transaction {
	tx := b.sign(key, to, value, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs[tx.Hash()] = tx
	b.receipts[tx.Hash()] = b.receiptLocked(tx, status, logs)
	return tx
}

// PayPending signs a payment that stays in the mempool.
func (b *Backend) PayPending(key *ecdsa.PrivateKey, to common.Address, value *big.Int) *ethtypes.Transaction {
	tx := b.sign(key, to, value, nil)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs[tx.Hash()] = tx
	return tx
}

func (b *Backend) sign(key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte) *ethtypes.Transaction {
	from := Address(key)

	b.mu.Lock()
	nonce := b.nonces[from]
	b.nonces[from]++
	b.mu.Unlock()

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(b.ChainID), key)
	if err != nil {
		panic(err)
	}
	return signed
}

func (b *Backend) receiptLocked(tx *ethtypes.Transaction, status uint64, logs []*ethtypes.Log) *ethtypes.Receipt {
	for i, lg := range logs {
		lg.TxHash = tx.Hash()
		lg.BlockNumber = b.head
		lg.Index = uint(i)
	}
	return &ethtypes.Receipt{
		Type:        tx.Type(),
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas(),
		BlockNumber: new(big.Int).SetUint64(b.head),
		Logs:        logs,
	}
}

func (b *Backend) count(method string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[method]++
	return b.ReadErr
}

func (b *Backend) TransactionByHash(_ context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	if err := b.count("TransactionByHash"); err != nil {
		return nil, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := b.receipts[hash]
	return tx, !mined, nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if err := b.count("TransactionReceipt"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	if err := b.count("BlockNumber"); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := b.count("CallContract"); err != nil {
		return nil, err
	}
	if msg.To == nil || *msg.To != b.Collection {
		return nil, errors.New("execution reverted: unknown contract")
	}
	tokenID, ok := clients.DecodeOwnerOfCall(msg.Data)
	if !ok {
		return nil, errors.New("execution reverted: unsupported call")
	}

	b.mu.Lock()
	owner, exists := b.owners[tokenID]
	b.mu.Unlock()
	if !exists {
		return nil, errors.New("execution reverted: ERC721: invalid token ID")
	}
	return clients.EncodeOwnerOfResult(owner)
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	b.calls["EstimateGas"]++
	err := b.EstimateErr
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return 85_000, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	b.calls["SuggestGasPrice"]++
	err := b.GasPriceErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return big.NewInt(2_000_000_000), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	if err := b.count("PendingNonceAt"); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

// SendTransaction accepts a signed transaction and, unless receipts are
// withheld, mines it into a new block.
func (b *Backend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	b.mu.Lock()
	b.calls["SendTransaction"]++
	sendErr := b.SendErr
	hook := b.OnSend
	b.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}
	if hook != nil {
		hook(tx)
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(b.ChainID), tx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tx.Nonce() != b.nonces[from] {
		return errors.New("nonce too low")
	}
	b.nonces[from]++
	b.txs[tx.Hash()] = tx
	b.sent = append(b.sent, tx)
	if b.WithholdReceipts {
		return nil
	}

	b.mineLocked(tx, from)
	return nil
}

// MinePending mines every submitted transaction that has no receipt yet, in
// submission order, and returns how many were mined.
func (b *Backend) MinePending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, tx := range b.sent {
		if _, mined := b.receipts[tx.Hash()]; mined {
			continue
		}
		from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(b.ChainID), tx)
		if err != nil {
			continue
		}
		b.mineLocked(tx, from)
		n++
	}
	return n
}

// mineLocked puts tx in a new block. A safeTransferFrom moves the token when
// the sender currently owns it.
func (b *Backend) mineLocked(tx *ethtypes.Transaction, from common.Address) {
	b.head++
	status := ethtypes.ReceiptStatusSuccessful
	if b.RevertOnMine {
		status = ethtypes.ReceiptStatusFailed
	} else if tx.To() != nil && *tx.To() == b.Collection {
		src, dst, tokenID, ok := clients.DecodeSafeTransferFromCall(tx.Data())
		if !ok || src != from || b.owners[tokenID] != from {
			status = ethtypes.ReceiptStatusFailed
		} else {
			b.owners[tokenID] = dst
		}
	}
	b.receipts[tx.Hash()] = b.receiptLocked(tx, status, nil)
}
