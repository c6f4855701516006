package purchase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mohamed3773/MyCProject-sub000/types"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, network types.Network, txRef string, expected types.ExpectedPayment) (*types.PaymentVerificationResult, error) {
	args := m.Called(ctx, network, txRef, expected)
	switch v := args.Get(0).(type) {
	case func(context.Context, types.Network, string, types.ExpectedPayment) *types.PaymentVerificationResult:
		return v(ctx, network, txRef, expected), args.Error(1)
	case *types.PaymentVerificationResult:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTransferrer struct {
	mock.Mock
}

func (m *mockTransferrer) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	args := m.Called(ctx, tokenID)
	return args.String(0), args.Error(1)
}

func (m *mockTransferrer) Transfer(ctx context.Context, tokenID uint64, to string) (*types.TransferResult, error) {
	args := m.Called(ctx, tokenID, to)
	res, _ := args.Get(0).(*types.TransferResult)
	return res, args.Error(1)
}
