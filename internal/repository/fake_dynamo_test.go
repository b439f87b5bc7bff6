package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type fakeDynamo struct {
	queryOuts   []*dynamodb.QueryOutput
	queryErr    error
	scanOuts    []*dynamodb.ScanOutput
	scanErr     error
	txErr       error
	queryInputs []*dynamodb.QueryInput
	scanInputs  []*dynamodb.ScanInput
	lastTxInput *dynamodb.TransactWriteItemsInput
}

// Query returns queryOuts in order, repeating the last one.
func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return pick(f.queryOuts, len(f.queryInputs)-1, &dynamodb.QueryOutput{}), nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanInputs = append(f.scanInputs, in)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return pick(f.scanOuts, len(f.scanInputs)-1, &dynamodb.ScanOutput{}), nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func pick[T any](outs []T, i int, zero T) T {
	if len(outs) == 0 {
		return zero
	}
	if i >= len(outs) {
		i = len(outs) - 1
	}
	return outs[i]
}
