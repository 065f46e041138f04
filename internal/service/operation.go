package service

import "context"

type operationKey struct{}

// WithOperationID tags ctx with the inbound interaction driving the call. Registry
// writes record it, so a retried call can recognise its own earlier commit.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationKey{}, id)
}

// OperationID returns the id set by WithOperationID, or "".
func OperationID(ctx context.Context) string {
	id, _ := ctx.Value(operationKey{}).(string)
	return id
}
