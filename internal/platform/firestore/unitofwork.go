package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

type txContextKey struct{}

// ContextWithTx stamps the transaction onto the context so repository calls
// made inside a unit of work join it.
func ContextWithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok
}

// UnitOfWork runs callbacks inside a Firestore transaction. The callback
// receives a context carrying the transaction; tx-aware repositories pick it
// up via TxFromContext.
type UnitOfWork struct {
	provider *Provider
}

func NewUnitOfWork(provider *Provider) *UnitOfWork {
	return &UnitOfWork{provider: provider}
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return u.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ContextWithTx(ctx, tx))
	})
}
