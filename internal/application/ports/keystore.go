package ports

import "context"

// KeyStorePort supplies raw validator public key/signature pairs per operator
// and funded offset. Keys at offsets below an operator's funded count are
// already consumed by earlier assignments.
type KeyStorePort interface {
	FetchKeys(ctx context.Context, operatorName string, offset, count uint64) (pubkeys [][]byte, signatures [][]byte, err error)
}

// FundedKeySource lists the already funded validator pubkeys per operator,
// hex encoded. The beacon oracle adapter uses it to scope its queries to the
// pool's own validators.
type FundedKeySource interface {
	FundedKeys(ctx context.Context) (map[string][]string, error)
}
