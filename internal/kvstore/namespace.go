package kvstore

import "context"

// namespaced prefixes every key, giving callers an isolated keyspace over a
// shared backend.
type namespaced struct {
	inner  Store
	prefix string
}

// Namespaced returns a view of store where every key is prefixed with
// prefix + ":".
func Namespaced(store Store, prefix string) Store {
	return &namespaced{inner: store, prefix: prefix + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.prefix+key)
}
