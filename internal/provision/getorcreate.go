package provision

import "context"

// Provisioner finds or creates a resource identified by name.
type Provisioner[T any] interface {
	Find(ctx context.Context, name string) (T, error)
	Create(ctx context.Context, name string) (T, error)
}

// GetOrCreate returns the resource called name, creating it only when Find
// fails with an error isNotFound accepts. Any other Find error is returned
// without attempting a create. The bool result reports whether Create ran.
func GetOrCreate[T any](ctx context.Context, p Provisioner[T], name string, isNotFound func(error) bool) (T, bool, error) {
	var zero T

	found, err := p.Find(ctx, name)
	if err == nil {
		return found, false, nil
	}
	if !isNotFound(err) {
		return zero, false, err
	}

	created, err := p.Create(ctx, name)
	if err != nil {
		return zero, false, err
	}
	return created, true, nil
}
