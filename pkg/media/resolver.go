package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvable is returned when a reference cannot be turned into a URL.
var ErrUnresolvable = errors.New("media reference cannot be resolved")

// Resolver turns a media reference into a publicly fetchable URL.
type Resolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// Passthrough resolves references that already are absolute http(s) URLs and
// rejects everything else. The zero value is ready to use.
type Passthrough struct{}

// ResolveURL implements Resolver.
func (Passthrough) ResolveURL(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	return "", fmt.Errorf("%w: %q is not an absolute URL", ErrUnresolvable, ref)
}
