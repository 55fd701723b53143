package application

import "context"

// Worker runs scheduled verification passes until ctx is canceled.
type Worker interface {
	Start(ctx context.Context)
}
