package queue

import "context"

// Job consumes queue messages of one type. Name identifies the job in
// logs; Type selects which messages are dispatched to it.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
