package events

import (
	"context"
	"errors"
)

// MultiPublisher fans every event out to each of its publishers. Errors are
// joined; one failing publisher does not stop the others.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
