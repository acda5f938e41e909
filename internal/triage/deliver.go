package triage

import (
	"context"
	"errors"
	"strconv"

	"github.com/spec-kit/ticket-triage/internal/notify"
)

type channelSplitter interface {
	Channels() []notify.Notifier
}

type channelNamer interface {
	Channel() string
}

// deliver sends msg as one durable step per channel of n, named
// "<step>:<channel>". A retry or resumed run only resends on channels whose
// step has not completed. Notifiers that cannot be split run as a single step.
func deliver(ctx context.Context, steps *StepRunner, runID, step string, n notify.Notifier, msg notify.Message) error {
	splitter, ok := n.(channelSplitter)
	if !ok {
		return steps.Do(ctx, runID, step, nil, func(ctx context.Context) (any, error) {
			return true, n.Notify(ctx, msg)
		})
	}

	var errs []error
	seen := make(map[string]int)
	for _, ch := range splitter.Channels() {
		name := "custom"
		if named, ok := ch.(channelNamer); ok {
			name = named.Channel()
		}
		seen[name]++
		if seen[name] > 1 {
			name += "-" + strconv.Itoa(seen[name])
		}

		ch := ch
		err := steps.Do(ctx, runID, step+":"+name, nil, func(ctx context.Context) (any, error) {
			return true, ch.Notify(ctx, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
