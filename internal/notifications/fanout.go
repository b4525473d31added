package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/services"
)

// FanOut delivers each order to every named sender concurrently. One failing transport does
// not stop the others; all failures are joined into the returned error.
type FanOut struct {
	names   []string
	senders map[string]services.NotificationSender
}

var _ services.NotificationSender = (*FanOut)(nil)

// NewFanOut constructs a fan-out over senders keyed by transport name.
func NewFanOut(senders map[string]services.NotificationSender) (*FanOut, error) {
	if len(senders) == 0 {
		return nil, errors.New("notifications: at least one sender is required")
	}
	names := make([]string, 0, len(senders))
	for name, sender := range senders {
		if sender == nil {
			return nil, fmt.Errorf("notifications: sender %q is nil", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &FanOut{names: names, senders: senders}, nil
}

// Send implements services.NotificationSender.
func (f *FanOut) Send(ctx context.Context, order domain.Order) error {
	errs := make([]error, len(f.names))
	var g errgroup.Group
	for i, name := range f.names {
		i, name := i, name
		sender := f.senders[name]
		g.Go(func() error {
			if err := sender.Send(ctx, order); err != nil {
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
