package live

import (
	"context"
	"errors"

	"github.com/nhirsama/Goster-Ring/src/inter"
)

// Multi 依次发布到多个出口，一个失败不影响其他
type Multi []inter.LivePublisher

func (m Multi) Publish(ctx context.Context, deviceID string, ev inter.LiveEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, deviceID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
