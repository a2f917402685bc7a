package auth

import (
	"context"
	"time"
)

// pushTokenRetryDelay is the wait before the single retry of a failed registration.
const pushTokenRetryDelay = 1500 * time.Millisecond

// RegisterPushToken registers pushToken for the stored session, retrying
// once after a short delay.
func (s *Service) RegisterPushToken(ctx context.Context, pushToken string) error {
	token := s.session.Token()
	if token == "" {
		return ErrNotLoggedIn
	}
	err := s.remote.RegisterDeviceToken(ctx, token, pushToken)
	if err == nil {
		return nil
	}
	s.logger.Warn("push token registration failed, retrying", "err", err)

	t := time.NewTimer(s.retryDelay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return s.remote.RegisterDeviceToken(ctx, token, pushToken)
}

func (s *Service) retryDelay() time.Duration {
	if s.pushRetryDelay > 0 {
		return s.pushRetryDelay
	}
	return pushTokenRetryDelay
}
