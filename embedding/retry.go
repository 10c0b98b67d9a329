// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package embedding

import (
	"context"
	"log/slog"
	"time"
)

// maxRetryDelay caps the wait between two attempts.
const maxRetryDelay = 30 * time.Second

// RetryWithBackoff calls operation until it succeeds, maxAttempts calls
// have been made, or ctx is done. The wait before attempt n+1 is
// baseDelay * 2^(n-1), capped at maxRetryDelay. The last operation error is
// returned unchanged so callers can match on it.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		switch {
		case err == nil:
			if attempt > 1 {
				slog.Debug("embedding call succeeded after retry", "attempt", attempt)
			}
			return nil
		case attempt == maxAttempts:
			return err
		}

		slog.Debug("embedding call failed, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "err", err)

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
