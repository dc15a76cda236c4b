package session

import (
	"context"
	"fmt"

	"github.com/iamruinous/meshtastic-mesh-gateway/pkg/meshtastic"
)

// WithEdit implements §4.2.5: a multi-record remote config import is
// bracketed by beginEditSettings/commitEditSettings admin messages so the
// device defers flash writes and reboot until the whole batch lands.
// commitEditSettings is sent on every exit path, including fn's error
// path, so the device is never left stuck in edit mode.
func (s *Session) WithEdit(ctx context.Context, dest uint32, fn func(ctx context.Context) error) error {
	if _, err := s.SendAdmin(ctx, dest, meshtastic.NewBeginEditSettings()); err != nil {
		return fmt.Errorf("session: begin edit settings: %w", err)
	}

	fnErr := fn(ctx)

	if _, err := s.SendAdmin(ctx, dest, meshtastic.NewCommitEditSettings()); err != nil {
		if fnErr != nil {
			return fmt.Errorf("session: edit failed (%w) and commit also failed: %w", fnErr, err)
		}
		return fmt.Errorf("session: commit edit settings: %w", err)
	}

	return fnErr
}
