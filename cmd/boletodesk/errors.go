package main

import (
	"errors"
	"fmt"

	"boletodesk/internal/console"
	"boletodesk/internal/services"
)

// explainError appends the next step the operator should take.
func explainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrUnauthorized):
		var logout *console.LogoutError
		if errors.As(err, &logout) && logout.Source == console.TokenConfig {
			return fmt.Errorf("%w\nthe token from [backend].token or BOLETODESK_TOKEN was rejected; replace it or run `boletodesk login`", err)
		}
		return fmt.Errorf("%w\nyour credential was rejected and has been cleared; run `boletodesk login`", err)
	case errors.Is(err, console.ErrLocked):
		return fmt.Errorf("%w; wait for it to finish and try again", err)
	case errors.Is(err, services.ErrPartial):
		return fmt.Errorf("%w\ncollection files were uploaded; retry only the fiscal files", err)
	case errors.Is(err, services.ErrConfirmationRequired):
		return fmt.Errorf("%w; pass --yes to confirm", err)
	case errors.Is(err, services.ErrSessionClosed):
		return fmt.Errorf("%w; open it again with `boletodesk session open`", err)
	default:
		return err
	}
}
