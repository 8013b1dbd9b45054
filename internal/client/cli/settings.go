package cli

import (
	"context"
	"fmt"
)

// SetAPIKey stores the provider API key encrypted with the master key.
func (a *App) SetAPIKey(ctx context.Context) error {
	key, err := readSecret("API key", a.out)
	if err != nil {
		return err
	}
	if err := a.credentials.Set(ctx, key); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "API key saved.")
	return nil
}

func (a *App) RemoveAPIKey(ctx context.Context) error {
	if err := a.credentials.Remove(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "API key removed.")
	return nil
}
