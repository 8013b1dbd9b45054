package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/orangecat/internal/client/services"
)

// Setup creates a vault and shows the recovery code once.
func (a *App) Setup(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Email (used to recover the vault)", a.out)
	if err != nil {
		return err
	}
	if err := services.ValidateEmail(email); err != nil {
		return err
	}

	pin, err := a.newPIN()
	if err != nil {
		return err
	}

	code, err := a.authService.Setup(ctx, email, pin)
	if err != nil {
		return err
	}

	a.showRecoveryCode(code)
	return nil
}

// showRecoveryCode prints the code with the instructions to store it.
func (a *App) showRecoveryCode(code string) {
	fmt.Fprintln(a.out, "")
	fmt.Fprintln(a.out, "Your recovery code:")
	fmt.Fprintln(a.out, "")
	fmt.Fprintln(a.out, "    "+code)
	fmt.Fprintln(a.out, "")
	fmt.Fprintln(a.out, "Write it down and keep it safe. It is the only way back in if you forget your PIN.")
	fmt.Fprintln(a.out, "It will not be shown again. Type 'ack' once it is saved.")
}

// Acknowledge confirms the recovery code was saved and unlocks the vault.
func (a *App) Acknowledge(ctx context.Context) error {
	remember, err := confirm(a.reader, "Remember this device (skip PIN on next start)?", a.out)
	if err != nil {
		return err
	}
	if err := a.authService.Acknowledge(ctx, remember); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Vault unlocked.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	pin, err := readSecret("PIN", a.out)
	if err != nil {
		return err
	}
	remember, err := confirm(a.reader, "Remember this device?", a.out)
	if err != nil {
		return err
	}
	if err := a.authService.Login(ctx, pin, remember); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Vault unlocked.")
	a.openMostRecent()
	return nil
}

// Recover unlocks with email and recovery code and sets a new PIN.
func (a *App) Recover(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	code, err := readSecret("Recovery code", a.out)
	if err != nil {
		return err
	}
	pin, err := a.newPIN()
	if err != nil {
		return err
	}

	if err := a.authService.Recover(ctx, email, code, pin); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "PIN reset. Vault unlocked.")
	a.openMostRecent()
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	err := a.authService.Lock(ctx)
	a.current = ""
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Vault locked.")
	return nil
}

// Nuke deletes every vault record after confirmation.
func (a *App) Nuke(ctx context.Context) error {
	ok, err := confirm(a.reader, "This permanently deletes the vault and all chats. Continue?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	if err := a.authService.Nuke(ctx); err != nil {
		return err
	}
	a.current = ""
	fmt.Fprintln(a.out, "Vault erased.")
	return nil
}

// newPIN asks for a PIN twice and validates it.
func (a *App) newPIN() (string, error) {
	pin, err := readSecret(fmt.Sprintf("New PIN (at least %d characters)", services.MinPINLength), a.out)
	if err != nil {
		return "", err
	}
	again, err := readSecret("Confirm PIN", a.out)
	if err != nil {
		return "", err
	}
	if err := services.ValidatePIN(pin, again); err != nil {
		return "", err
	}
	return pin, nil
}
