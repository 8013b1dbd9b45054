package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/orangecat/internal/client/backup"
	"github.com/dmitrijs2005/orangecat/internal/client/services"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/filex"
)

// Backup writes the encrypted vault records to a dated file in the backup
// directory. Pending chat edits are flushed first.
func (a *App) Backup(ctx context.Context) error {
	if err := a.chats.Flush(ctx); err != nil {
		return err
	}

	archive, err := backup.Export(ctx, a.repo, a.now())
	if err != nil {
		return err
	}

	dir, err := filex.EnsureDir(a.config.BackupDir)
	if err != nil {
		return fmt.Errorf("backup dir: %w", common.ErrStorageUnavailable)
	}

	var buf bytes.Buffer
	if _, err := archive.WriteTo(&buf); err != nil {
		return err
	}

	path := filepath.Join(dir, backup.FileName(a.now()))
	if err := filex.WriteSecureFile(path, buf.Bytes()); err != nil {
		a.log.Error(ctx, "failed to write backup", "path", path, "error", err)
		return fmt.Errorf("write backup: %w", common.ErrStorageUnavailable)
	}

	fmt.Fprintln(a.out, "Backup saved to", path)
	return nil
}

// Restore replaces the local vault with the records from a backup file.
// The vault is locked afterwards; unlock with the PIN of the backed-up account.
func (a *App) Restore(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("backup file path is required: %w", common.ErrValidation)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup: %w", common.ErrNotFound)
	}
	defer f.Close()

	archive, err := backup.Read(f)
	if err != nil {
		return err
	}

	ok, err := confirm(a.reader, "Restoring replaces the vault on this device. Continue?", a.out)
	if err != nil || !ok {
		return err
	}

	if a.state() == services.StateUnlocked {
		if err := a.Lock(ctx); err != nil {
			return err
		}
	}

	if err := backup.Import(ctx, a.repo, archive); err != nil {
		return err
	}
	if err := a.authService.Resume(ctx); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Backup restored. Type 'login' to unlock.")
	return nil
}
