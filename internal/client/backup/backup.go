// Package backup exports the vault's persisted blobs to a portable JSON file
// and restores them.
//
// Blobs travel verbatim: the auth record and the encrypted collections are
// already ciphertext, so a backup file is only as sensitive as the device
// storage it came from. The session token is never exported.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/common"
)

const (
	AppName       = "OrangeCat"
	FormatVersion = "v3"
)

// Archive is the backup file layout. Absent blobs are encoded as null.
type Archive struct {
	Auth      *string `json:"auth"`
	Chats     *string `json:"chats"`
	Email     *string `json:"email"`
	APIKey    *string `json:"apiKey"`
	Timestamp int64   `json:"timestamp"`
	Version   string  `json:"version"`
	App       string  `json:"app"`
}

// FileName is the suggested name of a backup taken at t.
func FileName(t time.Time) string {
	return "orange-cat-backup-" + t.UTC().Format("2006-01-02") + ".json"
}

// Export collects the exportable blobs in one read. It fails with
// common.ErrNoAccount when there is nothing to restore from.
func Export(ctx context.Context, repo blobs.Repository, now time.Time) (*Archive, error) {
	all, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read blobs: %v", common.ErrStorageUnavailable, err)
	}

	a := &Archive{Timestamp: now.UnixMilli(), Version: FormatVersion, App: AppName}
	slots := a.slots()
	for _, key := range common.BackupBlobs {
		if raw, ok := all[key]; ok {
			v := string(raw)
			*slots[key] = &v
		}
	}
	if a.Auth == nil {
		return nil, common.ErrNoAccount
	}
	return a, nil
}

// slots maps each blob key in common.BackupBlobs to its archive field.
func (a *Archive) slots() map[string]**string {
	return map[string]**string{
		common.BlobAuth:   &a.Auth,
		common.BlobChats:  &a.Chats,
		common.BlobEmail:  &a.Email,
		common.BlobAPIKey: &a.APIKey,
	}
}

// WriteTo writes the archive as indented JSON.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode backup: %w", err)
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Read decodes and validates a backup file.
func Read(r io.Reader) (*Archive, error) {
	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidBackup, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Archive) Validate() error {
	switch {
	case a.App != AppName:
		return fmt.Errorf("%w: unexpected app %q", common.ErrInvalidBackup, a.App)
	case a.Version == "":
		return fmt.Errorf("%w: missing version", common.ErrInvalidBackup)
	case a.Auth == nil || *a.Auth == "":
		return fmt.Errorf("%w: missing auth record", common.ErrInvalidBackup)
	}
	return nil
}

// Import overwrites the device's blobs with the archive. Optional blobs the
// archive lacks are left as they are. Any remembered session is dropped
// first because it belongs to the account being replaced.
func Import(ctx context.Context, repo blobs.Repository, a *Archive) error {
	if err := a.Validate(); err != nil {
		return err
	}

	put := make(map[string][]byte, len(common.BackupBlobs))
	slots := a.slots()
	for _, key := range common.BackupBlobs {
		if v := *slots[key]; v != nil && *v != "" {
			put[key] = []byte(*v)
		}
	}

	if err := repo.Delete(ctx, common.BlobSession); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	if err := repo.SetMany(ctx, put); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}
