package common

// Blob keys under which the vault persists its state. The values are opaque
// to everything except their owning component.
const (
	// BlobAuth holds the JSON AuthRecord (PIN and recovery envelopes).
	BlobAuth = "auth"
	// BlobEmail holds the advisory account email in plaintext.
	BlobEmail = "email"
	// BlobSession holds the plaintext master key when "remember me" was chosen.
	BlobSession = "session"
	// BlobChats holds the encrypted chat session collection.
	BlobChats = "chats"
	// BlobAPIKey holds the encrypted user API credential.
	BlobAPIKey = "api_key"
)

// BackupBlobs lists the blobs a backup carries. The session token stays on
// the device.
var BackupBlobs = []string{BlobAuth, BlobChats, BlobEmail, BlobAPIKey}
