// Package cli provides the interactive OrangeCat terminal client.
//
// It wires configuration, the local SQLite vault, the auth state machine and
// the encrypted stores, then runs a REPL whose commands depend on the vault
// state:
//
//   - no account: setup, restore
//   - awaiting recovery acknowledgement: ack
//   - locked: login, recover, nuke, restore
//   - unlocked: new, list, open, say, show, rename, delete, clear,
//     apikey, rmapikey, backup, lock, nuke
//
// PINs and API keys are read without echo. Errors are shown as short user
// messages and never carry cryptographic detail.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
