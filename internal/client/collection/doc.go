// Package collection keeps an encrypted-at-rest list of records in memory and
// writes it back as a single sealed blob.
//
// The plaintext list is authoritative while the vault is unlocked. Every
// mutation reschedules one debounced save, so a burst of updates (for
// example a streamed answer growing token by token) costs a single
// encrypt-and-write. Saves are refused until Load has completed, which keeps
// an undecrypted blob from being overwritten with an empty list.
package collection
