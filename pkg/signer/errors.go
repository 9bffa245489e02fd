package signer

import "errors"

var (
	// ErrNoKey is returned when a local signer is built without a key source.
	ErrNoKey = errors.New("signer has no key")

	// ErrInvalidKey is returned for unparseable private key material.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidKeystore is returned when a keystore file cannot be read,
	// parsed, or decrypted.
	ErrInvalidKeystore = errors.New("invalid keystore")

	// ErrInvalidMnemonic is returned for mnemonics that fail BIP-39
	// validation or key derivation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)
