// Package encryption seals token secrets at rest with an AEAD cipher.
//
// Sealed values are self-describing strings:
//
//	enc:v1:<algorithm>:<base64(nonce|ciphertext)>
//
// so a store can hold a mix of sealed and plaintext values and tell them apart
// with IsSealed. The cipher key is derived from a passphrase with HKDF-SHA256.
//
// # Usage
//
//	s, err := encryption.New(passphrase, encryption.AlgorithmChaCha20)
//	sealed, err := s.Seal(refreshToken)
//	plain, err := s.Open(sealed)
package encryption
