// Package credential hashes and verifies high-value shared secrets such as
// the one-time setup credential.
//
// It uses Argon2id with a PHC-like encoded string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Encoded hashes are treated as untrusted input during Verify and are
// rejected when their parameters exceed reasonable bounds.
package credential
