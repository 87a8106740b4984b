package transport

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	onionSuffix  = ".onion"
	onionVersion = 0x03
)

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
)

var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host is in the .onion domain.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSuffix(host, ".")), onionSuffix)
}

// ValidateOnionHost checks the format, version byte and checksum of a v3
// onion host name.
func ValidateOnionHost(host string) error {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if onionV2Pattern.MatchString(host) {
		return ErrV2AddressDeprecated
	}
	if !onionV3Pattern.MatchString(host) {
		return ErrInvalidOnionAddress
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(host, onionSuffix)))
	if err != nil || len(decoded) != 35 {
		return ErrInvalidOnionAddress
	}

	// pubkey(32) | checksum(2) | version(1)
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionVersion {
		return ErrInvalidOnionAddress
	}
	want := onionChecksum(pubkey, version)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return ErrInvalidOnionAddress
	}
	return nil
}

// onionChecksum is SHA3-256(".onion checksum" | pubkey | version)[:2].
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}

// OnionHostFromPublicKey derives the v3 onion host of an ed25519 public key.
func OnionHostFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}
	data := make([]byte, 0, 35)
	data = append(data, pubkey...)
	data = append(data, onionChecksum(pubkey, onionVersion)...)
	data = append(data, onionVersion)
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + onionSuffix, nil
}
