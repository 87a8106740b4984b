package transport

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestValidateOnionHost(t *testing.T) {
	t.Parallel()

	valid, err := OnionHostFromPublicKey(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("OnionHostFromPublicKey failed: %v", err)
	}

	// flip one character of the key part so the checksum no longer matches
	corrupted := []byte(valid)
	if corrupted[0] == 'a' {
		corrupted[0] = 'b'
	} else {
		corrupted[0] = 'a'
	}

	tests := []struct {
		name string
		host string
		want error
	}{
		{name: "derived v3 host", host: valid, want: nil},
		{name: "uppercase v3 host", host: strings.ToUpper(valid), want: nil},
		{name: "trailing dot", host: valid + ".", want: nil},
		{name: "bad checksum", host: string(corrupted), want: ErrInvalidOnionAddress},
		{name: "v2 host", host: "expyuzz4wqqyqhjn.onion", want: ErrV2AddressDeprecated},
		{name: "wrong length", host: "abc.onion", want: ErrInvalidOnionAddress},
		{name: "not onion", host: "example.com", want: ErrInvalidOnionAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateOnionHost(tt.host)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateOnionHost(%q) = %v, want %v", tt.host, err, tt.want)
			}
		})
	}
}

func TestOnionHostFromPublicKey(t *testing.T) {
	t.Parallel()

	t.Run("produces 62 character host", func(t *testing.T) {
		t.Parallel()

		host, err := OnionHostFromPublicKey(make([]byte, 32))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(host) != 62 || !strings.HasSuffix(host, ".onion") {
			t.Errorf("unexpected host %q", host)
		}
	})

	t.Run("rejects short key", func(t *testing.T) {
		t.Parallel()

		if _, err := OnionHostFromPublicKey(make([]byte, 31)); !errors.Is(err, ErrInvalidOnionAddress) {
			t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
		}
	})
}

func TestIsOnionHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		want bool
	}{
		{host: "abc.onion", want: true},
		{host: "ABC.ONION", want: true},
		{host: "abc.onion.", want: true},
		{host: "example.com", want: false},
		{host: "onion.example.com", want: false},
	}
	for _, tt := range tests {
		if got := IsOnionHost(tt.host); got != tt.want {
			t.Errorf("IsOnionHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
