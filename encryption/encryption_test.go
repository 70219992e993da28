package encryption

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestEncryptDecrypt(t *testing.T) {
	originalText := []byte("shuffled deck order and draw position")
	key := []byte("passphrasewhichneedstobe32bytes!")

	encrypted, err := Encrypt(originalText, key)
	if err != nil {
		t.Fatal(err)
	}

	if cmp.Equal(encrypted, originalText) {
		t.Errorf("%s == %s", encrypted, originalText)
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatal(err)
	}

	if !cmp.Equal(decrypted, originalText) {
		t.Errorf("%s != %s", decrypted, originalText)
	}

	// Decrypt with the wrong key. Should error.
	_, err = Decrypt(encrypted, []byte("anotherpassphrasethatis32bytes!!"))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}

	_, err = Decrypt([]byte("short"), key)
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}
