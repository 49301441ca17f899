package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	key, err := DeriveKey([]byte("correct horse"))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("key length = %d, want %d", len(key), KeySize)
	}

	again, err := DeriveKey([]byte("correct horse"))
	if err != nil {
		t.Fatalf("DeriveKey() second call error = %v", err)
	}
	if !bytes.Equal(key, again) {
		t.Error("DeriveKey is not deterministic")
	}

	other, err := DeriveKey([]byte("battery staple"))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if bytes.Equal(key, other) {
		t.Error("different secrets derived the same key")
	}
}

func TestDeriveKeyEmptySecret(t *testing.T) {
	if _, err := DeriveKey(nil); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("DeriveKey(nil) error = %v, want ErrEmptySecret", err)
	}
}

func TestSealOpen(t *testing.T) {
	key, err := DeriveKey([]byte("s3cret"))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	plaintext := []byte(`{"HeartRate":72}`)

	box, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if len(box.IV) != 12 {
		t.Errorf("IV length = %d, want 12", len(box.IV))
	}
	if len(box.Tag) != 16 {
		t.Errorf("tag length = %d, want 16", len(box.Tag))
	}
	if bytes.Contains(box.Ciphertext, []byte("HeartRate")) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := Open(key, box)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open() = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshIV(t *testing.T) {
	key := make([]byte, KeySize)
	a, err := Seal(key, []byte("x"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b, err := Seal(key, []byte("x"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Error("two seals reused an IV")
	}
}

func TestOpenRejects(t *testing.T) {
	key := make([]byte, KeySize)
	box, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	wrongKey := make([]byte, KeySize)
	wrongKey[0] = 0xFF
	if _, err := Open(wrongKey, box); err == nil {
		t.Error("Open() with wrong key should fail")
	}

	tampered := box
	tampered.Ciphertext = append([]byte(nil), box.Ciphertext...)
	tampered.Ciphertext[0] ^= 0xFF
	if _, err := Open(key, tampered); err == nil {
		t.Error("Open() with tampered ciphertext should fail")
	}

	short := box
	short.IV = box.IV[:4]
	if _, err := Open(key, short); err == nil {
		t.Error("Open() with short IV should fail")
	}
}
