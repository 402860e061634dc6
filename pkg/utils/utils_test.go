package utils

import (
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken(testKey, "42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ValidateToken(testKey, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "42" {
		t.Errorf("UserID = %q", claims.UserID)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	expired, _ := GenerateToken(testKey, "42", -time.Minute)
	if _, err := ValidateToken(testKey, expired); err == nil {
		t.Error("expired token accepted")
	}
	other, _ := GenerateToken("another-key-another-key-another!", "42", time.Hour)
	if _, err := ValidateToken(testKey, other); err == nil {
		t.Error("token signed with another key accepted")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("refresh-token"), []byte(testKey))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == "refresh-token" {
		t.Fatal("ciphertext equals plaintext")
	}
	plain, err := Decrypt(sealed, []byte(testKey))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "refresh-token" {
		t.Errorf("Decrypt = %q", plain)
	}
	if _, err := Decrypt("c2hvcnQ=", []byte(testKey)); err == nil {
		t.Error("short ciphertext accepted")
	}
}
