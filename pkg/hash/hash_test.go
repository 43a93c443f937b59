package hash

import (
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	// Known SHA256 of "hello"
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	got := SHA256Hex("hello")
	if got != want {
		t.Errorf("SHA256Hex(\"hello\") = %s, want %s", got, want)
	}
}

func TestSHA256Hex_Empty(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	got := SHA256Hex("")
	if got != want {
		t.Errorf("SHA256Hex(\"\") = %s, want %s", got, want)
	}
}

func TestPrefix(t *testing.T) {
	full := SHA256Hex("203.0.113.7")

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"12 char prefix", 12, full[:12]},
		{"4 char prefix", 4, full[:4]},
		{"full hash if prefix too long", 100, full},
		{"full hash if prefix not positive", 0, full},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prefix("203.0.113.7", tt.n); got != tt.want {
				t.Errorf("Prefix(%d) = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestPrefix_Deterministic(t *testing.T) {
	if Prefix("a", 12) != Prefix("a", 12) {
		t.Error("same input should hash to the same prefix")
	}
	if Prefix("a", 12) == Prefix("b", 12) {
		t.Error("different inputs should not collide on a 12 char prefix")
	}
}
