package vos

import "testing"

func TestNewUUID(t *testing.T) {
	t.Run("creates valid UUID", func(t *testing.T) {
		id, err := NewUUID()
		if err != nil {
			t.Fatalf("NewUUID() error = %v, want nil", err)
		}
		if err := id.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("creates unique UUIDs", func(t *testing.T) {
		id1, _ := NewUUID()
		id2, _ := NewUUID()
		if id1.String() == id2.String() {
			t.Error("NewUUID() created duplicate UUIDs")
		}
	})
}

func TestNewUUIDFromString(t *testing.T) {
	t.Run("parses valid UUID string", func(t *testing.T) {
		original, _ := NewUUID()
		parsed, err := NewUUIDFromString(original.String())
		if err != nil {
			t.Fatalf("NewUUIDFromString() error = %v, want nil", err)
		}
		if parsed.String() != original.String() {
			t.Errorf("NewUUIDFromString() = %v, want %v", parsed.String(), original.String())
		}
	})

	t.Run("returns error for invalid string", func(t *testing.T) {
		if _, err := NewUUIDFromString("not-a-uuid"); err == nil {
			t.Error("NewUUIDFromString() error = nil, want error")
		}
	})
}

func TestUUID_Validate(t *testing.T) {
	t.Run("zero value UUID fails validation", func(t *testing.T) {
		id := UUID{}
		if err := id.Validate(); err != ErrInvalidUUID {
			t.Errorf("Validate() error = %v, want %v", err, ErrInvalidUUID)
		}
	})
}
