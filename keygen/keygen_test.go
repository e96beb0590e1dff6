package main

import "testing"

func TestRoundTrip(t *testing.T) {
	salt := []byte("test-salt")

	key := generate(42, 3, false, salt)
	appID, sequence, isRoot, ok := validate(key, salt)
	if !ok {
		t.Fatalf("generated key failed validation: %s", key)
	}
	if appID != 42 || sequence != 3 || isRoot {
		t.Errorf("unpacked (%d:%d, root=%v), want (42:3, root=false)", appID, sequence, isRoot)
	}
}

func TestRootFlag(t *testing.T) {
	salt := []byte("test-salt")

	key := generate(7, 1, true, salt)
	if _, _, isRoot, ok := validate(key, salt); !ok || !isRoot {
		t.Errorf("root key: ok=%v isRoot=%v, want both true", ok, isRoot)
	}
}

func TestWrongSalt(t *testing.T) {
	key := generate(42, 1, false, []byte("one salt"))
	if _, _, _, ok := validate(key, []byte("another salt")); ok {
		t.Error("key signed with a different salt must not validate")
	}
}

func TestGarbage(t *testing.T) {
	for _, bad := range []string{"", "short", "definitely-not-a-key-at-all!"} {
		if _, _, _, ok := validate(bad, []byte("salt")); ok {
			t.Errorf("validate(%q): want failure", bad)
		}
	}
}
