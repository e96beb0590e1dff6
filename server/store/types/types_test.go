package types

import "testing"

func TestUidStringRoundTrip(t *testing.T) {
	uids := []Uid{1, 2, 1234567890, 0x7fffffffffffffff}
	for _, uid := range uids {
		if got := ParseUid(uid.String()); got != uid {
			t.Errorf("ParseUid(%q): want %d, got %d", uid.String(), uid, got)
		}
	}
}

func TestUidZero(t *testing.T) {
	if !ZeroUid.IsZero() {
		t.Error("ZeroUid must be zero")
	}
	if ZeroUid.String() != "" {
		t.Errorf("ZeroUid.String(): want empty, got %q", ZeroUid.String())
	}
	if ZeroUid.UserId() != "" {
		t.Errorf("ZeroUid.UserId(): want empty, got %q", ZeroUid.UserId())
	}
}

func TestParseUserId(t *testing.T) {
	uid := Uid(112233)
	if got := ParseUserId(uid.UserId()); got != uid {
		t.Errorf("ParseUserId(%q): want %d, got %d", uid.UserId(), uid, got)
	}

	for _, bad := range []string{"", "usr", "garbage", uid.String()} {
		if got := ParseUserId(bad); !got.IsZero() {
			t.Errorf("ParseUserId(%q): want zero, got %d", bad, got)
		}
	}
}

func TestUidSliceAdd(t *testing.T) {
	var us UidSlice
	for _, uid := range []Uid{30, 10, 20, 10} {
		us.Add(uid)
	}

	want := UidSlice{10, 20, 30}
	if len(us) != len(want) {
		t.Fatalf("want %v, got %v", want, us)
	}
	for i := range want {
		if us[i] != want[i] {
			t.Fatalf("want %v, got %v", want, us)
		}
	}

	if us.Add(20) {
		t.Error("Add of a present uid must report false")
	}
	if !us.Add(40) {
		t.Error("Add of a missing uid must report true")
	}
}

func TestUidSliceRem(t *testing.T) {
	us := UidSlice{10, 20, 30}
	if !us.Rem(20) {
		t.Error("Rem of a present uid must report true")
	}
	if us.Contains(20) {
		t.Error("removed uid must not remain")
	}
	if us.Rem(99) {
		t.Error("Rem of a missing uid must report false")
	}
	if len(us) != 2 {
		t.Errorf("want 2 elements, got %v", us)
	}
}

func TestUidSliceContains(t *testing.T) {
	us := UidSlice{10, 20, 30}
	for _, uid := range us {
		if !us.Contains(uid) {
			t.Errorf("Contains(%d): want true", uid)
		}
	}
	if us.Contains(15) {
		t.Error("Contains(15): want false")
	}
	var empty UidSlice
	if empty.Contains(10) {
		t.Error("empty slice contains nothing")
	}
}
