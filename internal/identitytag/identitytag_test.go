package identitytag

import "testing"

func TestRoundTrip(t *testing.T) {
	ids := []uint64{0, 1, 42, 1 << 40, ^uint64(0)}
	for _, id := range ids {
		s := Encode(id)
		got, ok := Decode(s)
		if !ok {
			t.Fatalf("Decode(%q) reported not-ok for id %d", s, id)
		}
		if got != id {
			t.Fatalf("round trip mismatch: got %d, want %d", got, id)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, s := range []string{"", "not-base36!!", "-1"} {
		if _, ok := Decode(s); ok {
			t.Fatalf("Decode(%q) expected not-ok", s)
		}
	}
}

func TestInjectIntoExtract(t *testing.T) {
	props := map[string]string{"k": "v"}
	injected := InjectInto(props, 42)
	if _, present := props[PropertyKey]; present {
		t.Fatal("InjectInto must not mutate the input map")
	}
	id, ok := Extract(injected)
	if !ok || id != 42 {
		t.Fatalf("Extract() = (%d, %v), want (42, true)", id, ok)
	}
	if injected["k"] != "v" {
		t.Fatal("InjectInto must preserve existing keys")
	}
}

func TestExtractAbsent(t *testing.T) {
	if _, ok := Extract(map[string]string{"k": "v"}); ok {
		t.Fatal("expected not-ok when tag absent")
	}
}

func TestStrip(t *testing.T) {
	props := map[string]string{"k": "v", PropertyKey: Encode(7)}
	stripped := Strip(props)
	if _, present := stripped[PropertyKey]; present {
		t.Fatal("Strip must remove the reserved key")
	}
	if _, present := props[PropertyKey]; !present {
		t.Fatal("Strip must not mutate the input map")
	}
	if stripped["k"] != "v" {
		t.Fatal("Strip must preserve other keys")
	}
}
