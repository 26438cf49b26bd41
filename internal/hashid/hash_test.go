package hashid

import "testing"

func TestSumDeterministic(t *testing.T) {
	a := SumString("12345", "test_address")
	b := SumString("12345", "test_address")
	if a != b {
		t.Fatalf("Sum is not deterministic: %v != %v", a, b)
	}
}

func TestSumDistinguishesOrder(t *testing.T) {
	a := SumString("uuid-1", "address-a")
	b := SumString("address-a", "uuid-1")
	if a == b {
		t.Fatalf("Sum should fold order into the digest")
	}
}

func TestRoundTripBase58(t *testing.T) {
	h := SumString("round", "trip")
	s := h.String()
	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: %v != %v", parsed, h)
	}
}

func TestParseInvalidLength(t *testing.T) {
	if _, err := Parse("not-a-valid-hash"); err == nil {
		t.Fatal("expected error for short decoded input")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	h := SumString("json", "round-trip")
	data, err := h.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var out Hash
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if out != h {
		t.Fatalf("json round trip mismatch")
	}
}

func TestScanValueRoundTrip(t *testing.T) {
	h := SumString("scan", "value")
	v, err := h.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var out Hash
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out != h {
		t.Fatalf("scan/value round trip mismatch")
	}
}
