package sandbox

import (
	"encoding/json"
	"testing"
)

func TestSideTablePutTakeDeletes(t *testing.T) {
	st := newSideTable()
	st.put(42, 16)

	length, ok := st.take(42)
	if !ok || length != 16 {
		t.Fatalf("got (%d, %v), want (16, true)", length, ok)
	}
	if _, ok := st.take(42); ok {
		t.Fatal("expected second take to report the entry already consumed")
	}
}

func TestSideTableUnknownPointer(t *testing.T) {
	st := newSideTable()
	if _, ok := st.take(7); ok {
		t.Fatal("expected unknown pointer to report not found")
	}
}

func TestExitRecordJSONShapes(t *testing.T) {
	ok := ExitRecord{Ok: json.RawMessage(`{"amount":100}`)}
	data, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("marshal Ok: %v", err)
	}
	var roundTrip ExitRecord
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("unmarshal Ok: %v", err)
	}
	if roundTrip.Err != nil {
		t.Fatal("expected no Err on an Ok exit record")
	}

	failed := ExitRecord{Err: &LunarError{Message: "pricing overflow"}}
	data, err = json.Marshal(failed)
	if err != nil {
		t.Fatalf("marshal Err: %v", err)
	}
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("unmarshal Err: %v", err)
	}
	if roundTrip.Err == nil || roundTrip.Err.Message != "pricing overflow" {
		t.Fatalf("got %+v, want Err.Message=pricing overflow", roundTrip)
	}
}
