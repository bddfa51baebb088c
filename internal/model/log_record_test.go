package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		ChainID:     1,
		BlockNumber: 17000000,
		BlockHash:   "0xabc123",
		TxHash:      "0xdef456",
		TxIndex:     7,
		LogIndex:    12,
		Address:     "0xbebc44782c7db0a1a60cb6fe97d0b483032ff1c7",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Timestamp:   1700000000,
		IngestedAt:  "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
	if decoded.Key() != "17000000-0xdef456-12" {
		t.Fatalf("unexpected key %s", decoded.Key())
	}
}

func TestPositionOrdering(t *testing.T) {
	a := Position{Block: 10, TxIndex: 2, LogIndex: 5}
	cases := []struct {
		other Position
		after bool
	}{
		{Position{Block: 9, TxIndex: 9, LogIndex: 9}, true},
		{Position{Block: 10, TxIndex: 1, LogIndex: 9}, true},
		{Position{Block: 10, TxIndex: 2, LogIndex: 4}, true},
		{Position{Block: 10, TxIndex: 2, LogIndex: 5}, false},
		{Position{Block: 11, TxIndex: 0, LogIndex: 0}, false},
	}
	for _, tc := range cases {
		if got := a.After(tc.other); got != tc.after {
			t.Fatalf("%+v after %+v = %v, want %v", a, tc.other, got, tc.after)
		}
	}
}
