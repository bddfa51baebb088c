package indexer

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestSplitRangeUnevenTail(t *testing.T) {
	got, err := SplitRange(0, 6, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 0, To: 2}, {From: 3, To: 5}, {From: 6, To: 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestBlockRangeHalve(t *testing.T) {
	lo, hi, ok := BlockRange{From: 10, To: 15}.Halve()
	if !ok {
		t.Fatalf("expected split")
	}
	if lo != (BlockRange{From: 10, To: 12}) || hi != (BlockRange{From: 13, To: 15}) {
		t.Fatalf("halves mismatch: %+v %+v", lo, hi)
	}
	if lo.Len()+hi.Len() != 6 {
		t.Fatalf("halves lose blocks: %d", lo.Len()+hi.Len())
	}

	if _, _, ok := (BlockRange{From: 7, To: 7}).Halve(); ok {
		t.Fatalf("single block must not split")
	}
}

func TestIsRangeTooLarge(t *testing.T) {
	if !isRangeTooLarge(errors.New("Query returned more than 10000 results")) {
		t.Fatalf("expected result cap error to match")
	}
	if isRangeTooLarge(errors.New("connection reset by peer")) {
		t.Fatalf("transport error must not match")
	}
	if isRangeTooLarge(nil) {
		t.Fatalf("nil must not match")
	}
}
