package inflate

import "testing"

func TestBuildTableRejectsOverSubscribed(t *testing.T) {
	// three one-bit codes cannot exist
	lens := []uint16{1, 1, 1}
	var tbl [enough]code
	var work [288]uint16
	if _, _, err := buildTable(treeLens, lens, 3, tbl[:], 0, 9, work[:]); err == nil {
		t.Fatal("expected error for over-subscribed lengths")
	}
}

func TestBuildTableRejectsIncomplete(t *testing.T) {
	// three two-bit codes leave a quarter of the code space unassigned
	lens := []uint16{2, 2, 2}
	var tbl [enough]code
	var work [288]uint16
	if _, _, err := buildTable(treeLens, lens, 3, tbl[:], 0, 9, work[:]); err == nil {
		t.Fatal("expected error for incomplete lengths")
	}
	if _, _, err := buildTable(treeCodes, lens, 3, tbl[:], 0, 7, work[:]); err == nil {
		t.Fatal("expected error for incomplete code-length alphabet")
	}
}

func TestBuildTableSingleSymbol(t *testing.T) {
	// one distance symbol with a one-bit code: allowed, with the unused
	// code value marked invalid
	lens := []uint16{1}
	var tbl [enough]code
	var work [288]uint16
	used, root, err := buildTable(treeDists, lens, 1, tbl[:], 0, 6, work[:])
	if err != nil {
		t.Fatalf("buildTable: %v", err)
	}
	if used != 2 || root != 1 {
		t.Fatalf("used=%d root=%d, want 2 and 1", used, root)
	}
	if tbl[0].op != 16 || tbl[0].bits != 1 || tbl[0].val != 1 {
		t.Fatalf("symbol entry = %+v", tbl[0])
	}
	if tbl[1].op != 64 {
		t.Fatalf("unused code entry = %+v, want invalid marker", tbl[1])
	}
}

func TestBuildTableNoSymbols(t *testing.T) {
	lens := make([]uint16, 30)
	var tbl [enough]code
	var work [288]uint16
	used, root, err := buildTable(treeDists, lens, 30, tbl[:], 0, 6, work[:])
	if err != nil {
		t.Fatalf("buildTable: %v", err)
	}
	if used != 2 || root != 1 {
		t.Fatalf("used=%d root=%d, want 2 and 1", used, root)
	}
	if tbl[0].op != 64 || tbl[1].op != 64 {
		t.Fatalf("entries = %+v %+v, want invalid markers", tbl[0], tbl[1])
	}
}

func TestFixedTables(t *testing.T) {
	fixedOnce.Do(buildFixedTables)

	// index 0 carries the all-zeros 7-bit code: end of block
	if e := lenfix[0]; e.op != 32+64 || e.bits != 7 {
		t.Fatalf("lenfix[0] = %+v", e)
	}
	// literal 'A' (65) has the 8-bit code 0x71; its bit-reversed lookup
	// index is 142
	if e := lenfix[142]; e.op != 0 || e.bits != 8 || e.val != 65 {
		t.Fatalf("lenfix[142] = %+v", e)
	}
	// distance symbol 0: base distance 1, no extra bits
	if e := distfix[0]; e.op != 16 || e.bits != 5 || e.val != 1 {
		t.Fatalf("distfix[0] = %+v", e)
	}
	// distance symbol 29: base 24577, 13 extra bits; code 11101
	// reversed is 10111
	if e := distfix[23]; e.op != 16+13 || e.bits != 5 || e.val != 24577 {
		t.Fatalf("distfix[23] = %+v", e)
	}
}
