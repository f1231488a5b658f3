package mathutil

import "testing"

func TestNewMat(t *testing.T) {
	m := NewMat(3, 4)
	if len(m) != 3 {
		t.Fatalf("rows = %d, want 3", len(m))
	}
	for i, row := range m {
		if len(row) != 4 {
			t.Fatalf("row %d cols = %d, want 4", i, len(row))
		}
	}
	if !IsRectangular(m, 4) {
		t.Error("NewMat(3, 4) not rectangular")
	}
}

func TestNewMat_RowsDoNotAlias(t *testing.T) {
	m := NewMat(2, 2)
	m[0][1] = 5
	if m[1][0] != 0 {
		t.Errorf("m[1][0] = %f, want 0", m[1][0])
	}
}

func TestCloneMat(t *testing.T) {
	m := NewMat(2, 3)
	FillMat(m, 1.5)
	c := CloneMat(m)
	c[1][2] = 9
	if m[1][2] != 1.5 {
		t.Errorf("clone aliases source: m[1][2] = %f", m[1][2])
	}
	if !EqualMat(CloneMat(m), m) {
		t.Error("clone not equal to source")
	}
}

func TestFillVec(t *testing.T) {
	v := make([]float64, 4)
	FillVec(v, -2)
	for i, x := range v {
		if x != -2 {
			t.Errorf("v[%d] = %f, want -2", i, x)
		}
	}
}
