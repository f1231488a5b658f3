package mathutil

// Mat is a 2D float64 matrix stored as row-major [][]float64.
// All rows share one backing array.
type Mat = [][]float64

// NewMat creates a rows x cols matrix initialized to zero.
func NewMat(rows, cols int) Mat {
	m := make(Mat, rows)
	data := make([]float64, rows*cols)
	for i := range m {
		m[i] = data[i*cols : (i+1)*cols]
	}
	return m
}

// CloneMat returns a deep copy of m with a single backing array.
func CloneMat(m Mat) Mat {
	if len(m) == 0 {
		return NewMat(0, 0)
	}
	c := NewMat(len(m), len(m[0]))
	for i := range m {
		copy(c[i], m[i])
	}
	return c
}

// FillMat fills all elements of an existing matrix with val.
func FillMat(m Mat, val float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = val
		}
	}
}

// FillVec fills all elements of an existing vector with val.
func FillVec(v []float64, val float64) {
	for i := range v {
		v[i] = val
	}
}

// IsRectangular reports whether every row of m has exactly cols columns.
func IsRectangular(m Mat, cols int) bool {
	for _, row := range m {
		if len(row) != cols {
			return false
		}
	}
	return true
}
