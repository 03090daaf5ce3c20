package expr

// DefaultNormalizeTarget matches the preprocessing applied to the reference
// atlas before matching: scale each cell to 10k total counts, then log1p.
const DefaultNormalizeTarget = 1e4

// NormalizeTotal scales every cell (row) so its total expression equals
// target. Cells with zero total are left untouched.
func (d *Dataset) NormalizeTotal(target float64) {
	n := d.NCells()
	for i := 0; i < n; i++ {
		sum := d.X.RowSum(i)
		if sum == 0 {
			continue
		}
		d.X.ScaleRow(i, target/sum)
	}
}

// Log1p applies ln(1+x) to the whole matrix.
func (d *Dataset) Log1p() {
	d.X.Log1p()
}
