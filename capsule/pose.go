package capsule

// Identity returns a flattened 4x4 identity matrix.
func Identity() []float32 {
	retVal := make([]float32, PoseSize)
	for i := 0; i < PoseDim; i++ {
		retVal[i*PoseDim+i] = 1
	}
	return retVal
}

// MatMul4 computes dst = a · b for flattened, row-major 4x4 matrices. dst must not alias a or b.
func MatMul4(dst, a, b []float32) {
	_ = dst[PoseSize-1]
	_ = a[PoseSize-1]
	_ = b[PoseSize-1]
	for i := 0; i < PoseDim; i++ {
		a0, a1, a2, a3 := a[i*4], a[i*4+1], a[i*4+2], a[i*4+3]
		for j := 0; j < PoseDim; j++ {
			dst[i*4+j] = a0*b[j] + a1*b[4+j] + a2*b[8+j] + a3*b[12+j]
		}
	}
}
