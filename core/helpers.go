package core

// isNegative checks if a value is negative
func isNegative(value float64) bool {
	return value < 0
}
