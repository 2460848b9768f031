package utility

// Contains reports whether s is present in array
func Contains(array []string, s string) bool {
	for _, v := range array {
		if v == s {
			return true
		}
	}
	return false
}
