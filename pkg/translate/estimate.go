package translate

// EstimateTokens is a rough token count: one token per four bytes, rounded
// up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}
