package domain

// ValidSteamID64 reports whether s looks like a 64-bit Steam account id
func ValidSteamID64(s string) bool {
	if len(s) != 17 || s[0] != '7' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
