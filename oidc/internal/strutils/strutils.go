// Package strutils contains small string-slice helpers shared inside the
// oidc package.
package strutils

// StrListContains looks for a string in a list of strings.
func StrListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// RemoveDuplicatesStable removes duplicate and empty elements from a slice of
// strings, preserving order (and case) of the original slice.
func RemoveDuplicatesStable(items []string) []string {
	itemsMap := map[string]bool{}
	deduplicated := make([]string, 0, len(items))

	for _, item := range items {
		if item == "" || itemsMap[item] {
			continue
		}
		itemsMap[item] = true
		deduplicated = append(deduplicated, item)
	}
	return deduplicated
}
