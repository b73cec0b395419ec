package cache

// GenerateKey joins a key namespace and an identifier.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// BuildPattern matches every key under a namespace.
func BuildPattern(prefix string) string {
	return prefix + ":*"
}
