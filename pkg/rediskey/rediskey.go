package rediskey

import "fmt"

const (
	RolePrefix     = "auth:role"
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRoleKey returns "auth:role:{userID}"
func BuildRoleKey(userID string) string {
	return NamespaceKey(RolePrefix, userID)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, NamespaceKey(prefix, day))
}
