// Package config holds the CLI configuration types.
package config

// Role represents the user's chosen role in a call (creator or joiner).
type Role string

const (
	RoleCreator Role = "create"
	RoleJoiner  Role = "join"
)

// Config stores all parameters gathered from CLI flags or interactive prompts.
type Config struct {
	Role     Role
	CallID   string // Joiner: the invite token of the call to join
	StoreURL string // WebSocket URL of the signaling store (signald)
	Video    bool   // capture video in addition to audio
}
