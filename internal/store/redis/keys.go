package redis

import (
	"fmt"

	"github.com/MrSnakeDoc/listingd/internal/domain"
)

const (
	// KeyPrefix namespaces every key written by the engine
	KeyPrefix = "listingd:"
	// KeyAccounts is the set of accounts that ever had desired state
	KeyAccounts = KeyPrefix + "accounts"
	// KeyRunningAgents is the set of accounts whose agent is running
	KeyRunningAgents = KeyPrefix + "agents:running"
)

// DesiredKey returns the hash of desired listings (hash -> json) of an account
func DesiredKey(steamid string) string {
	return KeyPrefix + "desired:" + steamid
}

// CurrentKey returns the hash of current listings (id -> json) of an account
func CurrentKey(steamid string) string {
	return KeyPrefix + "current:" + steamid
}

// OwnersKey returns the hash mapping a current listing id to the desired hash that created it
func OwnersKey(steamid string) string {
	return KeyPrefix + "current:" + steamid + ":owners"
}

// KeepKey returns the set of ids whose active deletion must not touch bookkeeping
func KeepKey(steamid string) string {
	return KeyPrefix + "current:" + steamid + ":keep"
}

// CreateQueueKey returns the priority queue of hashes waiting to be created
func CreateQueueKey(steamid string) string {
	return KeyPrefix + "queue:create:" + steamid
}

// DeleteQueueKey returns the set of ids waiting for a delete of the given kind
func DeleteQueueKey(steamid string, op domain.Operation) (string, error) {
	switch op {
	case domain.OpDelete, domain.OpDeleteArchived:
		return KeyPrefix + "queue:" + string(op) + ":" + steamid, nil
	default:
		return "", fmt.Errorf("no delete queue for operation %q", op)
	}
}
