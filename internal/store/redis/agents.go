package redis

import (
	"context"
	"fmt"
	"sort"
)

// AgentRunning reports whether the account's agent is registered
func (s *Store) AgentRunning(ctx context.Context, steamid string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, KeyRunningAgents, steamid).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check agent state: %w", err)
	}
	return ok, nil
}

// RunningAgents lists accounts whose agent is running
func (s *Store) RunningAgents(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, KeyRunningAgents).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get running agents: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetAgentRunning records the agent state of an account
func (tx *Tx) SetAgentRunning(steamid string, running bool) {
	if running {
		tx.pipe.SAdd(tx.ctx, KeyRunningAgents, steamid)
		tx.pipe.SAdd(tx.ctx, KeyAccounts, steamid)
		return
	}
	tx.pipe.SRem(tx.ctx, KeyRunningAgents, steamid)
}
