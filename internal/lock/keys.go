package lock

import "sort"

const keyPrefix = "listingd:lock:"

// Keys names what a critical section excludes. With no Members the whole
// Scope is locked; with Members only those members are, and a whole-scope
// lock waits for them.
type Keys struct {
	Scope   string
	Members []string
}

// Account locks all state of an account.
func Account(steamid string) Keys {
	return Keys{Scope: "account:" + steamid}
}

// Hashes locks the given listing hashes of an account.
func Hashes(steamid string, hashes ...string) Keys {
	return Keys{Scope: "account:" + steamid, Members: hashes}
}

// Executor serializes batch jobs of an account. It is independent of the state locks.
func Executor(steamid string) Keys {
	return Keys{Scope: "executor:" + steamid}
}

func (k Keys) scopeKey() string   { return keyPrefix + k.Scope }
func (k Keys) holdersKey() string { return keyPrefix + k.Scope + ":holders" }

// memberKeys returns sorted, deduplicated member keys.
func (k Keys) memberKeys() []string {
	seen := make(map[string]struct{}, len(k.Members))
	out := make([]string, 0, len(k.Members))
	for _, m := range k.Members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, keyPrefix+k.Scope+":m:"+m)
	}
	sort.Strings(out)
	return out
}

// owned returns the keys a held lock carries its token on.
func (k Keys) owned() []string {
	if len(k.Members) == 0 {
		return []string{k.scopeKey()}
	}
	return k.memberKeys()
}
