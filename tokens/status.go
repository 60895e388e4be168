package tokens

import "github.com/jmcleod/tokendesk/client"

// bannedStatuses excludes a record from the valid partition.
var bannedStatuses = map[client.BanStatus]struct{}{
	client.BanStatusSuspended:    {},
	client.BanStatusUnauthorized: {},
	client.BanStatusForbidden:    {},
	client.BanStatusUnknownError: {},
	client.BanStatusInvalid:      {},
	client.BanStatusInvalidToken: {},
	client.BanStatusExpired:      {},
}

// invalidStatuses places a record in the invalid partition. It is a strict
// superset of bannedStatuses, so EXHAUSTED and USAGE_LIMIT records that are
// not flagged exhausted land in both partitions.
var invalidStatuses = map[client.BanStatus]struct{}{
	client.BanStatusSuspended:    {},
	client.BanStatusUnauthorized: {},
	client.BanStatusForbidden:    {},
	client.BanStatusUnknownError: {},
	client.BanStatusInvalid:      {},
	client.BanStatusInvalidToken: {},
	client.BanStatusExpired:      {},
	client.BanStatusExhausted:    {},
	client.BanStatusUsageLimit:   {},
}

// IsValid reports whether t belongs to the valid partition.
func IsValid(t client.Token) bool {
	if _, banned := bannedStatuses[t.BanStatus]; banned {
		return false
	}
	return !t.IsExhausted
}

// IsInvalid reports whether t belongs to the invalid partition.
func IsInvalid(t client.Token) bool {
	if _, bad := invalidStatuses[t.BanStatus]; bad {
		return true
	}
	return t.IsExhausted
}

// Filter names a partition of the collection.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterValid   Filter = "valid"
	FilterInvalid Filter = "invalid"
)

// ParseFilter accepts "", "all", "valid" or "invalid".
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, true
	case FilterValid, FilterInvalid:
		return Filter(s), true
	default:
		return "", false
	}
}

// Apply returns the records of list selected by f, preserving order.
func (f Filter) Apply(list []client.Token) []client.Token {
	switch f {
	case FilterValid:
		return partition(list, IsValid)
	case FilterInvalid:
		return partition(list, IsInvalid)
	default:
		out := make([]client.Token, len(list))
		copy(out, list)
		return out
	}
}

func partition(list []client.Token, keep func(client.Token) bool) []client.Token {
	out := make([]client.Token, 0, len(list))
	for _, t := range list {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
