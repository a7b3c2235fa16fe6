// Package conflict decides which side wins when the central API rejects a
// mutation with a version conflict. The policy is deterministic: the same
// local payload and server record always produce the same resolution, no
// matter which station evaluates it.
package conflict

import (
	"encoding/json"
	"time"

	"github.com/solarfab/linesync/types"
)

type Winner string

const (
	// WinnerRemote keeps the server's record and discards the local change.
	WinnerRemote Winner = "remote"
	// WinnerLocal re-pushes the local change over the server's record.
	WinnerLocal Winner = "local"
	// WinnerManual means the policy cannot decide and an operator must.
	WinnerManual Winner = "manual"
)

type Resolution struct {
	Winner Winner
	Reason string
}

type recordMeta struct {
	Version   *int64     `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt"`
	CreatedAt *time.Time `json:"createdAt"`
}

func (m recordMeta) timestamp() *time.Time {
	if m.UpdatedAt != nil {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

// Resolve applies the resolution policy in fixed order:
//
//  1. A local delete against a record the server still holds keeps the
//     server copy. A delete racing an update loses to the update.
//  2. If both sides carry a version, the higher version wins.
//  3. Otherwise the side with the newer timestamp wins.
//  4. With no usable metadata on either side, the conflict goes to manual
//     review.
func Resolve(mutation *types.Mutation, serverRecord json.RawMessage) Resolution {
	if mutation.Operation == types.OperationDelete && len(serverRecord) > 0 {
		return Resolution{Winner: WinnerRemote, Reason: "delete contested by surviving server record"}
	}

	local := extractMeta(mutation.Data)
	remote := extractMeta(serverRecord)

	if local.Version != nil && remote.Version != nil && *local.Version != *remote.Version {
		if *local.Version > *remote.Version {
			return Resolution{Winner: WinnerLocal, Reason: "local version is higher"}
		}
		return Resolution{Winner: WinnerRemote, Reason: "server version is higher"}
	}

	localAt := local.timestamp()
	if localAt == nil {
		localAt = &mutation.CreatedAt
	}
	remoteAt := remote.timestamp()

	if remoteAt != nil && !localAt.Equal(*remoteAt) {
		if localAt.After(*remoteAt) {
			return Resolution{Winner: WinnerLocal, Reason: "local change is newer"}
		}
		return Resolution{Winner: WinnerRemote, Reason: "server record is newer"}
	}

	return Resolution{Winner: WinnerManual, Reason: "no metadata distinguishes the sides"}
}

// AdvanceVersion rewrites the local payload's version to one past the
// server's, so a local-wins re-push is accepted instead of bouncing off the
// same version check again.
func AdvanceVersion(localData, serverRecord json.RawMessage) (json.RawMessage, error) {
	remote := extractMeta(serverRecord)
	if remote.Version == nil {
		return localData, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(localData, &payload); err != nil {
		return nil, err
	}
	payload["version"] = *remote.Version + 1

	return json.Marshal(payload)
}

func extractMeta(raw json.RawMessage) recordMeta {
	var meta recordMeta
	if len(raw) == 0 {
		return meta
	}
	// Malformed records simply contribute no metadata; the policy falls
	// through to the next rule.
	_ = json.Unmarshal(raw, &meta)
	return meta
}
