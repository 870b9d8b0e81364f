package cycle

import (
	"flextraff-service/internal/domain/traffic"
)

// Action is what a save does to the cycle history.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
)

type decisionKey struct {
	hasLatest  bool
	sameStatus bool
}

// upsertTable revises the latest record only within the same mode, so the
// last automatic and last manual configurations never overwrite each other.
var upsertTable = map[decisionKey]Action{
	{hasLatest: false, sameStatus: false}: ActionInsert,
	{hasLatest: true, sameStatus: true}:   ActionUpdate,
	{hasLatest: true, sameStatus: false}:  ActionInsert,
}

// Decide picks insert or update for a candidate with the given status.
func Decide(latest *traffic.CycleRecord, status traffic.Mode) Action {
	key := decisionKey{hasLatest: latest != nil}
	if latest != nil {
		key.sameStatus = latest.Status == status
	}
	return upsertTable[key]
}
