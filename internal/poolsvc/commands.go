package poolsvc

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dsrb/rebuildd/pkg/types"
)

// CommandType identifies the kind of pool-map mutation a Raft log entry
// carries, in place of the teacher's ENQUEUE/ACK job-queue commands.
type CommandType string

const (
	CmdCreatePool  CommandType = "CREATE_POOL"
	CmdAddFailed   CommandType = "ADD_FAILED"
	CmdBumpVersion CommandType = "BUMP_VERSION"
	CmdExcludeOut  CommandType = "EXCLUDE_OUT"
)

// RaftCommand is the envelope serialized into the Raft log.
type RaftCommand struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type CreatePoolPayload struct {
	PoolID  uuid.UUID      `json:"pool_id"`
	Members types.RankList `json:"members"`
}

type AddFailedPayload struct {
	PoolID  uuid.UUID      `json:"pool_id"`
	Targets types.RankList `json:"targets"`
}

type BumpVersionPayload struct {
	PoolID  uuid.UUID `json:"pool_id"`
	Version uint32    `json:"version"`
}

type ExcludeOutPayload struct {
	PoolID  uuid.UUID      `json:"pool_id"`
	Targets types.RankList `json:"targets"`
}

func encode(cmdType CommandType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RaftCommand{Type: cmdType, Payload: raw})
}

func NewCreatePoolCommand(poolID uuid.UUID, members types.RankList) ([]byte, error) {
	return encode(CmdCreatePool, CreatePoolPayload{PoolID: poolID, Members: members})
}

func NewAddFailedCommand(poolID uuid.UUID, targets types.RankList) ([]byte, error) {
	return encode(CmdAddFailed, AddFailedPayload{PoolID: poolID, Targets: targets})
}

func NewBumpVersionCommand(poolID uuid.UUID, version uint32) ([]byte, error) {
	return encode(CmdBumpVersion, BumpVersionPayload{PoolID: poolID, Version: version})
}

func NewExcludeOutCommand(poolID uuid.UUID, targets types.RankList) ([]byte, error) {
	return encode(CmdExcludeOut, ExcludeOutPayload{PoolID: poolID, Targets: targets})
}

// DecodeCommand unwraps the envelope written by the New*Command helpers.
func DecodeCommand(raw []byte) (RaftCommand, error) {
	var cmd RaftCommand
	err := json.Unmarshal(raw, &cmd)
	return cmd, err
}
