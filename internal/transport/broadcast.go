package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/pkg/types"
)

func methodFor(opcode types.Opcode) (string, error) {
	switch opcode {
	case types.OpObjectsScan:
		return "/" + ServiceName + "/ObjectsScan", nil
	case types.OpTgtFini:
		return "/" + ServiceName + "/TgtFini", nil
	case types.OpTgtQuery:
		return "/" + ServiceName + "/TgtQuery", nil
	default:
		return "", fmt.Errorf("transport: opcode %s has no RPC method", opcode)
	}
}

// Broadcast is the leader-side rebuild.Broadcast: it fans the same request
// out to every target address over gRPC (using the package's JSON codec, via
// grpc.CallContentSubtype), then folds the replies. TGT_QUERY replies fold
// through rebuild.CrossTargetAggregate (the TQA's cross-target step); every
// other opcode just needs the first non-zero status, since their replies
// carry no payload to aggregate.
type Broadcast struct {
	clients *ClientPool
	opcode  types.Opcode
	targets []string
}

// NewBroadcast returns a Broadcast ready to Send against targets (peer
// addresses), dispatching opcode to its corresponding RPC method.
func NewBroadcast(clients *ClientPool, opcode types.Opcode, targets []string) *Broadcast {
	return &Broadcast{clients: clients, opcode: opcode, targets: targets}
}

func (b *Broadcast) Send(ctx context.Context, payload any) (rebuild.RPCReply, error) {
	method, err := methodFor(b.opcode)
	if err != nil {
		return rebuild.RPCReply{}, err
	}

	var aggregated rebuild.RPCReply
	for _, addr := range b.targets {
		conn, err := b.clients.Dial(addr)
		if err != nil {
			return rebuild.RPCReply{}, err
		}

		out := new(rebuild.RPCReply)
		if err := conn.Invoke(ctx, method, payload, out, grpc.CallContentSubtype(CodecName)); err != nil {
			return rebuild.RPCReply{}, fmt.Errorf("transport: %s -> %s: %w", method, addr, err)
		}

		if b.opcode == types.OpTgtQuery {
			rebuild.CrossTargetAggregate(&aggregated.Query, out.Query)
		}
		if aggregated.Status == 0 {
			aggregated.Status = out.Status
		}
	}
	return aggregated, nil
}
