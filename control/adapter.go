// Package control implements the control adapter (component H,
// spec.md §4.4): per-worker message-family dispatch that mutates the
// port registry and flow table and emits exactly one reply per
// request.
package control

import (
	"github.com/hashicorp/go-hclog"

	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/control/wire"
	"github.com/ovdk-go/fastpath/flow"
	"github.com/ovdk-go/fastpath/iop"
	"github.com/ovdk-go/fastpath/port"
	"github.com/ovdk-go/fastpath/ring"
	"github.com/ovdk-go/fastpath/stats"
)

// Attacher binds/unbinds a port's reader or writer side to the
// worker's pipeline; implemented by pipeline.Worker. Kept as an
// interface so this package has no dependency on pipeline (pipeline
// depends on control, not the other way around).
type Attacher interface {
	AttachReader(id uint32, ringCapacity int, deviceName string) (index uint32, err error)
	AttachWriter(id uint32, ringCapacity int, deviceName string) (index uint32, err error)
	DetachReader(id uint32) error
	DetachWriter(id uint32) error
}

// Adapter is one worker's control-message service point (spec.md
// §4.4: "Runs on every worker. Services messages from its own
// request ring only.").
type Adapter struct {
	Worker   uint32
	Portmask uint64

	Table     *flow.Table
	Ports     *port.Registry
	PortStats *stats.Registry
	Interp    *action.Interpreter
	Attach    Attacher

	Request *ring.Buffer[*wire.Message]
	Reply   *ring.Buffer[*wire.Message]

	// NowCycles/CyclesToWallMs carry the cycle-to-wall-clock
	// conversion. Replies convert stored timestamps only through
	// CyclesToWallMs, and wallMs maps 0 to 0 (spec.md §4.4.4 step 5)
	// whatever CyclesToWallMs does; NowCycles has no default and is
	// not read by the adapter itself. cmd/fastpathd sets both from
	// time.Now().UnixNano(), so one "cycle" is one nanosecond and no
	// calibration sampling takes place.
	NowCycles      func() uint64
	CyclesToWallMs func(cycles uint64) uint64

	Logger hclog.Logger
}

func (a *Adapter) wallMs(cycles uint64) uint64 {
	if cycles == 0 || a.CyclesToWallMs == nil {
		return 0
	}
	return a.CyclesToWallMs(cycles)
}

// Service drains at most one request from the worker's request ring
// and, if one was present, enqueues exactly one reply (spec.md §4.4:
// "each request produces exactly one reply"). Returns true if a
// request was serviced.
func (a *Adapter) Service() bool {
	var batch [1]*wire.Message
	if a.Request.PopN(batch[:]) == 0 {
		return false
	}
	req := batch[0]
	reply := a.dispatch(req)
	if !a.Reply.Push(reply) {
		if a.Logger != nil {
			a.Logger.Warn("reply ring full, dropping reply", "family", reply.Family, "command", reply.Command)
		}
	}
	return true
}

func (a *Adapter) dispatch(req *wire.Message) *wire.Message {
	switch req.Family {
	case wire.FamilyVPort:
		return a.handleVPort(req)
	case wire.FamilyFlow:
		return a.handleFlow(req)
	case wire.FamilyPacket:
		return a.handlePacket(req)
	default:
		reply := wire.NewReply(req)
		reply.Family = wire.FamilyUnknown
		reply.Error = errnoOf(ErrInvalid)
		return reply
	}
}

func (a *Adapter) handleVPort(req *wire.Message) *wire.Message {
	reply := wire.NewReply(req)
	id := req.VPort.ID

	switch req.Command {
	case wire.CmdNew:
		if err := a.Ports.Validate(id, a.Portmask); err != nil {
			reply.Error = errnoOf(err)
			return reply
		}
		flags := req.VPort.Flags
		name := nameString(req.VPort.Name)
		readerIndex, writerIndex := port.InvalidIndex, port.InvalidIndex
		if flags&port.FlagIn != 0 && a.Attach != nil {
			idx, err := a.Attach.AttachReader(id, 0, name)
			if err != nil {
				reply.Error = errnoOf(err)
				return reply
			}
			readerIndex = idx
		}
		if flags&port.FlagOut != 0 && a.Attach != nil {
			idx, err := a.Attach.AttachWriter(id, 0, name)
			if err != nil {
				reply.Error = errnoOf(err)
				return reply
			}
			writerIndex = idx
		}
		if err := a.Ports.AddPort(id, a.Worker, flags, name, readerIndex, writerIndex); err != nil {
			reply.Error = errnoOf(ErrInvalid)
			return reply
		}
		reply.VPort = req.VPort

	case wire.CmdDel:
		flags := req.VPort.Flags
		if flags&port.FlagIn != 0 && a.Attach != nil {
			_ = a.Attach.DetachReader(id)
		}
		if flags&port.FlagOut != 0 && a.Attach != nil {
			_ = a.Attach.DetachWriter(id)
		}
		if err := a.Ports.RemovePort(id, a.Worker, flags); err != nil {
			reply.Error = errnoOf(ErrInvalid)
			return reply
		}
		reply.VPort = req.VPort

	case wire.CmdGet:
		snap := a.PortStats.Sum(id)
		reply.VPort.ID = id
		reply.VPort.Stats = wire.StatsBody(snap)

	default:
		reply.Error = errnoOf(ErrInvalid)
	}
	return reply
}

func nameString(name [wire.NameSize]byte) string {
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return string(name[:n])
}

// handleFlow implements the create-or-replace-with-stats-carry-over
// contract verbatim (spec.md §4.4.4).
func (a *Adapter) handleFlow(req *wire.Message) *wire.Message {
	reply := wire.NewReply(req)

	switch req.Command {
	case wire.CmdNew:
		key := keyFromWire(req.Flow.Key)

		var old *flow.Entry
		found := false
		if req.Flow.Replace {
			if e, ok := a.Table.Delete(key); ok {
				old, found = e, true
			}
		}
		if !found && !req.Flow.Create {
			reply.Error = errnoOf(ErrNoEntry)
			reply.Flow.Found = false
			return reply
		}

		actions := actionsFromWire(req.Flow.Actions, req.Flow.NumActions)
		var initial flow.Stats
		if found && !req.Flow.Clear {
			initial = old.Stats
		}
		entry := a.Table.Insert(key, actions, initial)

		reply.Flow.FlowHandle = uint64(entry.Handle)
		reply.Flow.Found = found
		if req.Flow.Clear && found {
			reply.Flow.Stats = flowStatsToWire(old.Stats, a.wallMs(old.Stats.LastUsed))
		} else {
			reply.Flow.Stats = flowStatsToWire(entry.Stats, a.wallMs(entry.Stats.LastUsed))
		}

	case wire.CmdDel:
		key := keyFromWire(req.Flow.Key)
		e, found := a.Table.Delete(key)
		reply.Flow.Found = found
		if found {
			reply.Flow.Stats = flowStatsToWire(e.Stats, a.wallMs(e.Stats.LastUsed))
		}

	case wire.CmdGet:
		if req.Flow.FlowHandle == 0 {
			reply.Error = errnoOf(ErrInvalid)
			return reply
		}
		e, err := a.Table.Get(flow.Handle(req.Flow.FlowHandle))
		if err != nil {
			reply.Error = errnoOf(err)
			return reply
		}
		reply.Flow.Key = keyToWire(e.Key)
		reply.Flow.Actions, reply.Flow.NumActions = actionsToWire(e.Actions)
		reply.Flow.Stats = flowStatsToWire(e.Stats, a.wallMs(e.Stats.LastUsed))
		reply.Flow.Found = true

	default:
		reply.Error = errnoOf(ErrInvalid)
	}
	return reply
}

// handlePacket implements the PACKET_CMD ACTION injection path
// (spec.md §4.4.5): req.Packet.Packet already holds the bare frame
// bytes, which are copied into a freshly allocated buffer; the
// attached action list runs through the interpreter with the same
// clone-on-multi-output discipline the main hit path uses. There is
// no framework hit-path emit for an adapter-injected buffer, so the
// first OUTPUT is emitted explicitly here. No stub table is involved:
// a buffer that no OUTPUT takes is not returned to any slab and is
// simply released.
func (a *Adapter) handlePacket(req *wire.Message) *wire.Message {
	reply := wire.NewReply(req)
	if req.Command != wire.CmdAction {
		reply.Error = errnoOf(ErrInvalid)
		return reply
	}
	if a.Interp == nil {
		reply.Error = errnoOf(ErrInvalid)
		return reply
	}

	pkt := iop.NewPacketBuffer()
	pkt.SetData(req.Packet.Packet)
	actions := actionsFromWire(req.Packet.Actions, req.Packet.NumActions)

	res := a.Interp.Execute(pkt, actions)
	if res.HasFirstOutput && a.Interp.Emit != nil {
		a.Interp.Emit(res.FirstOutputPort, pkt)
	}
	return reply
}
