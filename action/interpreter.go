package action

import (
	"fmt"

	"github.com/ovdk-go/fastpath/iop"
)

// Emit is called once per OUTPUT after the first: the pipeline/worker
// layer is responsible for actually handing buf to the writer port
// for portID (it owns the port registry; this package stays port-
// agnostic so it has no import-time dependency on port or pipeline).
type Emit func(portID uint32, buf *iop.PacketBuffer)

// Upcall is called for a TO-CONTROLLER action: the caller prepends
// the upcall header (command + translated in-port + flow key) and
// enqueues buf on the exception writer port, returning false if there
// wasn't enough headroom to prepend (spec.md §4.2/§4.4.1's "if the
// prepend fails, drop the buffer").
type Upcall func(buf *iop.PacketBuffer, cmd UpcallCommand) (ok bool)

// Result records what Execute decided for the buffer it was given.
type Result struct {
	// FirstOutputPort is set for the first OUTPUT in the action list,
	// wherever it appears: the framework's built-in "emit to port-id" fast path
	// handles this one (spec.md §4.2 "first OUTPUT ... is realised by
	// the framework's built-in emit"), so Execute reports it instead
	// of calling Emit for it.
	FirstOutputPort uint32
	HasFirstOutput  bool

	Dropped      bool
	UpcallFailed bool
}

// Interpreter executes ordered action lists over packet buffers
// (component F, spec.md §4.2).
type Interpreter struct {
	Emit   Emit
	Upcall Upcall
}

// Execute walks actions left to right over pkt. Any action list
// containing DROP or TO-CONTROLLER must have exactly that one action
// — a controller bug, not a runtime condition, so it panics (spec.md
// §7 "Programmer" error class), matching the assertion the original
// pipeline takes on the same malformed list.
func (in *Interpreter) Execute(pkt *iop.PacketBuffer, actions []Action) Result {
	var res Result

	if len(actions) == 1 {
		switch actions[0].Kind {
		case Drop:
			res.Dropped = true
			return res
		case ToController:
			if in.Upcall == nil || !in.Upcall(pkt, actions[0].Command) {
				res.UpcallFailed = true
			}
			return res
		}
	}

	firstOutput := true
	mb := pkt
	mbNext := pkt

	for i, a := range actions {
		mb = mbNext
		remaining := len(actions) - (i + 1)

		switch a.Kind {
		case Drop, ToController:
			panic(fmt.Sprintf("action: %v may only appear as a single-action list", a.Kind))

		case Output:
			// A buffer is considered sent the moment OUTPUT runs on
			// it, so if any action follows, clone before handing mb
			// off (spec.md §4.2's cloning rule; mirrors
			// ovdk_pipeline.c:actions_execute's clone-before-send).
			if remaining > 0 {
				mbNext = mb.Clone()
			}
			if firstOutput {
				// The framework's built-in hit-path emit handles the
				// very first OUTPUT; nothing to call explicitly.
				firstOutput = false
				res.FirstOutputPort = a.Port
				res.HasFirstOutput = true
				continue
			}
			if in.Emit != nil {
				in.Emit(a.Port, mb)
			}

		case PopVLAN:
			applyPopVLAN(mb)
		case PushVLAN:
			applyPushVLAN(mb, a.TCI)
		case SetEthernet:
			applySetEthernet(mb, a)
		case SetIPv4:
			applySetIPv4(mb, a)
		case SetTCP:
			applySetTCP(mb, a)
		case SetUDP:
			applySetUDP(mb, a)
		}
	}

	return res
}
