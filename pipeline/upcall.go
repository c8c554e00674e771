package pipeline

import (
	"encoding/binary"

	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/flow"
	"github.com/ovdk-go/fastpath/iop"
)

// UpcallHeaderLen is the fixed size of the header TO-CONTROLLER
// prepends ahead of a forwarded buffer's own bytes: a one-byte
// command, the four-byte translated in-port, and the encoded flow key
// (spec.md §4.2 "{command, translated in-port, flow key}").
const UpcallHeaderLen = 1 + 4 + flow.EncodedLen

// PrependUpcallHeader grows pkt backward by UpcallHeaderLen and fills
// it in, returning false if there wasn't enough headroom — the case
// §4.2/§4.4.1 require callers to treat as a drop.
func PrependUpcallHeader(pkt *iop.PacketBuffer, cmd action.UpcallCommand, inPort uint32, key flow.Key) bool {
	head, ok := pkt.Prepend(UpcallHeaderLen)
	if !ok {
		return false
	}
	head[0] = byte(cmd)
	binary.BigEndian.PutUint32(head[1:5], inPort)
	key.Encode(head[5:])
	return true
}
