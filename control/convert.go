package control

import (
	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/control/wire"
	"github.com/ovdk-go/fastpath/flow"
)

func keyFromWire(w wire.FlowKeyWire) flow.Key {
	return flow.Key{
		InPort:    w.InPort,
		EthSrc:    w.EthSrc,
		EthDst:    w.EthDst,
		EtherType: w.EtherType,
		VLANID:    w.VLANID,
		VLANPrio:  w.VLANPrio,
		IPSrc:     w.IPSrc,
		IPDst:     w.IPDst,
		IPProto:   w.IPProto,
		IPFrag:    flow.FragClass(w.IPFrag),
		L4Src:     w.L4Src,
		L4Dst:     w.L4Dst,
	}
}

func keyToWire(k flow.Key) wire.FlowKeyWire {
	return wire.FlowKeyWire{
		InPort:    k.InPort,
		EthSrc:    k.EthSrc,
		EthDst:    k.EthDst,
		EtherType: k.EtherType,
		VLANID:    k.VLANID,
		VLANPrio:  k.VLANPrio,
		IPSrc:     k.IPSrc,
		IPDst:     k.IPDst,
		IPProto:   k.IPProto,
		IPFrag:    uint8(k.IPFrag),
		L4Src:     k.L4Src,
		L4Dst:     k.L4Dst,
	}
}

func actionFromWire(w wire.FlowActionWire) action.Action {
	return action.Action{
		Kind:    action.Kind(w.Kind),
		Port:    w.Port,
		Command: action.UpcallCommand(w.Command),
		TCI:     w.TCI,
		EthSrc:  w.EthSrc,
		EthDst:  w.EthDst,
		IPSrc:   w.IPSrc,
		IPDst:   w.IPDst,
		IPTOS:   w.IPTOS,
		IPTTL:   w.IPTTL,
		L4Src:   w.L4Src,
		L4Dst:   w.L4Dst,
	}
}

func actionToWire(a action.Action) wire.FlowActionWire {
	return wire.FlowActionWire{
		Kind:    uint8(a.Kind),
		Command: uint8(a.Command),
		Port:    a.Port,
		TCI:     a.TCI,
		EthSrc:  a.EthSrc,
		EthDst:  a.EthDst,
		IPSrc:   a.IPSrc,
		IPDst:   a.IPDst,
		IPTOS:   a.IPTOS,
		IPTTL:   a.IPTTL,
		L4Src:   a.L4Src,
		L4Dst:   a.L4Dst,
	}
}

func actionsFromWire(list [wire.KMax]wire.FlowActionWire, n uint8) []action.Action {
	out := make([]action.Action, 0, n)
	for i := uint8(0); i < n && int(i) < len(list); i++ {
		out = append(out, actionFromWire(list[i]))
	}
	return out
}

func actionsToWire(actions []action.Action) ([wire.KMax]wire.FlowActionWire, uint8) {
	var out [wire.KMax]wire.FlowActionWire
	n := len(actions)
	if n > wire.KMax {
		n = wire.KMax
	}
	for i := 0; i < n; i++ {
		out[i] = actionToWire(actions[i])
	}
	return out, uint8(n)
}

func flowStatsToWire(s flow.Stats, usedWallMs uint64) wire.FlowStatsWire {
	return wire.FlowStatsWire{
		PacketCount: s.PacketCount,
		ByteCount:   s.ByteCount,
		UsedWallMs:  usedWallMs,
		TCPFlags:    s.TCPFlags,
	}
}
