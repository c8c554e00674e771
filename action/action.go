// Package action implements the action interpreter (component F,
// spec.md §4.2): an ordered tagged-union action list executed over a
// packet buffer, including clone-on-multi-output fan-out.
package action

// Kind discriminates the tagged union. Go has no native union, so
// Action below is a flat struct carrying only the fields relevant to
// its Kind populated — the same flattening wiresock's own
// StaticFilterEntry uses for its own filter union, and the same shape
// ovdk_action lays its C union out in.
type Kind uint8

const (
	Output Kind = iota
	Drop
	ToController
	PopVLAN
	PushVLAN
	SetEthernet
	SetIPv4
	SetTCP
	SetUDP
)

// UpcallCommand distinguishes a table-miss upcall from an
// action-initiated one (spec.md §4.2 TO-CONTROLLER, §4.4.1).
type UpcallCommand uint8

const (
	UpcallMiss UpcallCommand = iota
	UpcallAction
)

// Action is one element of a flow entry's ordered action list
// (spec.md §3). Only the fields relevant to Kind are meaningful.
type Action struct {
	Kind Kind

	// Output
	Port uint32

	// ToController
	Command UpcallCommand

	// PushVLAN
	TCI uint16

	// SetEthernet
	EthSrc, EthDst [6]byte

	// SetIPv4
	IPSrc, IPDst uint32
	IPTOS, IPTTL uint8

	// SetTCP / SetUDP
	L4Src, L4Dst uint16
}

// NewOutput builds an OUTPUT(port) action.
func NewOutput(port uint32) Action { return Action{Kind: Output, Port: port} }

// NewDrop builds a DROP action.
func NewDrop() Action { return Action{Kind: Drop} }

// NewToController builds a TO-CONTROLLER action with the given upcall command.
func NewToController(cmd UpcallCommand) Action { return Action{Kind: ToController, Command: cmd} }

// NewPopVLAN builds a POP-VLAN action.
func NewPopVLAN() Action { return Action{Kind: PopVLAN} }

// NewPushVLAN builds a PUSH-VLAN(tci) action.
func NewPushVLAN(tci uint16) Action { return Action{Kind: PushVLAN, TCI: tci} }

// NewSetEthernet builds a SET-ETHERNET(src,dst) action.
func NewSetEthernet(src, dst [6]byte) Action {
	return Action{Kind: SetEthernet, EthSrc: src, EthDst: dst}
}

// NewSetIPv4 builds a SET-IPV4(src,dst,tos,ttl) action.
func NewSetIPv4(src, dst uint32, tos, ttl uint8) Action {
	return Action{Kind: SetIPv4, IPSrc: src, IPDst: dst, IPTOS: tos, IPTTL: ttl}
}

// NewSetTCP builds a SET-TCP(src,dst) action.
func NewSetTCP(src, dst uint16) Action { return Action{Kind: SetTCP, L4Src: src, L4Dst: dst} }

// NewSetUDP builds a SET-UDP(src,dst) action.
func NewSetUDP(src, dst uint16) Action { return Action{Kind: SetUDP, L4Src: src, L4Dst: dst} }
