package port

import "fmt"

// Ring name templates for shared-memory ports (spec.md §6: "ring
// names are derived deterministically from the worker id and the
// external port id so a reattaching process can recompute them rather
// than look them up"). One rx/tx/free/alloc ring per (worker, port)
// pair.

// RxRingName returns the name of the ring a shared-mem port's reader
// side dequeues incoming packets from.
func RxRingName(worker, id uint32) string {
	return fmt.Sprintf("fp_rx_w%d_p%d", worker, id)
}

// TxRingName returns the name of the ring a shared-mem port's writer
// side enqueues outgoing packets to.
func TxRingName(worker, id uint32) string {
	return fmt.Sprintf("fp_tx_w%d_p%d", worker, id)
}

// FreeRingName returns the name of the ring the peer process returns
// drained rx buffers to.
func FreeRingName(worker, id uint32) string {
	return fmt.Sprintf("fp_free_w%d_p%d", worker, id)
}

// AllocRingName returns the name of the ring this process tops up
// with spare buffers for the peer to fill.
func AllocRingName(worker, id uint32) string {
	return fmt.Sprintf("fp_alloc_w%d_p%d", worker, id)
}

// TapDeviceName returns the default kernel interface name for a tap
// port given its external id, used when no explicit DeviceName is
// supplied in the port's IOParams.
func TapDeviceName(id uint32) string {
	return fmt.Sprintf("fp-tap%d", id-tapBase)
}
