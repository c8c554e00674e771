// Command fastpath-capture attaches to a tap-kind port's kernel
// device as a second reader and dumps every frame it observes to a
// pcap file, for offline inspection of what the datapath is carrying.
// Grounded on wiresock's examples/capture/main.go, which does the same
// job against an NDIS intermediate buffer stream.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/ovdk-go/fastpath/iop"
)

func main() {
	device := flag.String("device", "", "path to the tap device to capture from")
	output := flag.String("out", "capture.pcap", "pcap file to write")
	flag.Parse()

	if *device == "" {
		log.Fatal("fastpath-capture: -device is required")
	}

	dev, err := os.OpenFile(*device, os.O_RDONLY, 0)
	if err != nil {
		log.Fatalf("fastpath-capture: open %q: %v", *device, err)
	}
	defer dev.Close()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("fastpath-capture: create %q: %v", *output, err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(iop.MaxFrame, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("fastpath-capture: write pcap header: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	frame := make([]byte, iop.MaxFrame)
	count := 0
	for {
		select {
		case <-done:
			fmt.Printf("fastpath-capture: wrote %d frames to %s\n", count, *output)
			return
		default:
		}

		n, err := dev.Read(frame)
		if err != nil {
			log.Printf("fastpath-capture: read: %v", err)
			return
		}
		if n == 0 {
			continue
		}

		packet := gopacket.NewPacket(frame[:n], layers.LayerTypeEthernet, gopacket.Default)
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: n,
			Length:        n,
		}
		if err := w.WritePacket(ci, packet.Data()); err != nil {
			log.Printf("fastpath-capture: write packet: %v", err)
			continue
		}
		count++
	}
}
