// Command fastpathd runs the fast-path datapath core: one pinned
// worker goroutine per configured core, each driving its own pipeline
// and servicing its own control ring, with a Prometheus metrics
// endpoint and signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ovdk-go/fastpath/action"
	"github.com/ovdk-go/fastpath/control"
	"github.com/ovdk-go/fastpath/control/wire"
	"github.com/ovdk-go/fastpath/flow"
	"github.com/ovdk-go/fastpath/iop"
	"github.com/ovdk-go/fastpath/pipeline"
	"github.com/ovdk-go/fastpath/port"
	"github.com/ovdk-go/fastpath/ring"
	"github.com/ovdk-go/fastpath/stats"
)

func main() {
	v := viper.New()
	root := newRootCmd(v)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fastpathd",
		Short: "Run the fast-path switch datapath core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := hclog.New(&hclog.LoggerOptions{
				Name:  "fastpathd",
				Level: hclog.LevelFromString(cfg.LogLevel),
			})
			return run(cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.Int("workers", 1, "number of pinned pipeline workers")
	flags.Uint64("portmask", 0, "bitmask of enabled physical port ids")
	flags.Int("ring-capacity", 2048, "capacity of each shared-memory ring")
	flags.String("shared-region", "", "path backing the mmap'd port registry mirror (empty for anonymous)")
	flags.String("metrics-addr", "127.0.0.1:9120", "listen address for the Prometheus /metrics endpoint")
	flags.String("log-level", "info", "log level: trace|debug|info|warn|error")
	flags.String("config", "", "path to a YAML/JSON config file")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("FASTPATHD")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		if path := v.GetString("config"); path != "" {
			v.SetConfigFile(path)
			_ = v.ReadInConfig()
		}
	})

	return cmd
}

// run builds every component, brings up the configured workers and
// ports, serves /metrics, and blocks until a termination signal
// arrives, returning nil on an orderly shutdown.
func run(cfg Config, logger hclog.Logger) error {
	portRegistry, err := port.NewRegistry(cfg.SharedRegion)
	if err != nil {
		return fmt.Errorf("fastpathd: init port registry: %w", err)
	}
	defer portRegistry.Close()

	statsRegistry := stats.NewRegistry()

	reg := prometheus.NewRegistry()
	reg.MustRegister(stats.NewCollector(statsRegistry))
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Named("metrics").Error("metrics server stopped", "error", err)
		}
	}()

	slab := ring.NewSlab[iop.PacketBuffer](4 * cfg.RingCapacity, iop.NewPacketBuffer)

	workers := make([]*pipeline.Worker, cfg.Workers)
	for i := range workers {
		workers[i] = buildWorker(uint32(i), cfg, portRegistry, statsRegistry, slab, logger)
	}

	if err := bringUpConfiguredPorts(cfg, workers, portRegistry, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *pipeline.Worker) {
			defer wg.Done()
			w.Loop(ctx)
		}(w)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for workers to drain")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	return nil
}

// buildWorker wires one worker's flow table, interpreter, control
// adapter, and driver together. The cycle-to-wall-clock conversion
// needs no calibration: this runtime has no portable cycle counter,
// so "cycles" here are simply Unix-epoch nanoseconds from
// time.Now().UnixNano() (a wall-clock reading, not a monotonic one),
// which keeps the 0-maps-to-0 contract trivially true and every other
// conversion a plain integer division.
func buildWorker(id uint32, cfg Config, portRegistry *port.Registry, statsRegistry *stats.Registry, slab *ring.Slab[iop.PacketBuffer], logger hclog.Logger) *pipeline.Worker {
	table := flow.NewTable()
	stub := flow.NewStubTable()
	interp := &action.Interpreter{}

	driver := pipeline.NewDriver(table, stub, interp)
	driver.NowCycle = nowNanos
	driver.Logger = logger.Named("pipeline").With("worker", id)

	exceptionCounters := statsRegistry.For(exceptionStatsPortID, id)
	exceptionWriter := iop.NewSharedMemPort(cfg.RingCapacity, slab, exceptionCounters)
	exceptionWriter.Logger = logger.Named("exception").With("worker", id)

	// interp.Upcall is the exception path's single entry point: it
	// re-derives the flow key (the buffer is never mutated ahead of a
	// TO-CONTROLLER action, whether action-initiated or a table miss,
	// so re-extracting is cheap and exact rather than stale), prepends
	// the upcall header, and hands the buffer to the exception writer
	// a sibling controller process drains (spec.md §4.2, §4.4.1).
	interp.Upcall = func(buf *iop.PacketBuffer, cmd action.UpcallCommand) bool {
		key := flow.Extract(buf.InPort, buf)
		if !pipeline.PrependUpcallHeader(buf, cmd, buf.InPort, key) {
			exceptionCounters.TXDrop.Add(1)
			slab.Put(buf)
			return false
		}
		return exceptionWriter.WriteBurst([]*iop.PacketBuffer{buf}) == 1
	}

	driver.OnMiss = func(misses []*iop.PacketBuffer, inPort uint32) {
		driver.Logger.Debug("miss burst", "count", len(misses), "in_port", inPort)
		for _, pkt := range misses {
			interp.Upcall(pkt, action.UpcallMiss)
		}
	}

	adapter := &control.Adapter{
		Worker:         id,
		Portmask:       cfg.Portmask,
		Table:          table,
		Ports:          portRegistry,
		PortStats:      statsRegistry,
		Interp:         interp,
		Request:        ring.NewBuffer[*wire.Message](cfg.RingCapacity),
		Reply:          ring.NewBuffer[*wire.Message](cfg.RingCapacity),
		NowCycles:      nowNanos,
		CyclesToWallMs: cyclesToWallMs,
		Logger:         logger.Named("control").With("worker", id),
	}

	w := pipeline.NewWorker(id, driver, portRegistry, statsRegistry, logger.Named("worker").With("id", id))
	w.Adapter = adapter
	w.Slab = slab
	adapter.Attach = w
	return w
}

// exceptionStatsPortID keys the per-worker exception ring's counters
// in the shared stats.Registry. It is not a port registry id — the
// exception ring is worker-scoped plumbing (spec.md §6's ring-name
// list puts "exception" alongside "request"/"reply", not in the
// external vport namespace), so it is kept out of port.MaxTotal's
// range entirely rather than squatting on a real port id.
const exceptionStatsPortID = ^uint32(0)

func nowNanos() uint64 {
	return uint64(time.Now().UnixNano())
}

func cyclesToWallMs(cycles uint64) uint64 {
	if cycles == 0 {
		return 0
	}
	return cycles / uint64(time.Millisecond)
}

// bringUpConfiguredPorts attaches each configured port's reader/writer
// side directly (bypassing the control wire format, which exists for
// a co-located controller process, not for the daemon's own startup
// sequencing) and registers it in the shared port registry.
func bringUpConfiguredPorts(cfg Config, workers []*pipeline.Worker, portRegistry *port.Registry, logger hclog.Logger) error {
	for _, pc := range cfg.Ports {
		if int(pc.Worker) >= len(workers) {
			return fmt.Errorf("fastpathd: port %d assigned to worker %d, only %d configured", pc.ID, pc.Worker, len(workers))
		}
		w := workers[pc.Worker]

		var flags uint32
		readerIndex, writerIndex := port.InvalidIndex, port.InvalidIndex

		switch pc.Kind {
		case "tap":
			dev, err := os.OpenFile(pc.Name, os.O_RDWR, 0)
			if err != nil {
				return fmt.Errorf("fastpathd: open tap device %q for port %d: %w", pc.Name, pc.ID, err)
			}
			tapCounters := newPortCounters(w, pc.ID)
			tapPort := iop.NewTapPort(dev, dev, tapCounters, slabPutter{w})
			if pc.In {
				idx, _ := w.AttachExistingReader(pc.ID, tapPort)
				readerIndex = idx
				flags |= port.FlagIn
			}
			if pc.Out {
				idx, _ := w.AttachExistingWriter(pc.ID, tapPort)
				writerIndex = idx
				flags |= port.FlagOut
			}

		case "null":
			counters := newPortCounters(w, pc.ID)
			nullPort := iop.NewNullPort(counters, slabPutter{w})
			if pc.In {
				idx, _ := w.AttachExistingReader(pc.ID, nullPort)
				readerIndex = idx
				flags |= port.FlagIn
			}
			if pc.Out {
				idx, _ := w.AttachExistingWriter(pc.ID, nullPort)
				writerIndex = idx
				flags |= port.FlagOut
			}

		case "shared-mem", "":
			counters := newPortCounters(w, pc.ID)
			shm := iop.NewSharedMemPort(cfg.RingCapacity, w.Slab, counters)
			shm.Logger = logger.Named("port").With("id", pc.ID)
			if pc.In {
				idx, _ := w.AttachExistingReader(pc.ID, shm)
				readerIndex = idx
				flags |= port.FlagIn
			}
			if pc.Out {
				idx, _ := w.AttachExistingWriter(pc.ID, shm)
				writerIndex = idx
				flags |= port.FlagOut
			}

		default:
			return fmt.Errorf("fastpathd: port %d has unknown kind %q", pc.ID, pc.Kind)
		}

		if err := portRegistry.AddPort(pc.ID, pc.Worker, flags, pc.Name, readerIndex, writerIndex); err != nil {
			return fmt.Errorf("fastpathd: register port %d: %w", pc.ID, err)
		}
		logger.Info("port attached", "id", pc.ID, "worker", pc.Worker, "kind", pc.Kind, "name", pc.Name)
	}
	return nil
}

func newPortCounters(w *pipeline.Worker, portID uint32) *stats.Counters {
	return w.Stats.For(portID, w.ID)
}

// slabPutter adapts a Worker's slab to the narrow Put-only interface
// iop's port constructors expect.
type slabPutter struct {
	w *pipeline.Worker
}

func (s slabPutter) Put(buf *iop.PacketBuffer) {
	s.w.Slab.Put(buf)
}
