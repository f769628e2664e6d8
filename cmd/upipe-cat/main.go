// Command upipe-cat glues a memsrc source to a memsink sink across a
// transfer pipe: it reads stdin line by line, drives every line through
// the source -> sink graph running on its own event-loop thread, and
// prints whatever memsink collected to stdout. The data path (Input
// calls) runs entirely within the owning thread; only the shutdown
// Release crosses threads, and it does so through internal/upipe/xfer,
// the one thing this CLI exists to exercise end to end.
//
// Adapted from cmd/ublk-mem/main.go's flag-parsing/logging-setup/signal-
// handling shape.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	upipego "github.com/upipe/upipe-go"
	"github.com/upipe/upipe-go/internal/logging"
	"github.com/upipe/upipe-go/internal/ubuf"
	"github.com/upipe/upipe-go/internal/udict"
	"github.com/upipe/upipe-go/internal/umem"
	"github.com/upipe/upipe-go/internal/upipe"
	"github.com/upipe/upipe-go/internal/upipe/xfer"
	"github.com/upipe/upipe-go/internal/upump"
	"github.com/upipe/upipe-go/internal/uref"
	"github.com/upipe/upipe-go/pkg/memstore"
	"github.com/upipe/upipe-go/pkg/source/memsrc"
	"github.com/upipe/upipe-go/pkg/sink/memsink"
)

const flowDef = "block."

func main() {
	var (
		maxLines = flag.Int("n", 65536, "maximum number of lines to read from stdin")
		verbose  = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	lines, err := readLines(os.Stdin, *maxLines)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}
	logger.Info("read input", "lines", len(lines))

	in := memstore.NewStore(len(lines))
	for i, line := range lines {
		in.Put(i, line)
	}
	registry := memstore.NewRegistry()
	registry.Register("stdin", in)
	out := memstore.NewStore(len(lines))

	dicts := udict.NewManager(64, 256)
	blocks := ubuf.NewBlockMgr(umem.NewHeapAllocator(), 64, 0, 0)
	urefMgr := uref.NewManager(dicts, blocks, nil, 64)

	runMetrics := upipego.NewMetrics()
	observer := upipego.NewMetricsObserver(runMetrics)
	urefMgr.SetObserver(observer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pump := upump.NewGoMgr()
	xferMgr := xfer.New(64)
	xferMgr.SetObserver(observer)

	done := make(chan struct{})
	root := upipe.NewRootProbe(logger)
	probe := &upipe.ChainProbe{Handler: func(p upipe.Pipe, ev upipe.Event, args ...any) upipe.Outcome {
		if ev == upipe.EventSourceEnd {
			close(done)
			return upipe.Handled
		}
		return root.OnEvent(p, ev, args...)
	}}

	sink := memsink.New(probe, out, urefMgr)
	src := memsrc.New(probe, registry, flowDef)
	src.SetObserver(observer)
	sink.SetObserver(observer)

	if err := src.Start(); err != nil {
		logger.Error("source start failed", "error", err)
		os.Exit(1)
	}
	if err := src.ProvideURefMgr(urefMgr); err != nil {
		logger.Error("source ProvideURefMgr failed", "error", err)
		os.Exit(1)
	}
	if err := src.ProvideUpumpMgr(pump); err != nil {
		logger.Error("source ProvideUpumpMgr failed", "error", err)
		os.Exit(1)
	}
	if err := src.ProvideURL("mem://stdin"); err != nil {
		logger.Error("source ProvideURL failed", "error", err)
		os.Exit(1)
	}
	if _, err := src.Control(upipe.OpSetOutput, upipe.Pipe(sink)); err != nil {
		logger.Error("source SetOutput failed", "error", err)
		os.Exit(1)
	}
	if err := xferMgr.Attach(pump); err != nil {
		logger.Error("transfer manager attach failed", "error", err)
		os.Exit(1)
	}
	if err := src.ProbeURL(src); err != nil {
		logger.Error("source probe failed", "error", err)
		os.Exit(1)
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := pump.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("event loop exited", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		logger.Info("source exhausted")
	case <-sigCh:
		logger.Info("received shutdown signal")
	}

	// Release crosses from this goroutine to the thread that owns pump
	// through the transfer manager rather than calling sink.Release()
	// directly, the cross-thread teardown the transfer pipe exists for.
	releaseProxy, err := xferMgr.Alloc(nil, sink)
	if err != nil {
		logger.Error("transfer alloc failed", "error", err)
	} else {
		releaseProxy.Release()
		time.Sleep(20 * time.Millisecond) // let the loop's idler drain the release command
	}
	cancel()

	select {
	case <-loopDone:
	case <-time.After(time.Second):
		logger.Info("event loop shutdown timeout")
	}

	for i := 0; i < out.Len(); i++ {
		record, ok := out.Get(i)
		if !ok {
			break
		}
		fmt.Println(string(record))
	}

	runMetrics.Stop()
	snap := runMetrics.Snapshot()
	logger.Info("run metrics",
		"alloc_ops", snap.AllocOps, "alloc_bytes", snap.AllocBytes,
		"input_ops", snap.InputOps, "input_bytes", snap.InputBytes,
		"control_ops", snap.ControlOps, "max_queue_depth", snap.MaxQueueDepth,
		"avg_latency_ns", snap.AvgLatencyNs)
}

func readLines(f *os.File, max int) ([][]byte, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines [][]byte
	for scanner.Scan() && len(lines) < max {
		// Non-nil even for an empty line: memstore treats a nil slot as unwritten.
		line := append([]byte{}, scanner.Bytes()...)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
