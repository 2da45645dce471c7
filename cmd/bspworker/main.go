package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bspgraph/bspgraph/aggregator"
	"github.com/bspgraph/bspgraph/cmn"
	"github.com/bspgraph/bspgraph/cmn/nlog"
	"github.com/bspgraph/bspgraph/engine"
	"github.com/bspgraph/bspgraph/hashring"
	"github.com/bspgraph/bspgraph/hk"
	"github.com/bspgraph/bspgraph/mailbox"
	"github.com/bspgraph/bspgraph/master"
	"github.com/bspgraph/bspgraph/stats"
	"github.com/bspgraph/bspgraph/winfo"
)

var (
	configPath   string
	topologyPath string
	procID       int
)

func init() {
	flag.StringVar(&configPath, "config", "", "worker configuration file")
	flag.StringVar(&topologyPath, "topology", "", "cluster topology file")
	flag.IntVar(&procID, "procid", -1, "this process's id within the topology")
}

// worker is everything one process needs after bootstrap: the directory,
// the completed ring, the mailbox plumbing, the aggregator group, and a
// ChannelStore an embedding application registers its own channels into.
type worker struct {
	wi        *winfo.WorkerInfo
	ring      *hashring.HashRing
	loop      *mailbox.EventLoop
	transport *mailbox.HTTPTransport
	receiver  *mailbox.CentralReceiver
	mailboxes []*mailbox.LocalMailbox // indexed by local id
	group     *aggregator.Group
	store     *engine.ChannelStore
	mc        *master.Client
}

func main() {
	flag.Parse()
	if configPath == "" || topologyPath == "" || procID < 0 {
		fmt.Fprintln(os.Stderr, "usage: bspworker -config <file> -topology <file> -procid <n>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := cmn.Load(configPath)
	if err != nil {
		nlog.Fatalf("bspworker: failed to load config %q: %v", configPath, err)
	}
	nlog.SetLogDirRole(cfg.Log.Dir, "worker")

	topo, err := loadTopology(topologyPath)
	if err != nil {
		nlog.Fatalf("bspworker: failed to load topology %q: %v", topologyPath, err)
	}
	if procID >= len(topo.Processes) {
		nlog.Fatalf("bspworker: procid %d out of range for %d processes", procID, len(topo.Processes))
	}

	w := bootstrap(cfg, topo, procID)
	installSignalHandler(w, cfg)

	nlog.Infof("bspworker: proc %d ready, %d local workers, %d total workers across %d processes",
		procID, len(w.mailboxes), w.wi.NumWorkers(), w.wi.NumProcesses())

	// Block serving mailbox traffic, metrics, and housekeeping until an
	// embedding application drives its own computation against w.store,
	// or a signal tears the process down.
	select {}
}

// bootstrap builds the WorkerInfo directory, starts the mailbox event loop
// and central receiver, joins the master for every local worker and fetches
// the hash ring, in that order, then starts the housekeeping registrar.
func bootstrap(cfg *cmn.Config, topo *topology, procID int) *worker {
	wi := buildWorkerInfo(topo, procID)

	transport := mailbox.NewHTTPTransport(func(pid int) string {
		return fmt.Sprintf("%s:%d", wi.Host(pid), cfg.Worker.CommPort)
	})
	transport.SetCompressionMinSize(cfg.Net.CompressionMinSize)
	tidToPid := func(tid uint32) int { return wi.ProcIDOf(int(tid)) }
	loop := mailbox.NewEventLoop(procID, tidToPid, transport)
	go loop.Run()

	receiver := mailbox.NewCentralReceiver(fmt.Sprintf(":%d", cfg.Worker.CommPort), loop)
	go receiver.ListenAndServe()

	localGlobalIDs := topo.Processes[procID].GlobalIDs
	mailboxes := make([]*mailbox.LocalMailbox, len(localGlobalIDs))
	for i, gid := range localGlobalIDs {
		mailboxes[i] = loop.Mailbox(uint32(gid))
	}

	masterAddr := fmt.Sprintf("%s:%d", cfg.Master.Host, cfg.Master.Port)
	mc := master.NewClient(masterAddr)
	for _, gid := range localGlobalIDs {
		if err := mc.Join(gid); err != nil {
			nlog.Fatalf("bspworker: failed to join master as worker %d: %v", gid, err)
		}
	}
	ring, err := mc.GetHashRing()
	if err != nil {
		nlog.Fatalf("bspworker: failed to fetch hash ring: %v", err)
	}

	stats.Init("worker", procID)

	group := aggregator.NewGroup(wi, mailboxes[0], len(mailboxes))
	store := engine.NewChannelStore()

	registerHousekeeping(cfg, transport, mailboxes)
	go serveMetrics(cfg)

	return &worker{
		wi:        wi,
		ring:      ring,
		loop:      loop,
		transport: transport,
		receiver:  receiver,
		mailboxes: mailboxes,
		group:     group,
		store:     store,
		mc:        mc,
	}
}

// buildWorkerInfo turns a topology (identical on every process) into the
// flat directory every other component resolves tids through.
func buildWorkerInfo(topo *topology, procID int) *winfo.WorkerInfo {
	wi := winfo.New()
	wi.SetProcID(procID)
	wi.SetNumProcesses(len(topo.Processes))
	wi.SetNumWorkers(topo.numWorkers())

	for pid, p := range topo.Processes {
		wi.AddProc(pid, p.Hostname)
		for localID, gid := range p.GlobalIDs {
			if err := wi.AddWorker(pid, gid, localID); err != nil {
				nlog.Fatalf("bspworker: bad topology entry (proc %d, worker %d): %v", pid, gid, err)
			}
		}
	}
	return wi
}

// registerHousekeeping wires the two concrete periodic jobs this runtime
// needs: pruning fully-drained mailbox cells and tearing down peer streams
// idle past the configured duration.
func registerHousekeeping(cfg *cmn.Config, transport *mailbox.HTTPTransport, mailboxes []*mailbox.LocalMailbox) {
	idle := cfg.Net.IdleTeardown

	hk.Reg("mailbox-prune-done", func() time.Duration {
		total := 0
		for _, mb := range mailboxes {
			total += mb.PruneDone()
		}
		if total > 0 {
			nlog.Infof("bspworker: pruned %d drained mailbox cells", total)
		}
		return 0
	}, idle)

	hk.Reg("transport-sweep-idle", func() time.Duration {
		if n := transport.SweepIdle(idle); n > 0 {
			nlog.Infof("bspworker: closed %d idle peer streams", n)
		}
		return 0
	}, idle)

	go hk.DefaultHK.Run()
	hk.WaitStarted()
}

func serveMetrics(cfg *cmn.Config) {
	if cfg.Worker.MetricsPort == 0 || stats.Default == nil {
		return
	}
	addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
	if err := http.ListenAndServe(addr, stats.Default.Handler()); err != nil {
		nlog.Warningf("bspworker: metrics listener on %s stopped: %v", addr, err)
	}
}

// installSignalHandler announces this process's workers as exited to the
// master on SIGINT/SIGTERM, then terminates.
func installSignalHandler(w *worker, cfg *cmn.Config) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		hostname := cfg.Worker.Hostname
		for _, gid := range w.wi.TidsByPid(w.wi.ProcID()) {
			if err := w.mc.Exit(hostname, gid); err != nil {
				nlog.Warningf("bspworker: exit notification for worker %d failed: %v", gid, err)
			}
		}
		os.Exit(0)
	}()
}
