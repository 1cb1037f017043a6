package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/ioustamora/datamesh/internal/adminrpc"
	"github.com/ioustamora/datamesh/internal/catalog"
	"github.com/ioustamora/datamesh/internal/config"
	"github.com/ioustamora/datamesh/internal/crypto"
	"github.com/ioustamora/datamesh/internal/logging"
	"github.com/ioustamora/datamesh/internal/metrics"
	"github.com/ioustamora/datamesh/internal/network"
	"github.com/ioustamora/datamesh/internal/orchestrator"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "datamesh",
	Short: "CLI driver for the datamesh peer-to-peer storage core",
	Long:  "Thin CLI surface over the storage core: put/get/list/info/delete files, run a long-lived node, and inspect network state.",
}

func init() {
	cobra.OnInitialize(initConfig)
	setupFlags()
	addCommands()
}

func setupFlags() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("catalog-path", "", "embedded catalog database path")
	rootCmd.PersistentFlags().StringSlice("bootstrap-peers", nil, "bootstrap peer multiaddrs (/ip4/.../tcp/.../p2p/...)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(configPath, rootCmd.PersistentFlags())
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}
	logging.InitLogger(cfg)
}

func addCommands() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(statsCmd)
}

// node bundles every long-lived component a CLI invocation needs: the
// network actor's processing loop running in the background, the catalog,
// and the orchestrator composed from both plus the node's encryption
// keypair. close() tears everything down in reverse order.
type node struct {
	orch  *orchestrator.Orchestrator
	actor *network.Actor
	cat   *catalog.Catalog
	reg   *metrics.Registry
	close func()
}

// newNode constructs a node's components. withMetrics controls whether the
// Prometheus registry and admin gRPC surface are brought up — one-shot CLI
// subcommands skip them; serve turns them on.
func newNode(ctx context.Context, withMetrics bool) (*node, error) {
	runCtx, cancel := context.WithCancel(ctx)

	actor, err := network.NewActor(runCtx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("constructing network actor: %w", err)
	}
	go actor.Run(runCtx)

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	keys, err := crypto.LoadOrCreateKeyPair(cfg.EncryptionKeyPath)
	if err != nil {
		cancel()
		cat.Close()
		return nil, fmt.Errorf("loading encryption keypair: %w", err)
	}

	var reg *metrics.Registry
	var grpcServer *grpc.Server

	if withMetrics {
		r, promReg := metrics.NewRegistry()
		reg = r

		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(promReg))
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("metrics server: %v", err)
				}
			}()
			go func() {
				<-runCtx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				srv.Shutdown(shutdownCtx)
			}()
		}
	}

	orch := orchestrator.New(cfg, actor, cat, keys, reg)

	if withMetrics && cfg.AdminRPCAddr != "" {
		grpcServer = adminrpc.NewServer()
		adminrpc.RegisterServer(grpcServer, orch)
		lis, err := net.Listen("tcp", cfg.AdminRPCAddr)
		if err != nil {
			cancel()
			cat.Close()
			return nil, fmt.Errorf("listening for admin rpc: %w", err)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				log.Errorf("admin rpc server: %v", err)
			}
		}()
		go func() {
			<-runCtx.Done()
			grpcServer.GracefulStop()
		}()
	}

	return &node{
		orch:  orch,
		actor: actor,
		cat:   cat,
		reg:   reg,
		close: func() {
			cancel()
			cat.Close()
		},
	}, nil
}

// withNode runs fn against a freshly constructed node, bootstrapping from
// cfg.BootstrapPeers first, and always tears the node down afterward. This
// is the shape every one-shot CLI subcommand (put/get/list/...) uses.
func withNode(fn func(ctx context.Context, n *node) error) error {
	ctx := context.Background()
	n, err := newNode(ctx, false)
	if err != nil {
		return err
	}
	defer n.close()

	if len(cfg.BootstrapPeers) > 0 {
		seeds, err := network.ParseAddrInfos(cfg.BootstrapPeers)
		if err != nil {
			return fmt.Errorf("parsing bootstrap peers: %w", err)
		}
		bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := n.actor.Bootstrap(bootstrapCtx, seeds); err != nil {
			log.Warnf("bootstrap: %v", err)
		}
	}

	return fn(ctx, n)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a long-lived datamesh node: join the DHT, serve metrics and admin RPC, run maintenance sweeps",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		n, err := newNode(ctx, true)
		if err != nil {
			log.Fatalf("starting node: %v", err)
		}
		defer n.close()

		log.Infof("node listening as %s on %v", n.actor.HostID(), n.actor.Addrs())

		if len(cfg.BootstrapPeers) > 0 {
			seeds, err := network.ParseAddrInfos(cfg.BootstrapPeers)
			if err != nil {
				log.Fatalf("parsing bootstrap peers: %v", err)
			}
			bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := n.actor.Bootstrap(bootstrapCtx, seeds); err != nil {
				log.Warnf("bootstrap: %v", err)
			}
			cancel()
		}

		sweep := time.NewTicker(5 * time.Minute)
		defer sweep.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return
			case <-sweep.C:
				if err := n.orch.MaintenanceSweep(ctx); err != nil {
					log.Warnf("maintenance sweep: %v", err)
				}
			}
		}
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Dial the configured bootstrap peers and print the resulting network state",
	Run: func(cmd *cobra.Command, args []string) {
		err := withNode(func(ctx context.Context, n *node) error {
			stats, err := n.actor.NetworkStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("connected peers: %d, routing table size: %d\n", stats.Connected, stats.RoutingTableSize)
			return nil
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print network and catalog statistics",
	Run: func(cmd *cobra.Command, args []string) {
		err := withNode(func(ctx context.Context, n *node) error {
			resp, err := n.orch.Stats(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("connected peers:     %d\n", resp.ConnectedPeers)
			fmt.Printf("routing table size:  %d\n", resp.RoutingTableSize)
			fmt.Printf("average rtt (ms):    %.2f\n", resp.AvgRTTMillis)
			fmt.Printf("catalog entries:     %d\n", resp.CatalogEntries)
			return nil
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
