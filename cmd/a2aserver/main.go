// Command a2aserver boots the A2A runtime's HTTP surface (JSON-RPC + REST,
// both transports sharing one MainEventBus/QueueManager/TaskStore) and,
// optionally, the gRPC transport on a second listener.
//
// Grounded on the teacher's cmd/assistant bootstrap (example/cmd/assistant/main.go):
// the same flag-parsing + clue logging + signal-driven graceful shutdown
// shape, generalized to cobra subcommands (serve) matching the pack's
// cuemby-warren cmd/warren/main.go root-command convention, since this
// binary has more than one independent operator action (serve, plus
// a2actl's separate verb set) where the teacher's example had only one.
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

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	"goa.design/clue/log"

	"goa.design/a2a/eventbus"
	"goa.design/a2a/executor"
	"goa.design/a2a/handler"
	"goa.design/a2a/push"
	"goa.design/a2a/pushconfig"
	"goa.design/a2a/queuemanager"
	"goa.design/a2a/taskstore"
	grpctransport "goa.design/a2a/transport/grpc"
	jsonrpctransport "goa.design/a2a/transport/jsonrpc"
	resttransport "goa.design/a2a/transport/rest"
	"goa.design/a2a/types"

	"github.com/google/uuid"
)

// Config is the a2aserver bootstrap configuration file shape, loaded from
// YAML (spec.md's TaskStore/PushNotificationConfigStore are abstract; this
// binary wires the in-memory defaults unless a backend is configured).
type Config struct {
	HTTPAddr      string `yaml:"httpAddr"`
	GRPCAddr      string `yaml:"grpcAddr"`
	BusBuffer     int    `yaml:"busBuffer"`
	AdmissionCap  int    `yaml:"admissionCap"`
	ChildCapacity int    `yaml:"childCapacity"`
	AgentName     string `yaml:"agentName"`
	AgentURL      string `yaml:"agentUrl"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:      ":8080",
		GRPCAddr:      ":8081",
		BusBuffer:     256,
		AdmissionCap:  1024,
		ChildCapacity: 64,
		AgentName:     "a2a-agent",
		AgentURL:      "http://localhost:8080",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// card builds the minimal AgentCard this bootstrap binary can describe on
// its own; a real deployment overrides this with design-generated metadata
// (spec.md §1 Non-goals: agent card schema is out of scope beyond capability
// flags needed for routing).
type staticCards struct{ card *types.AgentCard }

func (c staticCards) AgentCard(context.Context) (*types.AgentCard, error) { return c.card, nil }
func (c staticCards) ExtendedAgentCard(context.Context) (*types.AgentCard, error) {
	return c.card, nil
}

func main() {
	root := &cobra.Command{
		Use:   "a2aserver",
		Short: "Runs the A2A event pipeline behind JSON-RPC, REST, and gRPC transports",
	}

	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the A2A server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a2aserver YAML config")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// echoExecutor is the bootstrap default AgentExecutor: it immediately
// completes every task by echoing the inbound message as the sole
// artifact. Production deployments replace it by calling serve's wiring
// with their own executor.AgentExecutor (component C8 is an external
// collaborator per spec.md §1).
type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, reqCtx executor.RequestContext, sink executor.Sink) error {
	if reqCtx.Message != nil {
		if err := sink.Emit(ctx, reqCtx.TaskID, types.NewTaskArtifactEvent(&types.TaskArtifactUpdate{
			TaskID:   reqCtx.TaskID,
			Artifact: &types.Artifact{ArtifactID: "echo", Parts: reqCtx.Message.Parts},
		})); err != nil {
			return err
		}
	}
	return sink.Emit(ctx, reqCtx.TaskID, types.NewTaskStatusEvent(&types.TaskStatusUpdate{
		TaskID: reqCtx.TaskID,
		Status: types.TaskStatus{State: types.TaskStateCompleted},
		Final:  true,
	}))
}

func (echoExecutor) Cancel(context.Context, string) error { return nil }

func serve(ctx context.Context, cfg Config) error {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx = log.Context(ctx, log.WithFormat(format))
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := eventbus.NewBus(cfg.BusBuffer, cfg.AdmissionCap)
	store := taskstore.NewMemory()
	tracker := eventbus.NewTracker()
	queues := queuemanager.New(cfg.ChildCapacity, tracker)
	configs := pushconfig.NewMemory(func() string { return uuid.NewString() })
	sender := push.NewSender(configs)

	proc := eventbus.NewProcessor(bus, store, queues, tracker, eventbus.WithPushNotifier(sender))
	go proc.Run(ctx)

	h := handler.New(bus, store, queues, configs, echoExecutor{})

	card := &types.AgentCard{
		ProtocolVersion: "1.0",
		Name:            cfg.AgentName,
		URL:             cfg.AgentURL,
		Version:         "0.1.0",
		Capabilities:    types.Capabilities{Streaming: true, PushNotifications: true},
	}

	mux := http.NewServeMux()
	mux.Handle("/a2a", jsonrpctransport.New(h))
	mux.Handle("/v1/", resttransport.New(h, staticCards{card: card}))

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	errCh := make(chan error, 2)
	go func() {
		log.Print(ctx, log.KV{K: "http-addr", V: cfg.HTTPAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer = grpc.NewServer()
		grpctransport.Register(grpcServer, grpctransport.NewService(h))
		go func() {
			log.Print(ctx, log.KV{K: "grpc-addr", V: cfg.GRPCAddr})
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error(ctx, err, log.KV{K: "msg", V: "server error"})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return nil
}
