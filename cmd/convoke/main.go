// Command convoke runs an interactive tool-augmented chat session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/callbacks"
	"github.com/convoke-ai/convoke/chatmodel"
	"github.com/convoke-ai/convoke/config"
	"github.com/convoke-ai/convoke/gateway"
	"github.com/convoke-ai/convoke/llmfactory"
	"github.com/convoke-ai/convoke/mcp"
	"github.com/convoke-ai/convoke/mcp/localserver"
	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/convoke-ai/convoke/mcp/transport/httptransport"
	"github.com/convoke-ai/convoke/mcp/transport/stdiotransport"
	"github.com/convoke-ai/convoke/orchestrator"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/convoke-ai/convoke/pkg/llmutils"
	"github.com/convoke-ai/convoke/registry"
	"github.com/convoke-ai/convoke/store"
	"github.com/convoke-ai/convoke/tools/tavily"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "main")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgFile = flag.String("cfg", "convoke.yaml", "path to the configuration file")
		model   = flag.String("model", "", "model backend name, defaults to the first configured")
		chatID  = flag.String("chat", "", "chat ID to resume, a new one is generated when empty")
		verbose = flag.Bool("verbose", false, "print run events")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	_ = godotenv.Load()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if *debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}

	factory := llmfactory.New(&cfg.LLM)
	var m llms.Model
	if *model != "" {
		m, err = factory.ModelByName(ctx, *model)
	} else {
		m, err = factory.DefaultModel(ctx)
	}
	if err != nil {
		return err
	}
	var callOpts []llms.CallOption
	if bc := cfg.LLM.Backend(*model); bc != nil {
		callOpts = bc.CallOptions()
	}
	gw := gateway.New(m, callOpts...)

	reg := registry.New()
	defer func() {
		_ = reg.Close()
	}()
	for _, pc := range cfg.Providers {
		tr, err := buildTransport(pc)
		if err != nil {
			return err
		}
		conn := mcp.NewClient(pc.Name, tr)
		if err := conn.Connect(ctx); err != nil {
			logger.KV(xlog.WARNING, "provider", pc.Name, "reason", "connect", "err", err.Error())
		}
		reg.AddConnection(conn)
	}
	if err := reg.Refresh(ctx); err != nil {
		logger.KV(xlog.WARNING, "reason", "refresh", "err", err.Error())
	}

	opts := []orchestrator.Option{
		orchestrator.WithSystemPrompt(cfg.Orchestrator.SystemPrompt),
	}
	if cfg.Orchestrator.MaxSteps > 0 {
		opts = append(opts, orchestrator.WithMaxSteps(cfg.Orchestrator.MaxSteps))
	}
	if cfg.Orchestrator.HistoryLimit > 0 {
		opts = append(opts, orchestrator.WithHistoryLimit(cfg.Orchestrator.HistoryLimit))
	}
	if cfg.Redis != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, orchestrator.WithStore(store.NewRedisStore(client, cfg.Redis.Prefix)))
	} else {
		opts = append(opts, orchestrator.WithStore(store.NewMemoryStore()))
	}
	if *verbose {
		opts = append(opts, orchestrator.WithCallback(callbacks.NewPrinter(os.Stderr, callbacks.ModeVerbose)))
	}

	orc := orchestrator.New(gw, reg, opts...)
	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(*chatID, nil))

	fmt.Printf("model: %s, providers: %d, tools: %d\n", m.GetName(), len(reg.Connections()), len(reg.DescribeAll()))
	fmt.Println(`type a message, or "/info", "/history", "/clear", "/exit"`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit":
			return nil
		case "/info":
			bs, _ := yaml.Marshal(orc.Info())
			fmt.Println(string(bs))
		case "/history":
			llmutils.PrintMessages(os.Stdout, orc.History(0))
		case "/clear":
			if err := orc.Clear(ctx); err != nil {
				fmt.Println("error:", err)
			}
		default:
			res, err := orc.Run(ctx, line)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println(res.Answer)
		}
	}
}

func buildTransport(pc *config.ProviderConfig) (transport.Transport, error) {
	switch pc.Transport {
	case "streamable_http":
		return httptransport.New(pc.URL).WithHeaders(pc.Headers), nil
	case "stdio":
		tr := stdiotransport.New(pc.Command, pc.Args...)
		if len(pc.Env) > 0 {
			tr = tr.WithEnv(pc.Env)
		}
		return tr, nil
	case "local":
		srv := localserver.New(pc.Name)
		if os.Getenv("TAVILY_API_KEY") != "" {
			search, err := tavily.New()
			if err != nil {
				return nil, err
			}
			if err := srv.Register(search); err != nil {
				return nil, err
			}
		}
		return srv.Transport(), nil
	default:
		return nil, errors.Newf("unsupported transport: %s", pc.Transport)
	}
}
