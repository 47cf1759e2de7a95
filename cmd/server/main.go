package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/crystal-mush/nightchat/pkg/server"
	"github.com/mattn/go-isatty"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("NIGHTCHAT_CONF", "chat.yml"), "Path to chat.yml; created with defaults if missing (env: NIGHTCHAT_CONF)")
	port := flag.Int("port", 0, "HTTP port to listen on, overrides config (env: NIGHTCHAT_PORT)")
	debug := flag.Bool("debug", os.Getenv("NIGHTCHAT_DEBUG") == "true", "Enable debug logging (env: NIGHTCHAT_DEBUG)")
	console := flag.Bool("console", isatty.IsTerminal(os.Stdin.Fd()), "Read console commands from stdin (default when stdin is a terminal)")
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())
	server.SetDebug(*debug)

	if *port == 0 {
		if envPort := os.Getenv("NIGHTCHAT_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}

	conf, err := server.LoadChatConf(*confFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		conf.Server.Port = *port
	}

	host, err := server.NewHost(conf)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *console {
		go readConsole(ctx, host)
	}

	log.Printf("Starting nightchat on %s...", conf.Addr())
	runErr := host.Run(ctx)
	if runErr != nil {
		log.Printf("Server error: %v", runErr)
	}
	if err := host.Close(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Printf("Shutdown complete.")
	if runErr != nil {
		os.Exit(1)
	}
}

// readConsole runs stdin lines as console commands. A leading "/" is
// optional.
func readConsole(ctx context.Context, host *server.Host) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := host.Dispatch(server.ConsoleActor(), sc.Text()); err != nil {
			server.DebugLog("console: %v", err)
		}
	}
}
