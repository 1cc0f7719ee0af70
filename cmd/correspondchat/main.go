package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/correspond/internal/config"
	"github.com/danmuck/correspond/internal/correspondence"
	"github.com/danmuck/correspond/internal/idgen"
	"github.com/danmuck/correspond/internal/logging"
	"github.com/danmuck/correspond/internal/peer"
	"github.com/danmuck/correspond/internal/protocol"
	"github.com/danmuck/correspond/internal/security"
	"github.com/danmuck/correspond/internal/transport"
	logs "github.com/danmuck/smplog"
)

func main() {
	configPath := flag.String("config", "cmd/correspondchat/config.toml", "path to client config")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		logs.Errf("correspondchat: %v", err)
		os.Exit(1)
	}
	logging.ConfigureFromFile(logging.ProfileRuntime, cfg.LogLevel)

	if err := run(cfg); err != nil {
		logs.Errf("correspondchat: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.ClientConfig) error {
	kind, err := transport.ResolveKind(string(cfg.Transport))
	if err != nil {
		return err
	}
	tlsConfig, err := security.ClientTLSConfig(cfg.ResolvedSecurityMode(), cfg.ResolvedTLS())
	if err != nil {
		return err
	}
	stream, err := transport.Dial(kind, cfg.DialAddr, tlsConfig)
	if err != nil {
		return err
	}

	p := peer.New(idgen.NewPeerID(), stream)
	p.SetLogger(logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	c, err := p.Correspond(protocol.MessageHeader{
		Subject:       "chat.room",
		Authorization: cfg.AuthToken,
	})
	if err != nil {
		return err
	}

	go printInbound(c)

	fmt.Println("connected. type lines to send, Ctrl-D to finish.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := c.Write(scanner.Text()); err != nil {
			return err
		}
	}
	if err := c.Finish(); err != nil {
		return err
	}

	stream.Close()
	return <-runErr
}

func printInbound(c *correspondence.Correspondence) {
	for body, err := range c.All() {
		if err != nil {
			logs.Warnf("correspondchat: %v", err)
			return
		}
		fmt.Printf("peer: %v\n", body)
	}
}
