package main

import (
	"context"
	"time"

	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"
	"github.com/sagernet/sing-cio/transport/pool"
	"github.com/sagernet/sing-cio/transport/tcp"

	"github.com/spf13/cobra"
)

func newForwardCommand() *cobra.Command {
	var listen string
	command := &cobra.Command{
		Use:   "forward address",
		Short: "Relay accepted connections to an upstream address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForward(listen, args[0])
		},
	}
	command.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:7001", "Set the listen address.")
	return command
}

func runForward(listen string, upstream string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	address, err := M.ParseSocksaddr(listen)
	if err != nil {
		return err
	}
	destination, err := M.ParseSocksaddr(upstream)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	manager, err := selector.NewManager(ctx, log.NewLogger("selector"))
	if err != nil {
		return err
	}
	defer manager.Close()
	factory := pool.NewConnectionFactory(manager, config.Connection.Limit, config.Connection.AddressLimit,
		pool.WithOptions(config.TCPOptions()),
		pool.WithLogger(log.NewLogger("pool")),
	)
	listener, err := tcp.Listen(manager, address, config.TCPOptions())
	if err != nil {
		return err
	}
	defer listener.Close()
	logger := log.NewLogger("forward")
	logger.Info("forwarding ", listener.Addr(), " to ", destination)
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	return listener.Serve(ctx, newForwardHandler(factory, destination, config.Connection.ConnectTimeout.Build()), logger)
}

func newForwardHandler(dialer N.Dialer, destination M.Socksaddr, connectTimeout time.Duration) N.SocketHandler {
	return N.SocketHandlerFunc(func(ctx context.Context, socket N.Socket) error {
		dialCtx := ctx
		if connectTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, connectTimeout)
			defer cancel()
		}
		upstream, err := dialer.DialSocket(dialCtx, destination)
		if err != nil {
			return E.Cause(err, "dial ", destination)
		}
		return N.Relay(ctx, socket, upstream)
	})
}
