package main

import (
	"context"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"
	"github.com/sagernet/sing-cio/transport/secure"
	"github.com/sagernet/sing-cio/transport/tcp"

	"github.com/spf13/cobra"
)

func newEchoCommand() *cobra.Command {
	var (
		listen      string
		secureFlags secureFlags
	)
	command := &cobra.Command{
		Use:   "echo",
		Short: "Run an echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(listen, &secureFlags)
		},
	}
	command.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:7000", "Set the listen address.")
	secureFlags.bind(command)
	return command
}

func runEcho(listen string, secureFlags *secureFlags) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	address, err := M.ParseSocksaddr(listen)
	if err != nil {
		return err
	}
	secureConfig, err := secureFlags.build(config, true)
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
	listener, err := tcp.Listen(manager, address, config.TCPOptions())
	if err != nil {
		return err
	}
	defer listener.Close()
	logger := log.NewLogger("echo")
	logger.Info("listening at ", listener.Addr())
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	return listener.Serve(ctx, N.SocketHandlerFunc(func(ctx context.Context, socket N.Socket) error {
		logger.Debug("accepted ", socket.RemoteAddr())
		if secureConfig == nil {
			_, err := channel.CopyAndClose(ctx, socket.AttachForReading(), socket.AttachForWriting())
			return err
		}
		session, err := secure.Server(ctx, socket, *secureConfig)
		if err != nil {
			return E.Cause(err, "handshake")
		}
		_, err = channel.CopyAndClose(ctx, session.AttachForReading(), session.AttachForWriting())
		if err != nil {
			session.Cancel(err)
			return err
		}
		select {
		case <-session.Done():
			return session.Err()
		case <-ctx.Done():
			session.Close()
			return ctx.Err()
		}
	}), logger)
}
