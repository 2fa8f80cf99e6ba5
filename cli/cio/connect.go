package main

import (
	"context"
	"io"
	"os"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/log"
	M "github.com/sagernet/sing-cio/common/metadata"
	N "github.com/sagernet/sing-cio/common/network"
	"github.com/sagernet/sing-cio/common/selector"
	"github.com/sagernet/sing-cio/common/task"
	"github.com/sagernet/sing-cio/transport/pool"
	"github.com/sagernet/sing-cio/transport/secure"

	"github.com/spf13/cobra"
)

func newConnectCommand() *cobra.Command {
	var secureFlags secureFlags
	command := &cobra.Command{
		Use:   "connect address",
		Short: "Pipe stdin and stdout through a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(args[0], &secureFlags)
		},
	}
	secureFlags.bind(command)
	return command
}

func runConnect(destination string, secureFlags *secureFlags) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	address, err := M.ParseSocksaddr(destination)
	if err != nil {
		return err
	}
	secureConfig, err := secureFlags.build(config, false)
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
	factory := pool.NewConnectionFactory(manager, config.Connection.Limit, config.Connection.AddressLimit, pool.WithLogger(log.NewLogger("pool")))

	connectCtx := ctx
	if timeout := config.Connection.ConnectTimeout.Build(); timeout > 0 {
		var cancelConnect context.CancelFunc
		connectCtx, cancelConnect = context.WithTimeout(ctx, timeout)
		defer cancelConnect()
	}
	var socket N.Socket
	socket, err = factory.Connect(connectCtx, address, config.TCPOptions())
	if err != nil {
		return E.Cause(err, "connect ", address)
	}
	defer factory.Release(address)
	if secureConfig != nil {
		socket, err = secure.Client(connectCtx, socket, *secureConfig)
		if err != nil {
			return E.Cause(err, "handshake")
		}
	}
	return pipe(ctx, socket, os.Stdin, os.Stdout, config.Channel.HighWaterMark)
}

// pipe copies input to socket and socket to output. It returns once the
// peer ends its stream.
func pipe(ctx context.Context, socket N.Socket, input io.Reader, output io.Writer, highWaterMark int) error {
	uploadCtx, cancelUpload := context.WithCancel(ctx)
	defer cancelUpload()
	source := channel.FromReader(uploadCtx, input, channel.WithHighWaterMark(highWaterMark))
	var group task.Group
	group.Append("upload", func(ctx context.Context) error {
		_, err := channel.CopyAndClose(uploadCtx, source, socket.AttachForWriting())
		if uploadCtx.Err() != nil {
			return nil
		}
		return err
	})
	group.Append("download", func(ctx context.Context) error {
		defer cancelUpload()
		_, err := io.Copy(output, channel.AsReader(ctx, socket.AttachForReading()))
		return err
	})
	group.Cleanup(func() {
		socket.Close()
	})
	err := group.Run(ctx)
	if E.IsClosedOrCanceled(err) {
		return nil
	}
	return err
}
