package network

import (
	"context"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/task"
)

// Relay copies each socket's input to the other's output until both
// directions end, then closes both sockets.
func Relay(ctx context.Context, left Socket, right Socket) error {
	var group task.Group
	group.Append("upload", func(ctx context.Context) error {
		_, err := channel.CopyAndClose(ctx, left.AttachForReading(), right.AttachForWriting())
		return err
	})
	group.Append("download", func(ctx context.Context) error {
		_, err := channel.CopyAndClose(ctx, right.AttachForReading(), left.AttachForWriting())
		return err
	})
	group.Cleanup(func() {
		left.Close()
		right.Close()
	})
	err := group.Run(ctx)
	if E.IsClosedOrCanceled(err) {
		return nil
	}
	return err
}
