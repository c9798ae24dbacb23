package campus

import (
	"context"
	"errors"
	"io"

	"github.com/oggyb/campus-connect/internal/presence"
)

// Events is the live channel: the client sends commands, the server sends
// replies and room events. One goroutine reads commands; the handler
// goroutine is the only writer on the stream.
func (s *Service) Events(stream EventsServer) error {
	ctx := stream.Context()
	uid, err := caller(ctx)
	if err != nil {
		return err
	}

	client := presence.NewClient(uid, s.appCtx.Config.Messaging.OutboxSize)
	if err := s.appCtx.Dispatcher.Connect(client); err != nil {
		return err
	}
	defer func() {
		s.appCtx.Dispatcher.Disconnect(client)
		client.Close()
	}()

	log := s.appCtx.Logger.With("user_id", uid, "conn_id", client.ID(), "transport", "grpc")
	log.Debug("event stream opened")

	recvErr := make(chan error, 1)
	go func() { recvErr <- s.readCommands(ctx, stream, client) }()

	for {
		select {
		case ev := <-client.Outbox():
			if err := stream.Send(&ev); err != nil {
				log.Debug("event stream send failed", "err", err)
				return err
			}
		case err := <-recvErr:
			log.Debug("event stream closed", "err", err)
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Service) readCommands(ctx context.Context, stream EventsServer, client *presence.Client) error {
	for {
		cmd, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		reply := s.appCtx.Dispatcher.HandleCommand(ctx, client, *cmd)
		client.Deliver(reply)
	}
}
