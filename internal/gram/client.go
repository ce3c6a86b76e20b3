// Package gram is the messaging-protocol capability: connecting with a
// credential, receiving new messages and downloading media.
package gram

import (
	"context"
	"errors"

	"github.com/user/tgsearch/internal/types"
)

var ErrNotConnected = errors.New("gram: client not connected")

// Incoming is a newly received message together with the chat it arrived in.
type Incoming struct {
	Message *types.Message
	Dialog  *types.Dialog
}

// Client is the protocol client consumed by the core.
type Client interface {
	Connect(ctx context.Context, credential string) error
	Disconnect()
	Connected() bool
	Me(ctx context.Context) (*types.User, error)
	DownloadMedia(ctx context.Context, media *types.Media) ([]byte, error)
	// Subscribe registers fn for new messages and returns its removal.
	Subscribe(fn func(Incoming)) (unsubscribe func())
}
