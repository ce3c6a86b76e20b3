package bus

import (
	"encoding/json"
	"errors"

	"github.com/user/tgsearch/internal/config"
	"github.com/user/tgsearch/internal/types"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrPayloadType  = errors.New("unexpected payload type")
)

// Name identifies an event kind on the wire.
type Name string

const (
	NameConfigFetch  Name = "config:fetch"
	NameConfigUpdate Name = "config:update"
	NameConfigData   Name = "config:data"

	NameStorageFetchMessages       Name = "storage:fetch:messages"
	NameStorageRecordMessages      Name = "storage:record:messages"
	NameStorageFetchDialogs        Name = "storage:fetch:dialogs"
	NameStorageRecordDialogs       Name = "storage:record:dialogs"
	NameStorageSearchMessages      Name = "storage:search:messages"
	NameStorageFetchMessageContext Name = "storage:fetch:message-context"
	NameStorageMessages            Name = "storage:messages"
	NameStorageDialogs             Name = "storage:dialogs"
	NameStorageSearchMessagesData  Name = "storage:search:messages:data"
	NameStorageMessagesContext     Name = "storage:messages:context"

	NameGramMessageReceived Name = "gram:message:received"
	NameEntityMeData        Name = "entity:me:data"

	NameAuthLogin     Name = "auth:login"
	NameAuthLogout    Name = "auth:logout"
	NameAuthConnected Name = "auth:connected"

	NameServerConnected     Name = "server:connected"
	NameServerEventRegister Name = "server:event:register"
)

// Event is implemented only by the event kinds declared in this file.
type Event interface {
	Name() Name
	event()
}

type ConfigFetch struct{}

type ConfigUpdate struct {
	// Config is a partial document merged over the current configuration.
	Config json.RawMessage `json:"config"`
}

type ConfigData struct {
	Config config.Config `json:"config"`
}

type StorageFetchMessages struct {
	ChatID     string           `json:"chatId"`
	Pagination types.Pagination `json:"pagination"`
}

type StorageRecordMessages struct {
	Messages []*types.Message `json:"messages"`
}

type StorageFetchDialogs struct{}

type StorageRecordDialogs struct {
	Dialogs []types.Dialog `json:"dialogs"`
}

type StorageSearchMessages struct {
	ChatID     string            `json:"chatId,omitempty"`
	Content    string            `json:"content"`
	UseVector  bool              `json:"useVector"`
	Pagination *types.Pagination `json:"pagination,omitempty"`
}

type StorageFetchMessageContext struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Before    *int   `json:"before,omitempty"`
	After     *int   `json:"after,omitempty"`
}

type StorageMessages struct {
	Messages []*types.Message `json:"messages"`
}

type StorageDialogs struct {
	Dialogs []types.Dialog `json:"dialogs"`
}

type StorageSearchMessagesData struct {
	Messages []*types.RetrievalMessage `json:"messages"`
}

type StorageMessagesContext struct {
	Messages  []*types.Message `json:"messages"`
	ChatID    string           `json:"chatId"`
	MessageID string           `json:"messageId"`
	Before    int              `json:"before"`
	After     int              `json:"after"`
}

type GramMessageReceived struct {
	Message *types.Message `json:"message"`
}

type EntityMeData struct {
	types.User
}

type AuthLogin struct {
	// Token is the opaque credential handed to the protocol client.
	Token string `json:"token,omitempty"`
}

type AuthLogout struct{}

type AuthConnected struct{}

type ServerConnected struct {
	SessionID string `json:"sessionId"`
	Connected bool   `json:"connected"`
}

type ServerEventRegister struct {
	Event Name `json:"event"`
}

func (ConfigFetch) Name() Name                { return NameConfigFetch }
func (ConfigUpdate) Name() Name               { return NameConfigUpdate }
func (ConfigData) Name() Name                 { return NameConfigData }
func (StorageFetchMessages) Name() Name       { return NameStorageFetchMessages }
func (StorageRecordMessages) Name() Name      { return NameStorageRecordMessages }
func (StorageFetchDialogs) Name() Name        { return NameStorageFetchDialogs }
func (StorageRecordDialogs) Name() Name       { return NameStorageRecordDialogs }
func (StorageSearchMessages) Name() Name      { return NameStorageSearchMessages }
func (StorageFetchMessageContext) Name() Name { return NameStorageFetchMessageContext }
func (StorageMessages) Name() Name            { return NameStorageMessages }
func (StorageDialogs) Name() Name             { return NameStorageDialogs }
func (StorageSearchMessagesData) Name() Name  { return NameStorageSearchMessagesData }
func (StorageMessagesContext) Name() Name     { return NameStorageMessagesContext }
func (GramMessageReceived) Name() Name        { return NameGramMessageReceived }
func (EntityMeData) Name() Name               { return NameEntityMeData }
func (AuthLogin) Name() Name                  { return NameAuthLogin }
func (AuthLogout) Name() Name                 { return NameAuthLogout }
func (AuthConnected) Name() Name              { return NameAuthConnected }
func (ServerConnected) Name() Name            { return NameServerConnected }
func (ServerEventRegister) Name() Name        { return NameServerEventRegister }

func (ConfigFetch) event()                {}
func (ConfigUpdate) event()               {}
func (ConfigData) event()                 {}
func (StorageFetchMessages) event()       {}
func (StorageRecordMessages) event()      {}
func (StorageFetchDialogs) event()        {}
func (StorageRecordDialogs) event()       {}
func (StorageSearchMessages) event()      {}
func (StorageFetchMessageContext) event() {}
func (StorageMessages) event()            {}
func (StorageDialogs) event()             {}
func (StorageSearchMessagesData) event()  {}
func (StorageMessagesContext) event()     {}
func (GramMessageReceived) event()        {}
func (EntityMeData) event()               {}
func (AuthLogin) event()                  {}
func (AuthLogout) event()                 {}
func (AuthConnected) event()              {}
func (ServerConnected) event()            {}
func (ServerEventRegister) event()        {}
