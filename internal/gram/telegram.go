package gram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/tgsearch/internal/types"
)

// BotClient implements Client over the Telegram Bot API with long polling.
type BotClient struct {
	endpoint     string
	fileEndpoint string
	http         *http.Client
	logger       *slog.Logger

	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
	done   chan struct{}
	subs   map[int]func(Incoming)
	nextID int
}

// NewBotClient returns a disconnected client. endpoint is the Bot API
// endpoint format ("https://api.telegram.org/bot%s/%s" when empty); proxy
// may be nil.
func NewBotClient(endpoint string, proxy *url.URL, logger *slog.Logger) *BotClient {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &BotClient{
		endpoint:     endpoint,
		fileEndpoint: strings.Replace(endpoint, "/bot%s/%s", "/file/bot%s/%s", 1),
		http:         &http.Client{Transport: transport},
		logger:       logger.With("component", "gram"),
		subs:         make(map[int]func(Incoming)),
	}
}

// Connect authenticates with the bot token and starts polling for updates.
// Connecting an already connected client is a no-op.
func (c *BotClient) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot != nil {
		return nil
	}
	if token == "" {
		return fmt.Errorf("connect: bot token is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, c.endpoint, c.http)
	if err != nil {
		return fmt.Errorf("connect bot: %w", err)
	}
	c.bot = bot
	c.done = make(chan struct{})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	go c.poll(bot, bot.GetUpdatesChan(u), c.done)

	c.logger.Info("connected", "username", bot.Self.UserName)
	return nil
}

func (c *BotClient) poll(bot *tgbotapi.BotAPI, updates tgbotapi.UpdatesChannel, done chan struct{}) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil {
				msg = update.ChannelPost
			}
			if msg == nil {
				continue
			}
			c.dispatch(Incoming{Message: MapMessage(msg), Dialog: MapChat(msg.Chat)})
		case <-done:
			bot.StopReceivingUpdates()
			return
		}
	}
}

func (c *BotClient) dispatch(in Incoming) {
	c.mu.Lock()
	subs := make([]func(Incoming), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(in)
	}
}

func (c *BotClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bot == nil {
		return
	}
	close(c.done)
	c.bot = nil
	c.done = nil
	c.logger.Info("disconnected")
}

func (c *BotClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot != nil
}

func (c *BotClient) Subscribe(fn func(Incoming)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *BotClient) Me(ctx context.Context) (*types.User, error) {
	bot := c.current()
	if bot == nil {
		return nil, ErrNotConnected
	}
	return mapUser(&bot.Self), nil
}

// DownloadMedia resolves the file reference and fetches the file body.
func (c *BotClient) DownloadMedia(ctx context.Context, media *types.Media) ([]byte, error) {
	bot := c.current()
	if bot == nil {
		return nil, ErrNotConnected
	}
	if media.Ref == "" {
		return nil, fmt.Errorf("download %s: no file reference", media.PlatformID)
	}

	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: media.Ref})
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", media.PlatformID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.fileEndpoint, bot.Token, file.FilePath), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", media.PlatformID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", media.PlatformID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", media.PlatformID, err)
	}
	return data, nil
}

func (c *BotClient) current() *tgbotapi.BotAPI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot
}

// MapMessage converts a Bot API message. The timestamp is in epoch ms.
func MapMessage(msg *tgbotapi.Message) *types.Message {
	m := &types.Message{
		UUID:              types.NewMessageID(),
		PlatformMessageID: strconv.Itoa(msg.MessageID),
		Content:           msg.Text,
		PlatformTimestamp: int64(msg.Date) * 1000,
	}
	if m.Content == "" {
		m.Content = msg.Caption
	}
	if msg.Chat != nil {
		m.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		m.FromID = strconv.FormatInt(msg.From.ID, 10)
		m.FromName = displayName(msg.From.UserName, msg.From.FirstName, msg.From.LastName)
	}

	if n := len(msg.Photo); n > 0 {
		// Sizes are ordered smallest first.
		largest := msg.Photo[n-1]
		m.Media = append(m.Media, types.Media{Kind: types.MediaPhoto, PlatformID: largest.FileUniqueID, Ref: largest.FileID})
	}
	if s := msg.Sticker; s != nil {
		m.Media = append(m.Media, types.Media{Kind: types.MediaSticker, PlatformID: s.FileUniqueID, Ref: s.FileID})
	}
	if d := msg.Document; d != nil {
		m.Media = append(m.Media, types.Media{Kind: types.MediaDocument, PlatformID: d.FileUniqueID, Ref: d.FileID, MimeType: d.MimeType})
	}
	return m
}

// MapChat converts a Bot API chat into a dialog.
func MapChat(chat *tgbotapi.Chat) *types.Dialog {
	if chat == nil {
		return nil
	}
	name := chat.Title
	if name == "" {
		name = displayName(chat.UserName, chat.FirstName, chat.LastName)
	}
	return &types.Dialog{
		ID:   strconv.FormatInt(chat.ID, 10),
		Name: name,
		Type: chat.Type,
	}
}

func mapUser(u *tgbotapi.User) *types.User {
	return &types.User{
		ID:        strconv.FormatInt(u.ID, 10),
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

func displayName(username, first, last string) string {
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return full
	}
	return username
}
