package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"juliabot/internal/metrics"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// Inbound is a normalized inbound message event, independent of transport.
type Inbound struct {
	Instance    string
	SenderPhone string
	SenderName  string
	FromMe      bool
	Text        string
	Audio       []byte
	AudioMime   string
}

// MessageProcessor handles inbound messages.
type MessageProcessor interface {
	ProcessInbound(ctx context.Context, msg Inbound)
}

// Gateway is the outbound messaging capability the agent depends on.
type Gateway interface {
	SendText(ctx context.Context, instance, phone, text string) error
	SendPresence(ctx context.Context, instance, phone, state string) error
	Status(instance string) string
}

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	Instance  string
	LogLevel  string
	Metrics   *metrics.Metrics
}

// Client wraps the WhatsMeow client and associated dependencies.
type Client struct {
	client    *whatsmeow.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	instance  string
	processor MessageProcessor
}

var _ Gateway = (*Client)(nil)

// New creates a new WhatsApp client instance backed by an SQLite store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client:   client,
		logger:   logger.With("component", "wa"),
		metrics:  cfg.Metrics,
		instance: cfg.Instance,
	}
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// Start connects the client and handles login/QR pairing flow.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}

	c.logger.Info("whatsapp client connected", "instance", c.instance)
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

// SetMessageProcessor registers the inbound message processor.
func (c *Client) SetMessageProcessor(processor MessageProcessor) {
	c.processor = processor
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	msg := evt.Message
	if msg == nil || c.processor == nil {
		return
	}
	if evt.Info.IsGroup {
		return
	}

	inbound := Inbound{
		Instance:    c.instance,
		SenderPhone: evt.Info.Sender.User,
		SenderName:  evt.Info.PushName,
		FromMe:      evt.Info.IsFromMe,
	}

	switch {
	case msg.GetConversation() != "":
		inbound.Text = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		inbound.Text = msg.GetExtendedTextMessage().GetText()
	case msg.AudioMessage != nil:
		data, mime, err := c.downloadMedia(context.Background(), msg)
		if err != nil {
			c.logger.Warn("failed downloading audio", "from", inbound.SenderPhone, "error", err)
			return
		}
		inbound.Audio = data
		inbound.AudioMime = mime
	default:
		c.logger.Debug("ignoring unsupported message type", "from", inbound.SenderPhone)
		return
	}

	go c.processor.ProcessInbound(context.Background(), inbound)
}

func (c *Client) downloadMedia(ctx context.Context, msg *waProto.Message) ([]byte, string, error) {
	data, err := c.client.DownloadAny(ctx, msg)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	mime := "application/octet-stream"
	if msg.AudioMessage != nil {
		if m := msg.AudioMessage.GetMimetype(); m != "" {
			mime = m
		}
	}
	return data, mime, nil
}

// SendText sends a text message to the phone number on this instance.
func (c *Client) SendText(ctx context.Context, instance, phone, text string) error {
	if instance != "" && instance != c.instance {
		return fmt.Errorf("unknown instance %q", instance)
	}
	jid, err := phoneToJID(phone)
	if err != nil {
		return err
	}
	message := &waProto.Message{
		Conversation: proto.String(text),
	}
	if _, err := c.client.SendMessage(ctx, jid, message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if c.metrics != nil {
		c.metrics.OutboundMessages.WithLabelValues("text").Inc()
	}
	return nil
}

// SendPresence publishes a chat presence state (composing, paused) so the
// recipient sees typing feedback while the agent works.
func (c *Client) SendPresence(ctx context.Context, instance, phone, state string) error {
	if instance != "" && instance != c.instance {
		return fmt.Errorf("unknown instance %q", instance)
	}
	jid, err := phoneToJID(phone)
	if err != nil {
		return err
	}
	presence := types.ChatPresencePaused
	if state == "composing" {
		presence = types.ChatPresenceComposing
	}
	if err := c.client.SendChatPresence(jid, presence, types.ChatPresenceMediaText); err != nil {
		return fmt.Errorf("send presence: %w", err)
	}
	return nil
}

// Status reports the connection state for the instance.
func (c *Client) Status(instance string) string {
	if instance != "" && instance != c.instance {
		return "unknown"
	}
	if c.client.IsConnected() {
		return "connected"
	}
	return "disconnected"
}

func phoneToJID(phone string) (types.JID, error) {
	normalized := strings.TrimLeft(strings.TrimSpace(phone), "+")
	if normalized == "" {
		return types.JID{}, errors.New("empty phone number")
	}
	return types.NewJID(normalized, types.DefaultUserServer), nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
