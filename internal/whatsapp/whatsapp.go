// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in tiendabot.
//
// It maintains one client per tenant session, all sharing a single
// whatsmeow credential store, and translates client callbacks into the
// lifecycle and inbound-message event streams consumed by the rest of
// the system.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/tiendabot/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
	// DefaultChannelBufferSize defines the buffer size for event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel sends
	DefaultChannelTimeout = 1 * time.Second
)

// Opts holds configuration options for the WhatsApp manager.
type Opts struct {
	DBDSN       string // whatsmeow credential database connection string
	QRPath      string // path to also write login QR codes (stdout if empty)
	NumericCode bool   // print the numeric login code instead of a QR block
}

// Option defines a configuration option for the WhatsApp manager.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow credential database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the manager to also write login QR codes to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the manager to use numeric login codes instead of QR blocks.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Manager owns one whatsmeow client per tenant session.
type Manager struct {
	container *sqlstore.Container
	cfg       Opts

	mu      sync.Mutex
	clients map[int64]*whatsmeow.Client

	lifecycle chan models.LifecycleEvent
	messages  chan models.Message
}

// NewManager initializes the shared whatsmeow credential store and
// returns a manager with no clients open yet.
func NewManager(opts ...Option) (*Manager, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
				"The whatsmeow library strongly recommends enabling foreign keys for data integrity.",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	logger := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(context.Background(), dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	return &Manager{
		container: container,
		cfg:       cfg,
		clients:   make(map[int64]*whatsmeow.Client),
		lifecycle: make(chan models.LifecycleEvent, DefaultChannelBufferSize),
		messages:  make(chan models.Message, DefaultChannelBufferSize),
	}, nil
}

// Messages returns the inbound message event stream.
func (m *Manager) Messages() <-chan models.Message {
	return m.messages
}

// Lifecycle returns the session lifecycle event stream.
func (m *Manager) Lifecycle() <-chan models.LifecycleEvent {
	return m.lifecycle
}

// Open creates or resumes the transport identity for a tenant. When the
// identity key names an already-paired device, the device is resumed
// without a fresh login code; otherwise the QR login flow starts and the
// code is surfaced as a lifecycle event.
func (m *Manager) Open(ctx context.Context, tenantID int64, identityKey string) error {
	m.mu.Lock()
	if existing, ok := m.clients[tenantID]; ok && existing.IsConnected() {
		m.mu.Unlock()
		slog.Debug("WhatsApp Open: client already connected", "tenant_id", tenantID)
		return nil
	}
	m.mu.Unlock()

	device, err := m.deviceFor(ctx, identityKey)
	if err != nil {
		return err
	}

	clientLog := waLog.Stdout(fmt.Sprintf("Client-%d", tenantID), "INFO", true)
	client := whatsmeow.NewClient(device, clientLog)
	client.AddEventHandler(m.eventHandler(tenantID, client))

	m.mu.Lock()
	m.clients[tenantID] = client
	m.mu.Unlock()

	if client.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow", "tenant_id", tenantID)
		qrChan, _ := client.GetQRChannel(context.Background())
		if err := client.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err, "tenant_id", tenantID)
			return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		go m.consumeQRChannel(tenantID, qrChan)
		return nil
	}

	slog.Debug("WhatsApp already paired, connecting to server", "tenant_id", tenantID)
	if err := client.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp server", "error", err, "tenant_id", tenantID)
		return fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	return nil
}

// deviceFor resolves the whatsmeow device store for an identity key,
// falling back to a fresh device when the key is empty or unknown.
func (m *Manager) deviceFor(ctx context.Context, identityKey string) (*wastore.Device, error) {
	if identityKey != "" {
		jid, err := types.ParseJID(identityKey)
		if err == nil {
			device, err := m.container.GetDevice(ctx, jid)
			if err != nil {
				slog.Error("Failed to get device from WhatsApp store", "error", err, "identity", identityKey)
				return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
			}
			if device != nil {
				return device, nil
			}
			slog.Warn("WhatsApp device not found for identity, creating new device", "identity", identityKey)
		} else {
			slog.Warn("Invalid WhatsApp identity key, creating new device", "identity", identityKey, "error", err)
		}
	}
	return m.container.NewDevice(), nil
}

// consumeQRChannel renders login codes and forwards them as lifecycle events.
func (m *Manager) consumeQRChannel(tenantID int64, qrChan <-chan whatsmeow.QRChannelItem) {
	writer := io.Writer(os.Stdout)
	if m.cfg.QRPath != "" {
		if f, err := os.Create(m.cfg.QRPath); err == nil {
			defer f.Close()
			writer = f
		} else {
			slog.Error("Failed to create QR file, falling back to stdout", "error", err)
		}
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			slog.Debug("WhatsApp login code received", "tenant_id", tenantID)
			if m.cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
			m.emitLifecycle(models.LifecycleEvent{
				TenantID: tenantID,
				Type:     models.LifecycleLoginCode,
				Code:     evt.Code,
				Time:     time.Now(),
			})
		case "success":
			slog.Info("WhatsApp login succeeded", "tenant_id", tenantID)
		default:
			slog.Debug("WhatsApp login event", "tenant_id", tenantID, "event", evt.Event)
			if evt.Event == "timeout" {
				m.emitLifecycle(models.LifecycleEvent{
					TenantID: tenantID,
					Type:     models.LifecycleDisconnected,
					Reason:   "login timeout",
					Time:     time.Now(),
				})
			}
		}
	}
}

// Close tears down the transport identity for a tenant. Errors from an
// already-closed transport are swallowed as non-fatal.
func (m *Manager) Close(ctx context.Context, tenantID int64) error {
	m.mu.Lock()
	client, ok := m.clients[tenantID]
	delete(m.clients, tenantID)
	m.mu.Unlock()

	if !ok {
		slog.Debug("WhatsApp Close: no client for tenant", "tenant_id", tenantID)
		return nil
	}

	if err := client.Logout(ctx); err != nil {
		// Already logged out or never paired; disconnecting is enough.
		slog.Debug("WhatsApp logout returned error, disconnecting only", "error", err, "tenant_id", tenantID)
	}
	client.Disconnect()
	slog.Info("WhatsApp client closed", "tenant_id", tenantID)
	return nil
}

// Send delivers a message to the given recipient on behalf of a tenant.
// Text is sent first; a media attachment is delivered by link as a
// separate message.
func (m *Manager) Send(ctx context.Context, tenantID int64, to string, content models.Content) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if content.Text == "" && content.MediaURL == "" {
		return models.ErrEmptyContent
	}

	m.mu.Lock()
	client, ok := m.clients[tenantID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no open WhatsApp client for tenant %d", tenantID)
	}

	jid := types.NewJID(strings.TrimPrefix(to, "+"), JIDSuffix)
	for _, body := range contentBodies(content) {
		msg := &waE2E.Message{Conversation: &body}
		if _, err := client.SendMessage(ctx, jid, msg); err != nil {
			slog.Error("Failed to send WhatsApp message", "error", err, "tenant_id", tenantID, "to", to)
			return fmt.Errorf("failed to send message to %s: %w", to, err)
		}
	}
	slog.Debug("WhatsApp message sent", "tenant_id", tenantID, "to", to)
	return nil
}

// contentBodies splits outbound content into the ordered message bodies
// the transport will deliver.
func contentBodies(content models.Content) []string {
	var bodies []string
	if content.Text != "" {
		bodies = append(bodies, content.Text)
	}
	if content.MediaURL != "" {
		bodies = append(bodies, content.MediaURL)
	}
	return bodies
}

// Stop disconnects all clients without logging them out, so paired
// devices resume on the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	clients := make([]*whatsmeow.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[int64]*whatsmeow.Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
	slog.Info("WhatsApp manager stopped", "clients", len(clients))
}

// eventHandler translates whatsmeow events for one tenant's client.
func (m *Manager) eventHandler(tenantID int64, client *whatsmeow.Client) func(evt interface{}) {
	return func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			m.handleIncomingMessage(tenantID, v)
		case *events.PairSuccess:
			m.emitLifecycle(models.LifecycleEvent{
				TenantID: tenantID,
				Type:     models.LifecycleAuthenticated,
				Identity: v.ID.String(),
				Time:     time.Now(),
			})
		case *events.Connected:
			var address, identity string
			if client.Store.ID != nil {
				address = client.Store.ID.User
				identity = client.Store.ID.String()
			}
			m.emitLifecycle(models.LifecycleEvent{
				TenantID: tenantID,
				Type:     models.LifecycleOperational,
				Address:  address,
				Identity: identity,
				Time:     time.Now(),
			})
		case *events.Disconnected:
			m.emitLifecycle(models.LifecycleEvent{
				TenantID: tenantID,
				Type:     models.LifecycleDisconnected,
				Reason:   "connection closed",
				Time:     time.Now(),
			})
		case *events.LoggedOut:
			m.emitLifecycle(models.LifecycleEvent{
				TenantID: tenantID,
				Type:     models.LifecycleDisconnected,
				Reason:   "logged out",
				Time:     time.Now(),
			})
		default:
			// Ignore other event types.
		}
	}
}

// handleIncomingMessage forwards inbound text messages to the message stream.
func (m *Manager) handleIncomingMessage(tenantID int64, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		// Skip non-text messages (images, audio, etc.)
		slog.Debug("WhatsApp ignoring non-text message", "tenant_id", tenantID, "from", evt.Info.Sender.String())
		return
	}

	msg := models.Message{
		TenantID: tenantID,
		From:     evt.Info.Sender.User,
		Text:     messageText,
		IsGroup:  evt.Info.IsGroup,
		Time:     evt.Info.Timestamp,
	}

	select {
	case m.messages <- msg:
		slog.Debug("WhatsApp inbound message forwarded", "tenant_id", tenantID, "from", msg.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsApp message channel blocked, dropping message", "tenant_id", tenantID, "from", msg.From)
	}
}

// emitLifecycle forwards a lifecycle event without blocking indefinitely.
func (m *Manager) emitLifecycle(evt models.LifecycleEvent) {
	select {
	case m.lifecycle <- evt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsApp lifecycle channel blocked, dropping event", "tenant_id", evt.TenantID, "type", evt.Type)
	}
}
