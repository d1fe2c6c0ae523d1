package client

import (
	"context"
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/cesar59xxx/eeeeeeee/internal/paths"

	_ "github.com/mattn/go-sqlite3"
)

// WhatsmeowFactory creates production clients backed by whatsmeow, with one
// credential store per session under the data dir.
type WhatsmeowFactory struct {
	dataDir string
	logger  *zap.Logger
}

// NewWhatsmeowFactory creates the production client factory.
func NewWhatsmeowFactory(dataDir string, logger *zap.Logger) *WhatsmeowFactory {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("CRM", [3]uint32{0, 1, 0})
	return &WhatsmeowFactory{dataDir: dataDir, logger: logger}
}

// New creates a client bound to the session's credential store.
func (f *WhatsmeowFactory) New(ctx context.Context, sessionID string, h Handler) (Client, error) {
	if err := paths.EnsureSessionDir(f.dataDir, sessionID); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dbPath := paths.CredsDBPath(f.dataDir, sessionID)
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	cli := whatsmeow.NewClient(deviceStore, nil)
	// Reconnect policy belongs to the manager, not the protocol library.
	cli.EnableAutoReconnect = false

	w := &whatsmeowClient{
		cli:       cli,
		container: container,
		handler:   h,
		logger:    f.logger.With(zap.String("session", sessionID)),
	}
	cli.AddEventHandler(w.handleEvent)
	return w, nil
}

type whatsmeowClient struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	handler   Handler
	logger    *zap.Logger

	stopOnce sync.Once
}

func (w *whatsmeowClient) loggedIn() bool {
	return w.cli.Store.ID != nil
}

// Start connects to the network. On first run it opens the QR channel and
// streams pairing codes to the handler until paired or timed out.
func (w *whatsmeowClient) Start(ctx context.Context) error {
	if w.loggedIn() {
		w.logger.Info("credentials found, connecting")
		return w.cli.Connect()
	}

	// GetQRChannel must be called before Connect.
	qrChan, err := w.cli.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	if err := w.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				w.handler(Event{Kind: EventPairingCode, PairingCode: item.Code})
			case "success":
				w.handler(Event{Kind: EventAuthenticated})
				return
			case "timeout":
				w.handler(Event{Kind: EventAuthFailure, Reason: "pairing timeout"})
				return
			default:
				if item.Error != nil {
					w.handler(Event{Kind: EventAuthFailure, Reason: item.Error.Error()})
					return
				}
			}
		}
	}()

	return nil
}

func (w *whatsmeowClient) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		w.handler(Event{Kind: EventReady, Identity: w.identity()})
	case *events.Disconnected:
		w.handler(Event{Kind: EventDisconnected, Reason: "connection closed"})
	case *events.StreamError:
		w.handler(Event{Kind: EventDisconnected, Reason: "stream error: " + evt.Code})
	case *events.LoggedOut:
		w.handler(Event{Kind: EventAuthFailure, Reason: "logged out: " + evt.Reason.String()})
	case *events.Message:
		w.handler(Event{Kind: EventMessage, Message: parseMessage(evt)})
	case *events.Receipt:
		code := receiptToAck(evt.Type)
		if code == AckPending {
			return
		}
		for _, id := range evt.MessageIDs {
			w.handler(Event{Kind: EventAck, Ack: &Ack{ProviderMsgID: id, Code: code}})
		}
	}
}

func (w *whatsmeowClient) identity() Identity {
	id := Identity{}
	if w.cli.Store.ID != nil {
		id.PhoneNumber = w.cli.Store.ID.User
		if pic, err := w.cli.GetProfilePictureInfo(context.Background(), w.cli.Store.ID.ToNonAD(), &whatsmeow.GetProfilePictureParams{Preview: true}); err == nil && pic != nil {
			id.AvatarURL = pic.URL
		}
	}
	return id
}

// SendText sends a text message to the given peer. Returns the server message ID.
func (w *whatsmeowClient) SendText(ctx context.Context, peerAddress, body string) (string, error) {
	to, err := parsePeer(peerAddress)
	if err != nil {
		return "", err
	}
	resp, err := w.cli.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// ProfilePicture fetches a peer's avatar URL. Absence is not an error.
func (w *whatsmeowClient) ProfilePicture(ctx context.Context, peerAddress string) (string, error) {
	to, err := parsePeer(peerAddress)
	if err != nil {
		return "", err
	}
	pic, err := w.cli.GetProfilePictureInfo(ctx, to, &whatsmeow.GetProfilePictureParams{Preview: true})
	if err != nil || pic == nil {
		return "", nil
	}
	return pic.URL, nil
}

// Stop terminates the connection.
func (w *whatsmeowClient) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("disconnecting")
		w.cli.Disconnect()
	})
}

// Logout invalidates the session and removes credentials.
func (w *whatsmeowClient) Logout(ctx context.Context) error {
	return w.cli.Logout(ctx)
}

func parsePeer(peerAddress string) (types.JID, error) {
	jid, err := types.ParseJID(withDefaultServer(peerAddress))
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse peer address: %w", err)
	}
	return jid, nil
}

func withDefaultServer(addr string) string {
	if PeerToken(addr) == addr {
		return addr + "@" + types.DefaultUserServer
	}
	return addr
}

func parseMessage(evt *events.Message) *IncomingMessage {
	return &IncomingMessage{
		ProviderMsgID: evt.Info.ID,
		PeerAddress:   evt.Info.Chat.ToNonAD().String(),
		Body:          extractTextBody(evt.Message),
		MediaType:     detectMediaType(evt.Message),
		FromMe:        evt.Info.IsFromMe,
		Timestamp:     evt.Info.Timestamp,
	}
}

func receiptToAck(t types.ReceiptType) int {
	switch t {
	case types.ReceiptTypeDelivered:
		return AckDelivered
	case types.ReceiptTypeRead:
		return AckRead
	default:
		return AckPending
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMediaType(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	default:
		return ""
	}
}
