package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/smallbiznis/revenuepulse/internal/config"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/zap"
)

// Sender is the part of the bot API the sink needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Attachment renders a report into a document sent after the text message.
type Attachment interface {
	FileName(report reportdomain.Report) string
	Render(report reportdomain.Report) ([]byte, error)
}

// Sink sends reports to a Telegram chat.
type Sink struct {
	chatID     int64
	attachment Attachment
	log        *zap.Logger

	mu      sync.Mutex
	sender  Sender
	connect func() (Sender, error)
}

// New returns a sink that connects to the bot API on first delivery.
func New(token string, chatID int64, attachment Attachment, log *zap.Logger) *Sink {
	s := newSink(chatID, attachment, log)
	s.connect = func() (Sender, error) {
		return tgbotapi.NewBotAPI(token)
	}
	return s
}

func NewWithSender(sender Sender, chatID int64, attachment Attachment, log *zap.Logger) *Sink {
	s := newSink(chatID, attachment, log)
	s.sender = sender
	return s
}

func newSink(chatID int64, attachment Attachment, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{chatID: chatID, attachment: attachment, log: log.Named("providers.telegram")}
}

func (s *Sink) Name() string { return config.SinkTelegram }

func (s *Sink) Deliver(ctx context.Context, report reportdomain.Report) error {
	sender, err := s.bot()
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}

	// the bot API has no context support; honor cancellation between calls
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := sender.Send(tgbotapi.NewMessage(s.chatID, report.Text()))
	if err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	s.log.Info("report sent", zap.Int64("chat_id", s.chatID), zap.Int("message_id", msg.MessageID))

	if s.attachment == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := s.attachment.Render(report)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(s.chatID, tgbotapi.FileBytes{
		Name:  s.attachment.FileName(report),
		Bytes: body,
	})
	doc.Caption = report.Title
	if _, err := sender.Send(doc); err != nil {
		return fmt.Errorf("telegram send document: %w", err)
	}
	return nil
}

// bot connects lazily and retries on the next delivery after a failure.
func (s *Sink) bot() (Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender != nil {
		return s.sender, nil
	}
	sender, err := s.connect()
	if err != nil {
		return nil, err
	}
	s.sender = sender
	return sender, nil
}
