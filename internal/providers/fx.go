package providers

import (
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/smallbiznis/revenuepulse/internal/providers/email"
	"github.com/smallbiznis/revenuepulse/internal/providers/pdf"
	"github.com/smallbiznis/revenuepulse/internal/providers/slack"
	"github.com/smallbiznis/revenuepulse/internal/providers/telegram"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers",
	fx.Provide(
		fx.Annotate(
			NewSinks,
			fx.ResultTags(`group:"report_sinks,flatten"`),
		),
	),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// NewSinks builds a sink for every messaging provider with credentials.
func NewSinks(p Params) []reportdomain.Sink {
	cfg := p.Config
	sinks := make([]reportdomain.Sink, 0, 3)

	if cfg.SlackEnabled() {
		sinks = append(sinks, slack.New(cfg.SlackBotToken, cfg.SlackChannelID, "", p.Log))
	}
	if cfg.TelegramEnabled() {
		var attachment telegram.Attachment
		if cfg.TelegramAttachPDF {
			attachment = pdf.New()
		}
		sinks = append(sinks, telegram.New(cfg.TelegramBotToken, cfg.TelegramChatID, attachment, p.Log))
	}
	if cfg.EmailEnabled() {
		sinks = append(sinks, email.New(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.EmailTo,
		}, p.Log))
	}

	names := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		names = append(names, sink.Name())
	}
	p.Log.Named("providers").Info("report sinks configured", zap.Strings("sinks", names))
	return sinks
}
