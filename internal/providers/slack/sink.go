package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/smallbiznis/revenuepulse/internal/config"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
	"go.uber.org/zap"
)

// fieldsPerSection mirrors the two-column layout Slack renders for section fields.
const fieldsPerSection = 2

// Poster is the part of the Slack web API the sink needs.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Sink posts reports to a Slack channel as Block Kit messages.
type Sink struct {
	poster    Poster
	channelID string
	log       *zap.Logger
}

// New builds a sink backed by the Slack web API. apiURL overrides the
// default endpoint when set.
func New(token, channelID, apiURL string, log *zap.Logger) *Sink {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return NewWithPoster(slack.New(token, opts...), channelID, log)
}

func NewWithPoster(poster Poster, channelID string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{poster: poster, channelID: channelID, log: log.Named("providers.slack")}
}

func (s *Sink) Name() string { return config.SinkSlack }

func (s *Sink) Deliver(ctx context.Context, report reportdomain.Report) error {
	channel, ts, err := s.poster.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(report.Header, false),
		slack.MsgOptionBlocks(Blocks(report)...),
	)
	if err != nil {
		return fmt.Errorf("slack post message: %w", err)
	}
	s.log.Info("report posted", zap.String("channel", channel), zap.String("ts", ts))
	return nil
}

// Blocks lays out a report as header, divider, field sections and a context footer.
func Blocks(report reportdomain.Report) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, report.Header, true, false)),
		slack.NewDividerBlock(),
	}

	for start := 0; start < len(report.Fields); start += fieldsPerSection {
		end := start + fieldsPerSection
		if end > len(report.Fields) {
			end = len(report.Fields)
		}
		fields := make([]*slack.TextBlockObject, 0, end-start)
		for _, field := range report.Fields[start:end] {
			fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s:*\n%s", field.Label, field.Value), false, false))
		}
		blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
	}

	if report.Footer != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "_"+report.Footer+"_", false, false),
		))
	}
	return blocks
}
