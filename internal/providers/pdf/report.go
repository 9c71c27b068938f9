package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	reportdomain "github.com/smallbiznis/revenuepulse/internal/report/domain"
)

// Renderer lays a report out as a single-page PDF.
type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

// FileName names the attachment after the report date.
func (r *Renderer) FileName(report reportdomain.Report) string {
	return fmt.Sprintf("revenuepulse-%s.pdf", report.GeneratedAt.Format("2006-01-02"))
}

func (r *Renderer) Render(report reportdomain.Report) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	// core PDF fonts cannot draw the emoji in the header, so the title and
	// date are set separately
	m.AddRow(15,
		text.NewCol(12, report.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, report.GeneratedAt.Format("Monday, January 2, 2006"), props.Text{
			Size:  11,
			Align: align.Left,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Metric", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, "Value", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)
	m.AddRow(1, col.New(12))

	for _, field := range report.Fields {
		m.AddRow(10,
			text.NewCol(8, field.Label, props.Text{Size: 10}),
			text.NewCol(4, field.Value, props.Text{Size: 10, Align: align.Right}),
		)
	}

	if report.Footer != "" {
		m.AddRow(15,
			text.NewCol(12, report.Footer, props.Text{
				Size:  8,
				Style: fontstyle.Italic,
				Top:   5,
			}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate report pdf: %w", err)
	}
	return doc.GetBytes(), nil
}
