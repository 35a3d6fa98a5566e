package report

import (
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// renderMarkdown converts the HTML document so both formats always carry
// the same content.
func renderMarkdown(s *models.MigrationSession, generatedAt time.Time) ([]byte, error) {
	doc, err := renderDocument(s, generatedAt)
	if err != nil {
		return nil, err
	}
	md, err := mdConverter.ConvertString(string(doc))
	if err != nil {
		return nil, err
	}
	return []byte(md + "\n"), nil
}
