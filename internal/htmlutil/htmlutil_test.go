package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCellTexts(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<table><tbody>
			<tr>
				<td>  Jane   Doe </td>
				<td><a href="/x">Acme <b>Capital</b></a></td>
				<td>Hold
					→ Buy</td>
			</tr>
		</tbody></table>`))
	require.NoError(t, err)

	cells := CellTexts(doc.Find("tbody tr").First())
	require.Equal(t, []string{"Jane Doe", "Acme Capital", "Hold → Buy"}, cells)
}

func TestCellTextsEmptyRow(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><thead><tr><th>Analyst</th></tr></thead></table>`,
	))
	require.NoError(t, err)

	require.Empty(t, CellTexts(doc.Find("thead tr")))
}
