package crawler

import (
	"encoding/csv"
	"io"

	"github.com/weatherhub/weatherhub/internal/model"
)

// utf8BOM lets spreadsheet tools detect the encoding of exported files.
const utf8BOM = "\ufeff"

// CSVHeader is the column header of exported crawl files.
var CSVHeader = []string{"城市", "日期", "天气状况", "气温", "风力风向"}

// WriteCSV writes records as a BOM-prefixed UTF-8 CSV file.
func WriteCSV(w io.Writer, records []model.WeatherRecord) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.City, r.Date, r.WeatherCondition, r.TempRaw, r.WindInfo}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
