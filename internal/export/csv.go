package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// GenerateCSV формирует CSV: строка заголовков и по одной записи на строку данных.
// Поля с запятой, кавычкой, CR или LF заключаются в кавычки, кавычки удваиваются.
func GenerateCSV(headers []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, headers, rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteCSV пишет CSV в w. Записи разделяются LF. CRLF внутри поля записывается как LF:
// читатели CSV приводят его к LF при разборе, поэтому повторное чтение возвращает то же поле.
// Одиночный CR сохраняется.
func WriteCSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := writeRecord(w, cw, headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			return fmt.Errorf("csv row %d has %d fields, expected %d", i, len(row), len(headers))
		}
		if err := writeRecord(w, cw, row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeRecord(w io.Writer, cw *csv.Writer, record []string) error {
	// Запись из одного пустого поля без кавычек становится пустой строкой, а ее читатели пропускают
	if len(record) == 1 && record[0] == "" {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\"\"\n")
		return err
	}
	fields := make([]string, len(record))
	for i, f := range record {
		fields[i] = strings.ReplaceAll(f, "\r\n", "\n")
	}
	return cw.Write(fields)
}

// ReadCSV разбирает CSV с заголовком и возвращает записи как карты заголовок -> значение
func ReadCSV(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	headers := records[0]
	out := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}
