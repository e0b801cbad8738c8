// Package importer reads bulk post imports from CSV.
package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/service"
)

// ErrNoURLColumn is returned when the header names neither a URL nor a creator column.
var ErrNoURLColumn = errors.New("csv header must contain a url or creator column")

// header aliases, matched case-insensitively after trimming.
var columns = map[string][]string{
	"url":             {"url", "link", "post_url", "post link"},
	"platform":        {"platform", "network"},
	"creator":         {"creator", "creator_name", "creator name", "account", "handle"},
	"status":          {"status"},
	"views":           {"views", "plays"},
	"likes":           {"likes"},
	"comments":        {"comments"},
	"shares":          {"shares"},
	"last_scraped_at": {"last_scraped_at", "last scraped", "scraped_at", "updated"},
}

// RowError is a line that could not be parsed. Line is 1-based and counts
// the header.
type RowError struct {
	Line    int
	Message string
}

// Result holds the parsed rows in file order and the lines that were skipped.
type Result struct {
	Rows    []service.ImportRow
	Skipped []RowError
	// Lines maps each entry of Rows to its line in the file.
	Lines []int
}

// ParseCSV reads a header row followed by post rows. Blank lines are
// ignored; lines with unparseable counts are reported in Skipped.
func ParseCSV(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	if bom, _ := br.Peek(3); len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.NewValidationError("csv", "is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	idx := indexHeader(header)
	if _, ok := idx["url"]; !ok {
		if _, ok := idx["creator"]; !ok {
			return nil, ErrNoURLColumn
		}
	}

	res := &Result{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Skipped = append(res.Skipped, RowError{Line: perr.Line, Message: perr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)

		row, err := toRow(record, idx)
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Line: line, Message: err.Error()})
			continue
		}
		res.Rows = append(res.Rows, row)
		res.Lines = append(res.Lines, line)
	}
	return res, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(columns))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		for col, aliases := range columns {
			if _, taken := idx[col]; taken {
				continue
			}
			for _, a := range aliases {
				if name == a {
					idx[col] = i
				}
			}
		}
	}
	return idx
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func toRow(record []string, idx map[string]int) (service.ImportRow, error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := service.ImportRow{
		URL:           get("url"),
		Platform:      get("platform"),
		CreatorName:   get("creator"),
		Status:        get("status"),
		LastScrapedAt: get("last_scraped_at"),
	}
	counts := []struct {
		col string
		dst *int64
	}{
		{"views", &row.Metrics.Views},
		{"likes", &row.Metrics.Likes},
		{"comments", &row.Metrics.Comments},
		{"shares", &row.Metrics.Shares},
	}
	for _, c := range counts {
		n, err := ParseCount(get(c.col))
		if err != nil {
			return row, fmt.Errorf("%s: %w", c.col, err)
		}
		*c.dst = n
	}
	return row, nil
}

// ParseCount parses an engagement count as exported by spreadsheets and
// platform dashboards: "1234", "1,234", "12.5K", "3M". Empty is zero.
func ParseCount(raw string) (int64, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	if s == "" || s == "-" {
		return 0, nil
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		mult, s = 1e9, strings.TrimSuffix(s, "B")
	}

	if mult == 1 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid count %q", raw)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative count %q", raw)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid count %q", raw)
	}
	return int64(math.Round(f * mult)), nil
}
