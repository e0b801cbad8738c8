package importer

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"-", 0, false},
		{"1234", 1234, false},
		{"1,234", 1234, false},
		{" 12.5K ", 12500, false},
		{"3m", 3000000, false},
		{"1.2B", 1200000000, false},
		{"-5", 0, true},
		{"abc", 0, true},
		{"1.5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCount(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffURL,Platform,Creator Name,Status,Views,Likes,Comments,Shares\n" +
		"https://www.tiktok.com/@a/video/1,,alice,live,\"1,000\",100,10,5\n" +
		",,,,,,,\n" +
		"https://www.instagram.com/reel/abc/,,bob,pending,lots,1,1,1\n" +
		",tiktok,carol,,,,,\n"

	res, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}

	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	first := res.Rows[0]
	if first.URL != "https://www.tiktok.com/@a/video/1" || first.CreatorName != "alice" || first.Status != "live" {
		t.Errorf("first row = %+v", first)
	}
	if first.Metrics.Views != 1000 || first.Metrics.Likes != 100 || first.Metrics.Comments != 10 || first.Metrics.Shares != 5 {
		t.Errorf("first row metrics = %+v", first.Metrics)
	}
	placeholder := res.Rows[1]
	if placeholder.URL != "" || placeholder.Platform != "tiktok" || placeholder.CreatorName != "carol" {
		t.Errorf("placeholder row = %+v", placeholder)
	}
	if res.Lines[0] != 2 || res.Lines[1] != 5 {
		t.Errorf("lines = %v, want [2 5]", res.Lines)
	}

	if len(res.Skipped) != 1 || res.Skipped[0].Line != 4 {
		t.Fatalf("skipped = %+v, want line 4", res.Skipped)
	}
	if !strings.Contains(res.Skipped[0].Message, "views") {
		t.Errorf("skip message = %q", res.Skipped[0].Message)
	}
}

func TestParseCSVHeader(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, err := ParseCSV(strings.NewReader("")); err == nil {
			t.Fatal("expected error for empty input")
		}
	})
	t.Run("no url column", func(t *testing.T) {
		_, err := ParseCSV(strings.NewReader("views,likes\n1,2\n"))
		if !errors.Is(err, ErrNoURLColumn) {
			t.Fatalf("err = %v, want ErrNoURLColumn", err)
		}
	})
	t.Run("creator only", func(t *testing.T) {
		res, err := ParseCSV(strings.NewReader("handle\n@dave\n"))
		if err != nil {
			t.Fatalf("ParseCSV() error = %v", err)
		}
		if len(res.Rows) != 1 || res.Rows[0].CreatorName != "@dave" {
			t.Errorf("rows = %+v", res.Rows)
		}
	})
}
