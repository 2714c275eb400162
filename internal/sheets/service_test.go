package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	if err != nil || id != "1AbC-d_9" {
		t.Fatalf("got %q, %v", id, err)
	}
	if _, err := extractSpreadsheetID("https://example.com/nope"); err == nil {
		t.Fatal("expected error for non-sheets URL")
	}
}

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{0: "A", 1: "A", 6: "F", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for n, want := range tests {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestAppendRowsCreatesHeadersOnce(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var appended [][]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, ":append"):
			var body sheets.ValueRange
			_ = json.NewDecoder(r.Body).Decode(&body)
			appended = append(appended, body.Values...)
			_, _ = w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
			_, _ = w.Write([]byte(`{"replies":[]}`))
		case strings.Contains(r.URL.Path, "/values/") && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"values":[]}`))
		case strings.Contains(r.URL.Path, "/values/") && r.Method == http.MethodPut:
			_, _ = w.Write([]byte(`{}`))
		default:
			_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Audit","sheetId":5}}]}`))
		}
	}))
	defer srv.Close()

	api, err := sheets.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSheetsServiceWithDeps(api, "https://docs.google.com/spreadsheets/d/sheet123/edit")
	if err != nil {
		t.Fatal(err)
	}

	headers := []string{"Time", "Action", "Entity"}
	for i := 0; i < 2; i++ {
		if err := s.AppendRows(context.Background(), "Audit", headers, [][]interface{}{{"t", "billing.cycle_completed", "cycle"}}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(appended) != 2 {
		t.Fatalf("expected 2 appended rows, got %d", len(appended))
	}
	puts := 0
	for _, c := range calls {
		if strings.HasPrefix(c, "PUT ") {
			puts++
		}
	}
	if puts != 1 {
		t.Fatalf("expected headers to be written once, calls: %v", calls)
	}
}

func TestReadRange(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Bank!A1:K2","values":[["Datum","Betrag"],["14.03.2026","108,50"]]}`))
	}))
	defer srv.Close()

	api, err := sheets.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSheetsServiceWithDeps(api, "https://docs.google.com/spreadsheets/d/sheet123/edit")
	if err != nil {
		t.Fatal(err)
	}

	values, err := s.ReadRange(context.Background(), "Bank!A:K")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[1][1] != "108,50" {
		t.Fatalf("values = %v", values)
	}
	if !strings.Contains(gotPath, "/spreadsheets/sheet123/values/") {
		t.Fatalf("path = %s", gotPath)
	}
}
