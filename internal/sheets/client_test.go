package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadAllRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sheet-1/values/Approvals" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"range":"Approvals!A1:C3","values":[["Ad ID","Name","Approval"],["a1","Ad One","YES"],["a2","Ad Two",""]]}`)
	}))
	defer server.Close()

	client := NewUnauthenticatedClient(Config{
		SpreadsheetID: "sheet-1",
		SheetName:     "Approvals",
		BaseURL:       server.URL,
	})
	rows, err := client.ReadAllRows(context.Background())
	if err != nil {
		t.Fatalf("ReadAllRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[1][2] != "YES" {
		t.Errorf("rows[1][2] = %s, want YES", rows[1][2])
	}
}

func TestAppendRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sheet-1/values/Sheet1:append" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
			t.Error("missing valueInputOption")
		}
		var vr struct {
			Values [][]string `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&vr)
		if len(vr.Values) != 2 || vr.Values[0][0] != "a1" {
			t.Errorf("values = %v", vr.Values)
		}
		fmt.Fprint(w, `{"updates":{"updatedRows":2}}`)
	}))
	defer server.Close()

	client := NewUnauthenticatedClient(Config{SpreadsheetID: "sheet-1", BaseURL: server.URL})
	err := client.AppendRows(context.Background(), [][]string{
		{"a1", "Ad One", ""},
		{"a2", "Ad Two", ""},
	})
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}
}

func TestAppendRowsEmptyIsNoop(t *testing.T) {
	client := NewUnauthenticatedClient(Config{SpreadsheetID: "sheet-1", BaseURL: "http://unused.invalid"})
	if err := client.AppendRows(context.Background(), nil); err != nil {
		t.Fatalf("AppendRows(nil) error = %v", err)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	client := NewUnauthenticatedClient(Config{SpreadsheetID: "sheet-1", BaseURL: server.URL})
	_, err := client.ReadAllRows(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err != ErrNotConfigured {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}
