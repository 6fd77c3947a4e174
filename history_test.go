package chatflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// historyServer serves /messages for one conversation with total records
// split into pages of the requested size, newest page first.
func historyServer(t *testing.T, total int, failures *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.NotFound(w, r)
			return
		}
		if failures != nil && failures.Load() > 0 {
			failures.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(Result{Success: false, Error: &APIError{Code: "INTERNAL", Message: "boom"}})
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if page < 1 || pageSize < 1 {
			t.Errorf("bad pagination params: %s", r.URL.RawQuery)
		}

		totalPages := (total + pageSize - 1) / pageSize
		var records []MessageRecord
		start := (page - 1) * pageSize
		for i := start; i < start+pageSize && i < total; i++ {
			records = append(records, MessageRecord{
				ID:        int64(total - i),
				Content:   fmt.Sprintf("message %d", total-i),
				SenderID:  9,
				CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(total-i) * time.Minute),
			})
		}

		data, _ := json.Marshal(MessagePage{
			Records:        records,
			PaginationInfo: PaginationInfo{CurrentPage: page, TotalPages: totalPages},
		})
		json.NewEncoder(w).Encode(Result{Success: true, Data: data})
	}))
}

func TestPager(t *testing.T) {
	ctx := context.Background()

	t.Run("walks pages until exhausted", func(t *testing.T) {
		srv := historyServer(t, 25, nil)
		defer srv.Close()
		client := NewClient("tok", WithBaseURL(srv.URL))
		pager := NewPager(client.Messages, 1, 10)

		var fetched int
		for page := 0; page < 3; page++ {
			if !pager.HasNext() {
				t.Fatalf("expected more pages after %d fetches", page)
			}
			records, err := pager.FetchNext(ctx)
			if err != nil {
				t.Fatalf("fetch %d: %v", page+1, err)
			}
			fetched += len(records)
		}
		if fetched != 25 {
			t.Fatalf("expected 25 records, got %d", fetched)
		}
		if pager.HasNext() {
			t.Fatal("expected no more pages")
		}
		if _, err := pager.FetchNext(ctx); err != ErrNoMorePages {
			t.Fatalf("expected ErrNoMorePages, got %v", err)
		}
	})

	t.Run("error leaves cursor untouched", func(t *testing.T) {
		var failures atomic.Int32
		srv := historyServer(t, 20, &failures)
		defer srv.Close()
		client := NewClient("tok", WithBaseURL(srv.URL))
		pager := NewPager(client.Messages, 1, 10)

		if _, err := pager.FetchNext(ctx); err != nil {
			t.Fatalf("first fetch: %v", err)
		}

		failures.Store(1)
		if _, err := pager.FetchNext(ctx); err == nil {
			t.Fatal("expected error from failing server")
		}

		// Retry succeeds and resumes at the same page.
		records, err := pager.FetchNext(ctx)
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if len(records) != 10 {
			t.Fatalf("expected 10 records on retry, got %d", len(records))
		}
		if pager.HasNext() {
			t.Fatal("expected pager exhausted after retry")
		}
	})

	t.Run("default page size", func(t *testing.T) {
		srv := historyServer(t, 5, nil)
		defer srv.Close()
		client := NewClient("tok", WithBaseURL(srv.URL))
		pager := NewPager(client.Messages, 1, 0)

		records, err := pager.FetchNext(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 5 {
			t.Fatalf("expected 5 records, got %d", len(records))
		}
	})
}
