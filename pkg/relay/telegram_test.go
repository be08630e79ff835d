package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const testToken = "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

type fakeTelegram struct {
	mu       sync.Mutex
	updates  string
	status   int
	raw      string
	offsets  []int64
	sent     []map[string]any
	sendFail bool
}

func (f *fakeTelegram) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if !strings.Contains(r.URL.Path, "/bot"+testToken+"/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		params := map[string]any{}
		_ = json.Unmarshal(body, &params)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			offset, _ := params["offset"].(float64)
			f.offsets = append(f.offsets, int64(offset))
			if f.raw != "" {
				_, _ = io.WriteString(w, f.raw)
				return
			}
			if f.status != 0 {
				w.WriteHeader(f.status)
				_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":`+f.updates+`}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			f.sent = append(f.sent, params)
			if f.sendFail {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":9,"date":0,"chat":{"id":424242,"type":"private"},"text":"ok"}}`)
		default:
			t.Errorf("unexpected method %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeTelegram) sentMessages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.sent...)
}

func (f *fakeTelegram) offsetsSeen() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

func newTestTelegram(t *testing.T, fake *fakeTelegram) (*TelegramRelay, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	relay, err := NewTelegramRelay(TelegramOptions{
		Token:      testToken,
		APIServer:  srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewTelegramRelay: %v", err)
	}
	return relay, srv
}

func TestTelegramFetchBatchSortsAndMaps(t *testing.T) {
	fake := &fakeTelegram{updates: `[
		{"update_id": 12, "message": {"message_id": 3, "date": 0, "chat": {"id": 424242, "type": "private"}, "from": {"id": 7, "is_bot": false, "first_name": "Op", "username": "op"}, "text": "/info"}},
		{"update_id": 10, "message": {"message_id": 1, "date": 0, "chat": {"id": 424242, "type": "private"}, "text": "/ping"}},
		{"update_id": 11}
	]`}
	relay, _ := newTestTelegram(t, fake)

	batch, err := relay.FetchBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("got %d messages", len(batch))
	}
	for i, want := range []int64{10, 11, 12} {
		if batch[i].SequenceID != want {
			t.Fatalf("batch[%d].SequenceID = %d, want %d", i, batch[i].SequenceID, want)
		}
	}

	if batch[0].SenderID != "424242" || batch[0].ChatID != "424242" || batch[0].Content != "/ping" {
		t.Errorf("first message = %+v", batch[0])
	}
	if batch[1].SenderID != "" || batch[1].Content != "" {
		t.Errorf("update without message should have no sender: %+v", batch[1])
	}
	if batch[2].Metadata["username"] != "op" || batch[2].Metadata["user_id"] != "7" {
		t.Errorf("metadata = %v", batch[2].Metadata)
	}

	if offsets := fake.offsetsSeen(); len(offsets) != 1 || offsets[0] != 10 {
		t.Fatalf("offsets sent = %v", offsets)
	}
}

func TestTelegramRejected(t *testing.T) {
	relay, _ := newTestTelegram(t, &fakeTelegram{status: http.StatusUnauthorized})

	_, err := relay.FetchBatch(context.Background(), 0)
	if !errors.Is(err, ErrRelayRejected) {
		t.Fatalf("err = %v, want ErrRelayRejected", err)
	}
}

func TestTelegramMalformed(t *testing.T) {
	relay, _ := newTestTelegram(t, &fakeTelegram{raw: `{"ok":true,"result":"not a list"}`})

	batch, err := relay.FetchBatch(context.Background(), 0)
	if err == nil {
		t.Fatalf("expected an error, got batch %+v", batch)
	}
	if errors.Is(err, ErrRelayRejected) {
		t.Fatalf("a bad payload is not a rejection: %v", err)
	}
	if KindOf(err) == nil {
		t.Fatalf("err %v carries no failure kind", err)
	}
}

func TestTelegramNetworkUnavailable(t *testing.T) {
	relay, srv := newTestTelegram(t, &fakeTelegram{updates: `[]`})
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := relay.FetchBatch(ctx, 0)
	if !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("err = %v, want ErrNetworkUnavailable", err)
	}
}

func TestTelegramSend(t *testing.T) {
	fake := &fakeTelegram{}
	relay, _ := newTestTelegram(t, fake)

	if err := relay.Send(context.Background(), "424242", "Pong! Device is online."); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sent := fake.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v", sent)
	}
	if sent[0]["text"] != "Pong! Device is online." {
		t.Errorf("text = %v", sent[0]["text"])
	}
	if chatID, _ := sent[0]["chat_id"].(float64); chatID != 424242 {
		t.Errorf("chat_id = %v", sent[0]["chat_id"])
	}
}

func TestTelegramSendFailures(t *testing.T) {
	relay, _ := newTestTelegram(t, &fakeTelegram{sendFail: true})

	if err := relay.Send(context.Background(), "424242", "hi"); !errors.Is(err, ErrRelayRejected) {
		t.Fatalf("err = %v, want ErrRelayRejected", err)
	}
	if err := relay.Send(context.Background(), "", "hi"); !errors.Is(err, ErrRelayRejected) {
		t.Fatalf("empty chat: err = %v", err)
	}
}

func TestTelegramOperatorChatIsOperator(t *testing.T) {
	relay, err := NewTelegramRelay(TelegramOptions{Token: testToken})
	if err != nil {
		t.Fatalf("NewTelegramRelay: %v", err)
	}
	if chat := OperatorChat(relay, "42"); chat != "42" {
		t.Fatalf("OperatorChat = %q, want 42", chat)
	}
}
