package webhooks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
	"github.com/skcetlabs/portal/pkg/users"
)

// memoryMirror applies lifecycle events to an in-memory map with the same
// idempotence contract as the Postgres store
type memoryMirror struct {
	records map[string]users.UserRecord
	failing bool
	updates int
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{records: map[string]users.UserRecord{}}
}

func (m *memoryMirror) Upsert(_ context.Context, user users.UserRecord) error {
	if m.failing {
		return errors.New("database unavailable")
	}
	m.records[user.ExternalID] = user
	return nil
}

func (m *memoryMirror) Update(_ context.Context, user users.UserRecord) error {
	m.updates++
	return m.Upsert(context.Background(), user)
}

func (m *memoryMirror) Delete(_ context.Context, externalID string) error {
	if m.failing {
		return errors.New("database unavailable")
	}
	delete(m.records, externalID)
	return nil
}

func newTestHandler(t *testing.T, mirror UserMirror, at time.Time) *Handler {
	t.Helper()
	verifier := newTestVerifier(t, at)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewHandler(verifier, mirror, logger)
}

func deliver(t *testing.T, h *Handler, at time.Time, id string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/webhooks/identity", bytes.NewReader(body))
	req.Header.Set(HeaderID, id)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(at.Unix(), 10))
	req.Header.Set(HeaderSignature, signPayload(t, testSecret, id, at, body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Lifecycle(t *testing.T) {
	now := time.Unix(1756500000, 0)

	t.Run("user.created mirrors the user", func(t *testing.T) {
		mirror := newMemoryMirror()
		h := newTestHandler(t, mirror, now)

		body := []byte(`{
			"type": "user.created",
			"data": {
				"id": "user_123",
				"first_name": "Ada",
				"last_name": "Lovelace",
				"email_addresses": [{"email_address": "ada@skcet.ac.in"}],
				"unsafe_metadata": {"role": "student"}
			}
		}`)

		w := deliver(t, h, now, "msg_1", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		rec, ok := mirror.records["user_123"]
		if !ok {
			t.Fatal("expected user_123 to be mirrored")
		}
		if rec.Email != "ada@skcet.ac.in" || rec.Role != rbac.RoleStudent {
			t.Errorf("unexpected record: %+v", rec)
		}
	})

	t.Run("user.updated applied twice converges", func(t *testing.T) {
		mirror := newMemoryMirror()
		h := newTestHandler(t, mirror, now)

		body := []byte(`{
			"type": "user.updated",
			"data": {
				"id": "user_123",
				"first_name": "Ada",
				"last_name": "King",
				"email_addresses": [{"email_address": "ada@skcet.ac.in"}],
				"public_metadata": {"role": "faculty"}
			}
		}`)

		for _, id := range []string{"msg_1", "msg_1_retry"} {
			w := deliver(t, h, now, id, body)
			if w.Code != http.StatusOK {
				t.Fatalf("delivery %s: expected 200, got %d", id, w.Code)
			}
		}

		if mirror.updates != 2 {
			t.Errorf("expected 2 update calls, got %d", mirror.updates)
		}
		rec := mirror.records["user_123"]
		if rec.LastName != "King" || rec.Role != rbac.RoleFaculty {
			t.Errorf("unexpected record after replay: %+v", rec)
		}
	})

	t.Run("user.deleted removes the mirrored row", func(t *testing.T) {
		mirror := newMemoryMirror()
		mirror.records["user_123"] = users.UserRecord{ExternalID: "user_123"}
		h := newTestHandler(t, mirror, now)

		body := []byte(`{"type": "user.deleted", "data": {"id": "user_123"}}`)
		w := deliver(t, h, now, "msg_del", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if _, ok := mirror.records["user_123"]; ok {
			t.Error("expected user_123 to be removed")
		}
	})

	t.Run("unknown event type is acknowledged without writes", func(t *testing.T) {
		mirror := newMemoryMirror()
		h := newTestHandler(t, mirror, now)

		body := []byte(`{"type": "session.created", "data": {"id": "sess_1"}}`)
		w := deliver(t, h, now, "msg_s", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if len(mirror.records) != 0 {
			t.Error("expected no mirror writes for unhandled type")
		}
	})
}

func TestHandler_Rejections(t *testing.T) {
	now := time.Unix(1756500000, 0)
	body := []byte(`{"type": "user.created", "data": {"id": "user_123"}}`)

	t.Run("missing signature headers", func(t *testing.T) {
		mirror := newMemoryMirror()
		h := newTestHandler(t, mirror, now)

		req := httptest.NewRequest("POST", "/api/webhooks/identity", bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		if len(mirror.records) != 0 {
			t.Error("expected no mirror writes")
		}
	})

	t.Run("forged signature", func(t *testing.T) {
		mirror := newMemoryMirror()
		h := newTestHandler(t, mirror, now)

		req := httptest.NewRequest("POST", "/api/webhooks/identity", bytes.NewReader(body))
		req.Header.Set(HeaderID, "msg_1")
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
		req.Header.Set(HeaderSignature, "v1,Zm9yZ2VkZm9yZ2VkZm9yZ2Vk")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
		if len(mirror.records) != 0 {
			t.Error("expected no mirror writes")
		}
	})

	t.Run("payload without user id", func(t *testing.T) {
		mirror := newMemoryMirror()
		h := newTestHandler(t, mirror, now)

		empty := []byte(`{"type": "user.created", "data": {}}`)
		w := deliver(t, h, now, "msg_1", empty)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("store failure returns 500 for redelivery", func(t *testing.T) {
		mirror := newMemoryMirror()
		mirror.failing = true
		h := newTestHandler(t, mirror, now)

		w := deliver(t, h, now, "msg_1", body)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
}
