package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// sendTransfer posts to the send endpoint with no principal attached.
// Requests that pass validation come back 401 from the service's own
// authentication check; rejected ones come back 400 before the service
// is consulted.
func sendTransfer(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	handler := NewTransactionHandler(services.NewTransferService(nil, nil, nil, nil, log))

	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Send(rec, req)
	return rec
}

func TestSendRejectsMalformedBody(t *testing.T) {
	rec := sendTransfer(t, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendRejectsMissingCards(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"to_card_id": uuid.New(),
		"amount":     "10.00",
	})
	rec := sendTransfer(t, string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendRejectsMissingAmount(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"from_card_id": uuid.New(),
		"to_card_id":   uuid.New(),
	})
	rec := sendTransfer(t, string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendAmountValidation(t *testing.T) {
	tests := []struct {
		amount string
		want   int
	}{
		{amount: "0", want: http.StatusBadRequest},
		{amount: "0.05", want: http.StatusBadRequest},
		{amount: "-1", want: http.StatusBadRequest},
		{amount: "0.1", want: http.StatusUnauthorized},
		{amount: "10.00", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		body, _ := json.Marshal(map[string]any{
			"from_card_id": uuid.New(),
			"to_card_id":   uuid.New(),
			"amount":       tt.amount,
		})
		rec := sendTransfer(t, string(body))

		if rec.Code != tt.want {
			t.Errorf("amount %s: expected %d, got %d", tt.amount, tt.want, rec.Code)
			continue
		}
		if tt.want == http.StatusBadRequest {
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != "Amount must be greater than 0" {
				t.Errorf("amount %s: unexpected message %q", tt.amount, resp.Error)
			}
		}
	}
}
