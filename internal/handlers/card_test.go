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

// createCard posts to the card creation endpoint with no principal
// attached, so requests that pass validation come back 401.
func createCard(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	handler := NewCardHandler(services.NewCardService(nil, nil, log))

	req := httptest.NewRequest(http.MethodPost, "/create", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)
	return rec
}

func TestCreateCardNumberValidation(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   int
	}{
		{name: "sixteen digits", number: "4000111122223333", want: http.StatusUnauthorized},
		{name: "too short", number: "400011112222333", want: http.StatusBadRequest},
		{name: "too long", number: "40001111222233334", want: http.StatusBadRequest},
		{name: "letters", number: "400011112222333a", want: http.StatusBadRequest},
		{name: "spaces", number: "4000 1111 2222 3333", want: http.StatusBadRequest},
		{name: "empty", number: "", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]any{
				"profile_id":      uuid.New(),
				"card_number":     tt.number,
				"initial_balance": "0",
			})
			rec := createCard(t, string(body))

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusBadRequest {
				var resp ErrorResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Error != "Card number must be exactly 16 digits" {
					t.Fatalf("unexpected message %q", resp.Error)
				}
			}
		})
	}
}

func TestCreateCardRequiresProfileID(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"card_number":     "4000111122223333",
		"initial_balance": "0",
	})
	rec := createCard(t, string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCardRejectsNegativeBalance(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"profile_id":      uuid.New(),
		"card_number":     "4000111122223333",
		"initial_balance": "-0.01",
	})
	rec := createCard(t, string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCardRequiresBalance(t *testing.T) {
	body, _ := json.Marshal(map[string]any{
		"profile_id":  uuid.New(),
		"card_number": "4000111122223333",
	})
	rec := createCard(t, string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
