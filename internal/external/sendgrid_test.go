package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rewardbridge/internal/types"
)

func newTestSendGridClient(serverURL string) *SendGridClient {
	return NewSendGridClientWithBase(newTestBase(fastPolicy(0)), SendGridClientConfig{
		APIKey:      "SG.test_api_key",
		BaseURL:     serverURL,
		FromAddress: "rewards@example.com",
		FromName:    "Employee Rewards",
	})
}

func TestSendGridSend_Success(t *testing.T) {
	var payload sendGridMailPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	id, err := newTestSendGridClient(server.URL).Send(context.Background(), Email{
		To:          "ada@example.com",
		ToName:      "Ada",
		Subject:     "Happy Birthday",
		Text:        "Enjoy your gift card",
		Category:    "milestone",
		ReferenceID: "n-1",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "sg_msg_abc123" {
		t.Errorf("message id = %q", id)
	}
	if auth != "Bearer SG.test_api_key" {
		t.Errorf("auth = %q", auth)
	}
	if payload.Subject != "Happy Birthday" || payload.From.Email != "rewards@example.com" {
		t.Errorf("payload = %+v", payload)
	}
	if len(payload.Content) != 1 || payload.Content[0].Type != "text/plain" || payload.Content[0].Value != "Enjoy your gift card" {
		t.Errorf("content = %+v", payload.Content)
	}
	if payload.Personalizations[0].To[0].Name != "Ada" {
		t.Errorf("to = %+v", payload.Personalizations[0].To)
	}
	if payload.CustomArgs["reference_id"] != "n-1" || payload.Categories[0] != "milestone" {
		t.Errorf("tracking fields = %v %v", payload.CustomArgs, payload.Categories)
	}
}

func TestSendGridSend_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"The from address does not match a verified Sender Identity","field":"from"}]}`))
	}))
	defer server.Close()

	_, err := newTestSendGridClient(server.URL).Send(context.Background(), Email{To: "a@example.com", Subject: "s"})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Fatalf("expected email provider error, got %v", err)
	}
}

func TestSendGridSend_RequiresRecipient(t *testing.T) {
	_, err := newTestSendGridClient("http://127.0.0.1:0").Send(context.Background(), Email{Subject: "s"})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidEmail {
		t.Fatalf("expected validation error, got %v", err)
	}
}
