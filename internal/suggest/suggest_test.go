package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/formsmith/formsmith/internal/model"
)

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	return body
}

func TestSuggestParsesModelReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Write(chatReply(t, `[
			{"type": "text", "label": "Full Name", "required": true},
			{"type": "select", "label": "Topic", "options": ["Sales", "Support"]}
		]`))
	}))
	defer server.Close()

	client := NewClient("test-key", "", WithAPIURL(server.URL))
	suggestions, err := client.Suggest(context.Background(), "a contact form")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("len = %d, want 2", len(suggestions))
	}
	if suggestions[0].Label != "Full Name" || !suggestions[0].Required {
		t.Errorf("first = %+v", suggestions[0])
	}
	if suggestions[1].Type != model.FieldSelect || len(suggestions[1].Options) != 2 {
		t.Errorf("second = %+v", suggestions[1])
	}
}

func TestSuggestToleratesCodeFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, "```json\n[{\"type\": \"email\", \"label\": \"Email\"}]\n```"))
	}))
	defer server.Close()

	client := NewClient("test-key", "", WithAPIURL(server.URL))
	suggestions, err := client.Suggest(context.Background(), "newsletter signup")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Type != model.FieldEmail {
		t.Fatalf("suggestions = %+v", suggestions)
	}
}

func TestSuggestDropsUnknownFieldTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, `[
			{"type": "hologram", "label": "Weird"},
			{"type": "text", "label": "Name"}
		]`))
	}))
	defer server.Close()

	client := NewClient("test-key", "", WithAPIURL(server.URL))
	suggestions, err := client.Suggest(context.Background(), "a form")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Label != "Name" {
		t.Fatalf("suggestions = %+v", suggestions)
	}
}

func TestSuggestUnparseableReplyFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, "I'm sorry, I can't help with that."))
	}))
	defer server.Close()

	client := NewClient("test-key", "", WithAPIURL(server.URL))
	suggestions, err := client.Suggest(context.Background(), "a form")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected fallback suggestions")
	}
}

func TestSuggestUnconfiguredUsesFallback(t *testing.T) {
	client := NewClient("", "")
	suggestions, err := client.Suggest(context.Background(), "event rsvp form")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}

	var hasAttendance bool
	for _, s := range suggestions {
		if s.Type == model.FieldRadio {
			hasAttendance = true
		}
	}
	if !hasAttendance {
		t.Errorf("expected attendance field for rsvp description, got %+v", suggestions)
	}
}

func TestFallbackAlwaysHasContactSkeleton(t *testing.T) {
	suggestions := Fallback("anything at all")
	if len(suggestions) < 3 {
		t.Fatalf("len = %d, want at least name/email/message", len(suggestions))
	}
	if suggestions[0].Type != model.FieldText || suggestions[1].Type != model.FieldEmail {
		t.Errorf("skeleton = %+v", suggestions[:2])
	}
}
