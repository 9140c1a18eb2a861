package kommo

import (
	"net/url"
	"testing"
)

func TestParseWebhookForm(t *testing.T) {
	form := url.Values{
		"account[id]":                            {"1"},
		"account[subdomain]":                     {"alejandria"},
		"message[add][0][id]":                    {"m1"},
		"message[add][0][chat_id]":               {"chat-9"},
		"message[add][0][text]":                  {"Hola, estudio en la UCV"},
		"message[add][0][entity_id]":             {"321"},
		"message[add][0][type]":                  {"incoming"},
		"message[add][0][attachment][type]":      {"file"},
		"message[add][0][attachment][link]":      {"https://files/x.pdf"},
		"message[add][0][attachment][file_name]": {"avance.pdf"},
		"message[add][1][chat_id]":               {"chat-10"},
		"leads[status][0][id]":                   {"77"},
	}

	body, err := ParseWebhookForm(form)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if body.Account == nil || body.Account.Subdomain != "alejandria" {
		t.Fatalf("unexpected account %+v", body.Account)
	}
	if len(body.Message.Add) != 2 || body.Message.Add[1].ChatID != "chat-10" {
		t.Fatalf("unexpected entries %+v", body.Message.Add)
	}
	msg := body.FirstMessage()
	if msg.ChatID != "chat-9" || msg.Prompt() != "Hola, estudio en la UCV" || msg.LeadID() != 321 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if doc := msg.Document(); doc == nil || doc.FileName != "avance.pdf" || doc.Link != "https://files/x.pdf" {
		t.Fatalf("expected document attachment, got %+v", doc)
	}

	other, err := ParseWebhookForm(url.Values{"leads[status][0][id]": {"77"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if other.FirstMessage() != nil {
		t.Fatalf("non message.add events have no message")
	}
}
