package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "bot@alejandria.pe",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "bot@alejandria.pe",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != defaultFromName {
		t.Errorf("expected default from name %q, got %q", defaultFromName, sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{client: nil}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "asesor@alejandria.pe",
		Subject: "Test",
		Body:    "Test body",
	})
	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_RecordsMessages(t *testing.T) {
	sender := NewStubEmailSender(nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "asesor@alejandria.pe", Subject: "Lead 1"}); err != nil {
		t.Fatalf("stub sender should not return error, got: %v", err)
	}
	if sent := sender.Sent(); len(sent) != 1 || sent[0].Subject != "Lead 1" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "bot@alejandria.pe", ConfigurationSet: "advisor-alerts"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "asesor@alejandria.pe",
		Subject: "Lead 7",
		Body:    "texto",
		HTML:    "<p>texto</p>",
		Tags:    map[string]string{"lead_id": "7", "category": "quote doc"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != defaultFromName+" <bot@alejandria.pe>" {
		t.Errorf("unexpected from %q", got)
	}
	body := api.input.Content.Simple.Body
	if body.Text == nil || body.Html == nil {
		t.Fatalf("expected text and html parts")
	}
	if got := aws.ToString(api.input.ConfigurationSetName); got != "advisor-alerts" {
		t.Errorf("unexpected configuration set %q", got)
	}
	if len(api.input.EmailTags) != 2 {
		t.Fatalf("expected 2 email tags, got %d", len(api.input.EmailTags))
	}
	// Tags are sorted by key and sanitized for SES.
	if aws.ToString(api.input.EmailTags[0].Name) != "category" || aws.ToString(api.input.EmailTags[0].Value) != "quote_doc" {
		t.Errorf("unexpected first tag %+v", api.input.EmailTags[0])
	}

	api.err = errors.New("throttled")
	if err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSESTagValue(t *testing.T) {
	cases := map[string]string{"": "_", "lead-7": "lead-7", "ñandú 1": "_and__1"}
	for in, want := range cases {
		if got := sesTagValue(in); got != want {
			t.Errorf("sesTagValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSESSender_NilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatalf("expected nil sender without client")
	}
}
