package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandria/sales-ai-platform/internal/archive"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/internal/leads"
	"github.com/alejandria/sales-ai-platform/internal/notify"
	"github.com/alejandria/sales-ai-platform/pkg/logging"
)

const (
	testPipeline = 100
	testCold     = 1
	testWarm     = 2
)

// fakeKommo plays both the CRM and the chat messenger.
type fakeKommo struct {
	mu        sync.Mutex
	leads     map[int64]*leads.Lead
	texts     []string
	audios    []string
	moves     []int64
	tagged    []int64
	leadReads int
	textErr   error
	audioErr  error
	stopErr   error
}

func newFakeKommo(ls ...*leads.Lead) *fakeKommo {
	f := &fakeKommo{leads: make(map[int64]*leads.Lead)}
	for _, l := range ls {
		f.leads[l.ID] = l
	}
	return f
}

func (f *fakeKommo) GetLead(_ context.Context, id int64) (*leads.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leadReads++
	l, ok := f.leads[id]
	if !ok {
		return nil, leads.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeKommo) MoveLead(_ context.Context, id, pipelineID, statusID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, statusID)
	if l, ok := f.leads[id]; ok {
		l.PipelineID, l.StatusID = pipelineID, statusID
	}
	return nil
}

func (f *fakeKommo) AddStopTag(_ context.Context, id int64, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagged = append(f.tagged, id)
	if l, ok := f.leads[id]; ok {
		l.Tags = append(l.Tags, tag)
	}
	return nil
}

func (f *fakeKommo) HasStopTag(_ context.Context, id int64, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return false, f.stopErr
	}
	l, ok := f.leads[id]
	return ok && l.HasTag(tag), nil
}

func (f *fakeKommo) SendTextMessage(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeKommo) SendAudioMessage(_ context.Context, _ string, _ string, b64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audioErr != nil {
		return f.audioErr
	}
	f.audios = append(f.audios, b64)
	return nil
}

func (f *fakeKommo) crmCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leadReads + len(f.moves) + len(f.tagged)
}

type countingLLM struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (c *countingLLM) Complete(context.Context, conversation.LLMRequest) (conversation.LLMResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	reply := c.reply
	if reply == "" {
		reply = "Perfecto, cuéntame más."
	}
	return conversation.LLMResponse{Text: reply}, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0.5}, nil
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAuditor) add(e string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *recordingAuditor) LogLeadMoved(context.Context, int64, string, string, string, int64, int64) error {
	return a.add("moved")
}
func (a *recordingAuditor) LogStopTagged(context.Context, int64, string, string, string) error {
	return a.add("stop")
}
func (a *recordingAuditor) LogMessageIgnored(context.Context, int64, string, string) error {
	return a.add("ignored")
}
func (a *recordingAuditor) LogRouteFailed(context.Context, int64, string, string, error) error {
	return a.add("route_failed")
}

type recordingNotifier struct {
	promotions []notify.Promotion
}

func (n *recordingNotifier) NotifyPromotion(_ context.Context, p notify.Promotion) error {
	n.promotions = append(n.promotions, p)
	return nil
}

type recordingArchiver struct {
	records []*archive.TranscriptRecord
}

func (a *recordingArchiver) ArchiveTranscript(_ context.Context, r *archive.TranscriptRecord) error {
	a.records = append(a.records, r)
	return nil
}

type stubResponder struct {
	env   *conversation.ResponseEnvelope
	err   error
	calls int
}

func (s *stubResponder) Respond(context.Context, conversation.MessageRequest) (*conversation.ResponseEnvelope, error) {
	s.calls++
	return s.env, s.err
}

func newLead(id int64, tags ...string) *leads.Lead {
	return &leads.Lead{ID: id, PipelineID: testPipeline, StatusID: 99, Tags: tags}
}

func newRouter(crm leads.CRM) *leads.Router {
	stages := leads.PipelineStages{PipelineID: testPipeline, ColdStatusID: testCold, WarmStatusID: testWarm}
	return leads.NewRouter(crm, stages, leads.DefaultStopTag, logging.New("error"))
}

type harness struct {
	svc      *Service
	kommo    *fakeKommo
	llm      *countingLLM
	history  *conversation.MemoryHistoryStore
	records  *leads.InMemoryRepository
	auditor  *recordingAuditor
	notifier *recordingNotifier
	archiver *recordingArchiver
}

func newHarness(t *testing.T, kommo *fakeKommo) *harness {
	t.Helper()
	h := &harness{
		kommo:    kommo,
		llm:      &countingLLM{},
		history:  conversation.NewMemoryHistoryStore(),
		records:  leads.NewInMemoryRepository(),
		auditor:  &recordingAuditor{},
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
	}
	responder := conversation.NewResponder(h.llm, fixedEmbedder{}, h.history, logging.New("error"),
		conversation.WithTypingDelay(0, 180))
	h.svc = NewService(responder, newRouter(kommo), kommo, logging.New("error"),
		WithRecords(h.records),
		WithAuditor(h.auditor),
		WithNotifier(h.notifier),
		WithTranscriptArchive(h.archiver, responder),
	)
	return h
}

func message(leadID int64, prompt string) conversation.MessageRequest {
	return conversation.MessageRequest{ConversationID: "conv-1", LeadID: leadID, Prompt: prompt}
}

func TestHandleIncomingMessage_StopTaggedLeadIsIgnored(t *testing.T) {
	h := newHarness(t, newFakeKommo(newLead(123, "STOP")))

	res, err := h.svc.HandleIncomingMessage(context.Background(), message(123, "hola, ¿cuánto cuesta la tesis?"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Ignored)
	assert.Equal(t, leads.CategoryIgnored, res.Category)
	assert.Zero(t, h.llm.calls, "suppressed leads must not reach the completion service")
	assert.Empty(t, h.kommo.texts)
	assert.Equal(t, []string{"ignored"}, h.auditor.events)
}

func TestHandleIncomingMessage_FarewellTouchesNoPipeline(t *testing.T) {
	h := newHarness(t, newFakeKommo(newLead(7)))

	res, err := h.svc.HandleIncomingMessage(context.Background(), message(7, "gracias, nos vemos"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, conversation.TagFarewell, res.LeadTag)
	assert.Equal(t, leads.CategoryNone, res.Category)
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.kommo.crmCalls(), "farewell must not read, move or tag the lead")
	require.Len(t, h.kommo.texts, 1)
}

func TestHandleIncomingMessage_LearnIntentIsMarketing(t *testing.T) {
	h := newHarness(t, newFakeKommo(newLead(8)))
	h.llm.reply = "Te comparto recursos para que avances por tu cuenta."

	res, err := h.svc.HandleIncomingMessage(context.Background(), message(8, "quiero aprender a hacer mi tesis solo"))
	require.NoError(t, err)

	assert.Equal(t, conversation.TagEducational, res.LeadTag)
	assert.Equal(t, leads.CategoryMarketing, res.Category)
	assert.Empty(t, h.kommo.moves)
	assert.Empty(t, h.kommo.tagged)
	assert.NotContains(t, strings.ToLower(res.Reply), "reunión")
}

func TestHandleIncomingMessage_QualifiedLeadIsPromoted(t *testing.T) {
	h := newHarness(t, newFakeKommo(newLead(9)))
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, h.history.Append(ctx, "conv-1",
		conversation.StoredTurn{Turn: conversation.Turn{Role: conversation.ChatRoleUser, Text: "Soy de la UCV, estudio Psicología, tengo avance, lo presento 12/2024 y el pago es individual", Timestamp: now}},
		conversation.StoredTurn{Turn: conversation.Turn{Role: conversation.ChatRoleAssistant, Text: "Gracias por los datos.", Timestamp: now}},
	))

	res, err := h.svc.HandleIncomingMessage(ctx, message(9, "¿cuánto sería?"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, conversation.TagQuoteDocumentRequest, res.LeadTag)
	assert.Equal(t, leads.CategoryQuote, res.Category)
	assert.Zero(t, h.llm.calls)
	assert.Equal(t, []int64{testWarm}, h.kommo.moves)
	assert.Equal(t, []int64{9}, h.kommo.tagged)
	assert.Equal(t, []string{"moved", "stop"}, h.auditor.events)

	require.Len(t, h.notifier.promotions, 1)
	assert.Equal(t, leads.CategoryQuote, h.notifier.promotions[0].Category)
	require.Len(t, h.archiver.records, 1)
	assert.Len(t, h.archiver.records[0].Turns, 4)

	recs, err := h.records.ListByLead(ctx, 9, leads.ListRecordsFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "conv-1", recs[0].SessionID)

	// the next message is suppressed
	res, err = h.svc.HandleIncomingMessage(ctx, message(9, "¿sigues ahí?"))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestHandleIncomingMessage_Validation(t *testing.T) {
	h := newHarness(t, newFakeKommo(newLead(1)))
	cases := []struct {
		name string
		req  conversation.MessageRequest
		want string
	}{
		{"empty prompt", conversation.MessageRequest{ConversationID: "c", LeadID: 1, Prompt: "  "}, "empty prompt"},
		{"no conversation", conversation.MessageRequest{LeadID: 1, Prompt: "hola"}, "missing conversationId"},
		{"no lead", conversation.MessageRequest{ConversationID: "c", Prompt: "hola"}, "missing leadId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.svc.HandleIncomingMessage(context.Background(), tc.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tc.want, res.Error)
		})
	}
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.kommo.crmCalls())
}

func TestHandleIncomingMessage_Delivery(t *testing.T) {
	audio := conversation.AudioContent{MimeType: "audio/mpeg", Base64: "QUJD"}
	captioned := audio
	captioned.Caption = "Hola"

	cases := []struct {
		name       string
		content    conversation.Content
		textErr    error
		audioErr   error
		wantType   string
		wantOK     bool
		wantTexts  int
		wantAudios int
	}{
		{name: "text", content: conversation.TextContent{Text: "Hola"}, wantType: TypeText, wantOK: true, wantTexts: 1},
		{name: "text failure", content: conversation.TextContent{Text: "Hola"}, textErr: errors.New("boom"), wantType: TypeTextError},
		{name: "audio", content: audio, wantType: TypeAudio, wantOK: true, wantAudios: 1},
		{name: "audio failure", content: audio, audioErr: errors.New("boom"), wantType: TypeAudioError},
		{name: "captioned audio", content: captioned, wantType: TypeAudio, wantOK: true, wantTexts: 1, wantAudios: 1},
		{name: "captioned audio failure keeps text", content: captioned, audioErr: errors.New("boom"), wantType: TypeText, wantOK: true, wantTexts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kommo := newFakeKommo(newLead(5))
			kommo.textErr, kommo.audioErr = tc.textErr, tc.audioErr
			responder := &stubResponder{env: &conversation.ResponseEnvelope{
				Content: tc.content,
				Lead:    conversation.LeadRecord{Type: conversation.TagCold},
			}}
			svc := NewService(responder, newRouter(kommo), kommo, logging.New("error"))

			res, err := svc.HandleIncomingMessage(context.Background(), message(5, "hola"))
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, res.Type)
			assert.Equal(t, tc.wantOK, res.Success)
			assert.Len(t, kommo.texts, tc.wantTexts)
			assert.Len(t, kommo.audios, tc.wantAudios)
			if tc.wantOK {
				assert.Equal(t, []int64{testCold}, kommo.moves)
			} else {
				assert.Empty(t, kommo.moves, "undelivered replies are not routed")
			}
		})
	}
}

func TestHandleIncomingMessage_ResponderErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"completion", errors.New("conversation: completion: timeout"), TypeFatal},
		{"synthesis", conversation.ErrSynthesis, TypeAudioError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kommo := newFakeKommo(newLead(5))
			svc := NewService(&stubResponder{err: tc.err}, newRouter(kommo), kommo, logging.New("error"))

			res, err := svc.HandleIncomingMessage(context.Background(), message(5, "hola"))
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tc.want, res.Type)
			assert.Equal(t, leads.CategoryError, res.Category)
			assert.Empty(t, kommo.texts)
		})
	}
}

func TestHandleIncomingMessage_StopCheckFailureIsFatal(t *testing.T) {
	kommo := newFakeKommo(newLead(5))
	kommo.stopErr = errors.New("kommo down")
	responder := &stubResponder{}
	svc := NewService(responder, newRouter(kommo), kommo, logging.New("error"))

	res, err := svc.HandleIncomingMessage(context.Background(), message(5, "hola"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, TypeFatal, res.Type)
	assert.Zero(t, responder.calls)
}

func TestHandleIncomingMessage_RouteFailureKeepsSuccess(t *testing.T) {
	kommo := newFakeKommo() // lead unknown to the CRM
	responder := &stubResponder{env: &conversation.ResponseEnvelope{
		Content: conversation.TextContent{Text: "Hola"},
		Lead:    conversation.LeadRecord{Type: conversation.TagWarm},
	}}
	auditor := &recordingAuditor{}
	svc := NewService(responder, newRouter(kommo), kommo, logging.New("error"), WithAuditor(auditor))

	res, err := svc.HandleIncomingMessage(context.Background(), message(5, "agendemos una llamada"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"route_failed"}, auditor.events)
}

func TestHandleIncomingMessage_SessionDefaultsToConversation(t *testing.T) {
	h := newHarness(t, newFakeKommo(newLead(11)))
	_, err := h.svc.HandleIncomingMessage(context.Background(), message(11, "hola, estudio en la UNAM"))
	require.NoError(t, err)

	turns, err := h.history.ListTurns(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.NotEmpty(t, turns)
}

func TestIsSuppressed(t *testing.T) {
	kommo := newFakeKommo(newLead(1, "stop"), newLead(2))
	svc := NewService(&stubResponder{}, newRouter(kommo), kommo, nil)

	stopped, err := svc.IsSuppressed(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stopped)

	stopped, err = svc.IsSuppressed(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, stopped)
}
