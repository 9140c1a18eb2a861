// Package main drives a running API through the Kommo webhook and checks how
// each conversation is classified.
//
// The API must run with USE_MEMORY_QUEUE=true (or a shared job store) and a
// Kommo sandbox account, since replies and pipeline moves hit the real CRM.
//
// Usage:
//
//	API_BASE_URL=... KOMMO_SCOPE_ID=... E2E_LEAD_ID=... go run scripts/e2e/run_e2e.go [scenario-name]
//
// With ADMIN_JWT_SECRET set, the admin-records scenario also reads the lead's
// stored records through the admin API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	httpmiddleware "github.com/alejandria/sales-ai-platform/internal/http/middleware"
)

const (
	maxWait      = 90 * time.Second
	pollInterval = 2 * time.Second
)

var (
	apiBase string
	scopeID string
	leadID  int64
	client  = &http.Client{Timeout: 15 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason"`
	JobID   string `json:"jobId"`
	Error   string `json:"error"`
}

type jobResult struct {
	Success  bool   `json:"success"`
	Ignored  bool   `json:"ignored"`
	Type     string `json:"type"`
	Error    string `json:"error"`
	Category string `json:"category"`
	LeadTag  string `json:"leadTag"`
	Reply    string `json:"reply"`
}

type jobRecord struct {
	Status       string     `json:"status"`
	Result       *jobResult `json:"result"`
	ErrorMessage string     `json:"errorMessage"`
}

func chatID(name string) string {
	return fmt.Sprintf("e2e-%s-%d", name, time.Now().UnixNano())
}

func sendMessage(chat string, add map[string]interface{}) (*webhookResponse, int, error) {
	add["chat_id"] = chat
	add["element_id"] = strconv.FormatInt(leadID, 10)
	add["entity_id"] = strconv.FormatInt(leadID, 10)
	if _, ok := add["type"]; !ok {
		add["type"] = "incoming"
	}
	body, _ := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{"add": []map[string]interface{}{add}},
	})
	resp, err := client.Post(fmt.Sprintf("%s/kommo/incoming/%s", apiBase, scopeID), "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	var out webhookResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode %q: %w", string(raw), err)
	}
	return &out, resp.StatusCode, nil
}

func sendText(chat, text string) (*webhookResponse, int, error) {
	return sendMessage(chat, map[string]interface{}{"text": text})
}

func waitForJob(jobID string) (*jobRecord, error) {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		resp, err := client.Get(fmt.Sprintf("%s/kommo/jobs/%s", apiBase, jobID))
		if err != nil {
			return nil, err
		}
		var job jobRecord
		err = json.NewDecoder(resp.Body).Decode(&job)
		resp.Body.Close()
		if err == nil && job.Status != "" && job.Status != "pending" {
			return &job, nil
		}
		time.Sleep(pollInterval)
	}
	return nil, fmt.Errorf("job %s still pending after %s", jobID, maxWait)
}

// turn sends one message and waits for the processed result.
func turn(t *T, chat, text string) *jobResult {
	fmt.Printf("    > %s\n", text)
	ack, status, err := sendText(chat, text)
	if err != nil {
		t.fatalf("send: %v", err)
		return nil
	}
	if status != http.StatusAccepted || ack.JobID == "" {
		t.fatalf("expected 202 with job id, got %d %+v", status, ack)
		return nil
	}
	job, err := waitForJob(ack.JobID)
	if err != nil {
		t.fatalf("%v", err)
		return nil
	}
	if job.Result == nil {
		t.fatalf("job %s failed: %s", ack.JobID, job.ErrorMessage)
		return nil
	}
	fmt.Printf("    < [%s/%s] %s\n", job.Result.LeadTag, job.Result.Category, job.Result.Reply)
	return job.Result
}

func scenarioFarewell(t *T) {
	res := turn(t, chatID("farewell"), "Gracias, eso era todo. ¡Hasta luego!")
	if res == nil {
		return
	}
	t.check("reply delivered", res.Success)
	t.check("farewell leaves the lead alone", res.Category == "none")
}

func scenarioEducational(t *T) {
	res := turn(t, chatID("educational"), "¿Qué es una tesis de grado y qué partes tiene?")
	if res == nil {
		return
	}
	t.check("reply delivered", res.Success)
	t.check("reply is not empty", strings.TrimSpace(res.Reply) != "")
}

func scenarioPriceQuestion(t *T) {
	chat := chatID("price")
	res := turn(t, chat, "Hola, ¿cuánto cuesta que me ayuden con mi tesis?")
	if res == nil {
		return
	}
	t.check("price question is not answered with a farewell", res.LeadTag != "farewell")
	t.check("price question does not fail", res.Category != "error")
}

func scenarioVoiceIgnored(t *T) {
	ack, status, err := sendMessage(chatID("voice"), map[string]interface{}{
		"attachment": map[string]string{"type": "voice", "link": "https://example.com/voice.ogg", "file_name": "voice.ogg"},
	})
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("voice note acknowledged", status == http.StatusOK)
	t.check("voice note ignored", ack.Ignored)
}

func scenarioWrongScope(t *T) {
	resp, err := client.Post(apiBase+"/kommo/incoming/not-"+scopeID, "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	resp.Body.Close()
	t.check("unknown scope is rejected", resp.StatusCode == http.StatusNotFound)
}

func scenarioAdminRecords(t *T) {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("    SKIP: ADMIN_JWT_SECRET not set")
		return
	}
	token, err := httpmiddleware.IssueAdminToken(secret, "e2e", 5*time.Minute)
	if err != nil {
		t.fatalf("issue token: %v", err)
		return
	}

	url := fmt.Sprintf("%s/admin/leads/%d/records", apiBase, leadID)
	unauth, err := client.Get(url)
	if err != nil {
		t.fatalf("get: %v", err)
		return
	}
	unauth.Body.Close()
	t.check("admin api requires a token", unauth.StatusCode == http.StatusUnauthorized)

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		t.fatalf("get: %v", err)
		return
	}
	defer resp.Body.Close()
	var body struct {
		LeadID int64 `json:"lead_id"`
		Count  int   `json:"count"`
	}
	t.check("records listed", resp.StatusCode == http.StatusOK)
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.fatalf("decode: %v", err)
		return
	}
	t.check("records belong to the lead", body.LeadID == leadID)
	fmt.Printf("    %d records\n", body.Count)
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	scopeID = os.Getenv("KOMMO_SCOPE_ID")
	if apiBase == "" || scopeID == "" {
		fmt.Println("API_BASE_URL and KOMMO_SCOPE_ID are required")
		os.Exit(2)
	}
	var err error
	if leadID, err = strconv.ParseInt(os.Getenv("E2E_LEAD_ID"), 10, 64); err != nil || leadID <= 0 {
		fmt.Println("E2E_LEAD_ID must be a sandbox lead id")
		os.Exit(2)
	}

	scenarios := []scenario{
		{"wrong-scope", scenarioWrongScope},
		{"voice-ignored", scenarioVoiceIgnored},
		{"farewell", scenarioFarewell},
		{"educational", scenarioEducational},
		{"price-question", scenarioPriceQuestion},
		{"admin-records", scenarioAdminRecords},
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	var passed, failed int
	for _, sc := range scenarios {
		if only != "" && sc.Name != only {
			continue
		}
		fmt.Printf("=== %s\n", sc.Name)
		t := &T{}
		sc.Fn(t)
		passed += t.passed
		failed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
