// Command llmtest chats with the configured responder from a terminal. It
// prints the lead tag and category of every turn and never touches Kommo.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/alejandria/sales-ai-platform/cmd/mainconfig"
	appbootstrap "github.com/alejandria/sales-ai-platform/internal/app/bootstrap"
	appconfig "github.com/alejandria/sales-ai-platform/internal/config"
	"github.com/alejandria/sales-ai-platform/internal/conversation"
	"github.com/alejandria/sales-ai-platform/internal/leads"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	session := flag.String("session", "", "session id to continue (default: new session)")
	timeout := flag.Duration("timeout", 60*time.Second, "per-turn timeout")
	flag.Parse()

	cfg := appconfig.Load()
	cfg.LogLevel = "warn"
	// Keep the REPL self-contained.
	cfg.RedisAddr = ""
	cfg.DatabaseURL = ""
	cfg.HistoryBackend = "memory"
	cfg.ProfileCacheBackend = "memory"
	cfg.AudioReplyProbability = 0
	logger := mainconfig.NewLogger(cfg, "llmtest")

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	rt, err := appbootstrap.NewRuntime(ctx, cfg, awsCfg, logger, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()
	providers, err := appbootstrap.BuildProviders(ctx, cfg, awsCfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer providers.Close()
	responder, err := appbootstrap.BuildResponder(rt, providers)
	if err != nil {
		log.Fatal(err)
	}

	sessionID := strings.TrimSpace(*session)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Printf("provider=%s session=%s (empty line or Ctrl-D to quit)\n", cfg.LLMProvider, sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			break
		}

		turnCtx, cancel := context.WithTimeout(ctx, *timeout)
		start := time.Now()
		env, err := responder.Respond(turnCtx, conversation.MessageRequest{
			SessionID:      sessionID,
			ConversationID: sessionID,
			LeadID:         1,
			Prompt:         prompt,
		})
		cancel()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("%s\n  [tag=%s category=%s %v]\n",
			env.ReplyText(), env.Lead.Type, leads.Classify(env.Lead.Type), time.Since(start).Round(time.Millisecond))
	}
}
