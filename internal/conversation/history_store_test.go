package conversation

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func TestMemoryHistoryStoreNearest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHistoryStore()
	_ = store.Append(ctx, "a",
		StoredTurn{Turn: userTurn("tesis de psicología"), Embedding: []float32{1, 0}},
		StoredTurn{Turn: assistantTurn("sin vector")},
	)
	_ = store.Append(ctx, "b",
		StoredTurn{Turn: userTurn("precio"), Embedding: []float32{0, 1}},
		StoredTurn{Turn: userTurn("casi psicología"), Embedding: []float32{0.9, 0.1}},
	)

	got, err := store.NearestByEmbedding(ctx, []float32{1, 0}, 2, "")
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(got) != 2 || got[0] != "tesis de psicología" || got[1] != "casi psicología" {
		t.Fatalf("unexpected ranking %v", got)
	}

	got, _ = store.NearestByEmbedding(ctx, []float32{1, 0}, 3, "b")
	if len(got) != 2 || got[0] != "casi psicología" {
		t.Fatalf("unexpected session ranking %v", got)
	}

	turns, _ := store.ListTurns(ctx, "a")
	if len(turns) != 2 || turns[1].Text != "sin vector" {
		t.Fatalf("unexpected turns %+v", turns)
	}
}

func TestRedisHistoryStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisHistoryStore(client, time.Hour)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Append(ctx, "s1",
		StoredTurn{Turn: Turn{Role: ChatRoleUser, Text: "hola", Timestamp: now}, Embedding: []float32{1, 0}},
		StoredTurn{Turn: Turn{Role: ChatRoleAssistant, Text: "bienvenido", Timestamp: now}},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "s2", StoredTurn{Turn: Turn{Role: ChatRoleUser, Text: "otra", Timestamp: now}, Embedding: []float32{0, 1}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := store.ListTurns(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 2 || turns[0].Text != "hola" || !turns[0].Timestamp.Equal(now) {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if ttl := mr.TTL(sessionKey("s1")); ttl != time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}

	global, err := store.NearestByEmbedding(ctx, []float32{0, 1}, 3, "")
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(global) != 2 || global[0] != "otra" {
		t.Fatalf("unexpected global neighbors %v", global)
	}
	scoped, _ := store.NearestByEmbedding(ctx, []float32{0, 1}, 3, "s1")
	if len(scoped) != 1 || scoped[0] != "hola" {
		t.Fatalf("unexpected scoped neighbors %v", scoped)
	}
}

func TestPostgresHistoryStoreAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	vec := "[1,0.5]"
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs(pgxmock.AnyArg(), "s1", ChatRoleUser, "hola", &vec, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs(pgxmock.AnyArg(), "s1", ChatRoleAssistant, "bienvenido", (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresHistoryStore(mock)
	err = store.Append(context.Background(), "s1",
		StoredTurn{Turn: Turn{Role: ChatRoleUser, Text: "hola", Timestamp: now}, Embedding: []float32{1, 0.5}},
		StoredTurn{Turn: Turn{Role: ChatRoleAssistant, Text: "bienvenido", Timestamp: now}},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresHistoryStoreQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT role, content, created_at\s+FROM chat_messages\s+WHERE session_id = \$1\s+ORDER BY created_at ASC, seq ASC`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow(ChatRoleUser, "hola", now).
			AddRow(ChatRoleAssistant, "bienvenido", now))
	mock.ExpectQuery("SELECT content").
		WithArgs("[1,0]", 3, "").
		WillReturnRows(pgxmock.NewRows([]string{"content"}).AddRow("bienvenido"))

	store := NewPostgresHistoryStore(mock)
	turns, err := store.ListTurns(context.Background(), "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 2 || turns[1].Role != ChatRoleAssistant {
		t.Fatalf("unexpected turns %+v", turns)
	}
	matches, err := store.NearestByEmbedding(context.Background(), []float32{1, 0}, 3, "")
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(matches) != 1 || matches[0] != "bienvenido" {
		t.Fatalf("unexpected matches %v", matches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileCaches(t *testing.T) {
	ctx := context.Background()
	entry := CachedProfile{Profile: ClientProfile{University: "UCV"}, TurnCount: 4}

	mem := NewMemoryProfileCache(time.Minute)
	base := time.Now()
	mem.now = func() time.Time { return base }
	mem.Put(ctx, "s1", entry)
	if got, ok := mem.Get(ctx, "s1"); !ok || got.Profile.University != "UCV" || got.TurnCount != 4 {
		t.Fatalf("memory cache miss: %+v %v", got, ok)
	}
	mem.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := mem.Get(ctx, "s1"); ok {
		t.Fatalf("expected expired entry")
	}

	mr := miniredis.RunT(t)
	rc := NewRedisProfileCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	rc.Put(ctx, "s1", entry)
	if got, ok := rc.Get(ctx, "s1"); !ok || got.Profile.University != "UCV" {
		t.Fatalf("redis cache miss: %+v %v", got, ok)
	}
	mr.Close()
	if _, ok := rc.Get(ctx, "s1"); ok {
		t.Fatalf("unreachable redis should behave as a miss")
	}
}
