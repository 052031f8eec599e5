package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NotNil(t, db.SQL())
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	err := db.migrate()
	require.NoError(t, err)

	var count int
	err = db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"checkpoints", "checkpoint_archive", "cases", "notifications", "triage_reports", "embedding_cache"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/hotline.db"
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

// --- Checkpoint store contract ---

func checkpointBackends(t *testing.T) map[string]domain.CheckpointStore {
	t.Helper()
	ctx := context.Background()
	out := map[string]domain.CheckpointStore{
		"sqlite": NewSQLiteCheckpointStore(testDB(t)),
		"memory": NewMemoryCheckpointStore(),
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		s, err := NewMongoCheckpointStore(ctx, uri, "hotline_test", "checkpoints_"+sanitizeName(t.Name())+"_"+uuid.NewString()[:8])
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(context.Background()) })
		out["mongo"] = s
	}
	if addr := os.Getenv("HOTLINE_TEST_REDIS_ADDR"); addr != "" {
		s, err := NewRedisCheckpointStore(ctx, addr, "hotline_test:"+uuid.NewString()+":")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		out["redis"] = s
	}
	return out
}

func sanitizeName(s string) string {
	out := []rune(s)
	for i, r := range out {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			out[i] = '_'
		}
	}
	return string(out)
}

func sampleCheckpoint(threadID string, version int64) *domain.Checkpoint {
	cp := domain.NewCheckpoint(threadID, domain.DomainElectricity)
	cp.Version = version
	cp.Messages = []domain.Message{
		domain.UserMessage("sparks from the pole"),
		domain.AssistantMessage("", domain.ToolCall{ID: "c1", Name: "retrieve", Arguments: []byte(`{"query":"sparks"}`)}),
		domain.ToolMessage("c1", "stay clear"),
		domain.AssistantMessage("Stay clear of the pole."),
	}
	cp.ExtraState[domain.StateSubmissionSeq] = 2
	cp.ExtraState[domain.StateEmergencyType] = "Electricity"
	return cp
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	for name, s := range checkpointBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Load(ctx, "electricity_u1")
			assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

			require.NoError(t, s.Save(ctx, sampleCheckpoint("electricity_u1", 1)))

			got, err := s.Load(ctx, "electricity_u1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), got.Version)
			assert.Equal(t, domain.DomainElectricity, got.Domain)
			require.Len(t, got.Messages, 4)
			assert.Equal(t, "c1", got.Messages[1].ToolCalls[0].ID)
			assert.JSONEq(t, `{"query":"sparks"}`, string(got.Messages[1].ToolCalls[0].Arguments))
			assert.Equal(t, "c1", got.Messages[2].ToolCallID)
			assert.Equal(t, int64(2), got.Int(domain.StateSubmissionSeq))
			assert.Equal(t, "Electricity", got.String(domain.StateEmergencyType))
			assert.False(t, got.CreatedAt.IsZero())
		})
	}
}

func TestCheckpointStore_VersionGuard(t *testing.T) {
	for name, s := range checkpointBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, sampleCheckpoint("t", 1)))

			// Re-saving version 1 conflicts.
			err := s.Save(ctx, sampleCheckpoint("t", 1))
			assert.ErrorIs(t, err, domain.ErrVersionConflict)

			// Skipping a version conflicts.
			err = s.Save(ctx, sampleCheckpoint("t", 3))
			assert.ErrorIs(t, err, domain.ErrVersionConflict)

			require.NoError(t, s.Save(ctx, sampleCheckpoint("t", 2)))
			got, err := s.Load(ctx, "t")
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.Version)

			// First save of a fresh thread must be version 1.
			err = s.Save(ctx, sampleCheckpoint("fresh", 2))
			assert.ErrorIs(t, err, domain.ErrVersionConflict)
		})
	}
}

func TestCheckpointStore_RejectsInvalid(t *testing.T) {
	for name, s := range checkpointBackends(t) {
		t.Run(name, func(t *testing.T) {
			cp := sampleCheckpoint("bad", 1)
			cp.Messages = append([]domain.Message{domain.ToolMessage("zzz", "orphan")}, cp.Messages...)
			err := s.Save(context.Background(), cp)
			require.Error(t, err)
			assert.False(t, errors.Is(err, domain.ErrVersionConflict))

			_, err = s.Load(context.Background(), "bad")
			assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
		})
	}
}

func TestCheckpointStore_ConcurrentSavesOneWins(t *testing.T) {
	for name, s := range checkpointBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, sampleCheckpoint("race", 1)))

			const writers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				ok        int
				conflicts int
			)
			for range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Save(ctx, sampleCheckpoint("race", 2))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, domain.ErrVersionConflict):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, ok)
			assert.Equal(t, writers-1, conflicts)
		})
	}
}

func TestCheckpointStore_DeleteArchives(t *testing.T) {
	for name, s := range checkpointBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, s.Delete(ctx, "gone"), domain.ErrCheckpointNotFound)

			require.NoError(t, s.Save(ctx, sampleCheckpoint("gone", 1)))
			require.NoError(t, s.Delete(ctx, "gone"))

			_, err := s.Load(ctx, "gone")
			assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

			// A fresh thread starts again at version 1.
			require.NoError(t, s.Save(ctx, sampleCheckpoint("gone", 1)))
		})
	}
}

func TestSQLiteCheckpointStore_Archived(t *testing.T) {
	s := NewSQLiteCheckpointStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleCheckpoint("a", 1)))
	require.NoError(t, s.Save(ctx, sampleCheckpoint("a", 2)))
	require.NoError(t, s.Delete(ctx, "a"))

	arch, err := s.Archived(ctx, "a")
	require.NoError(t, err)
	require.Len(t, arch, 1)
	assert.Equal(t, int64(2), arch[0].Version)
	assert.Len(t, arch[0].Messages, 4)
}

func TestCheckpointStore_Threads(t *testing.T) {
	listers := map[string]interface {
		domain.CheckpointStore
		domain.ThreadLister
	}{
		"sqlite": NewSQLiteCheckpointStore(testDB(t)),
		"memory": NewMemoryCheckpointStore(),
	}
	caseID := "7d0c6c55-2f6e-4c1b-9b8e-5d9f3a1e2b4c"

	for name, s := range listers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, sampleCheckpoint("electricity_a", 1)))

			med := sampleCheckpoint("medical_user_9", 1)
			med.Domain = domain.DomainMedical
			require.NoError(t, s.Save(ctx, med))

			fu := sampleCheckpoint(domain.FollowupThreadID(caseID, "u2"), 1)
			fu.Domain = domain.DomainFollowup
			require.NoError(t, s.Save(ctx, fu))

			all, err := s.Threads(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			byID := map[string]domain.Thread{}
			for _, th := range all {
				assert.False(t, th.CreatedAt.IsZero(), th.ID)
				byID[th.ID] = th
			}
			assert.Equal(t, "a", byID["electricity_a"].UserID)
			assert.Equal(t, domain.DomainElectricity, byID["electricity_a"].Domain)
			assert.Equal(t, "user_9", byID["medical_user_9"].UserID)
			assert.Equal(t, "u2", byID["followup_"+caseID+"_u2"].UserID)

			only, err := s.Threads(ctx, domain.DomainMedical)
			require.NoError(t, err)
			require.Len(t, only, 1)
			assert.Equal(t, "medical_user_9", only[0].ID)

			// Reset threads drop out once archived.
			require.NoError(t, s.Delete(ctx, "electricity_a"))
			left, err := s.Threads(ctx, domain.DomainElectricity)
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestMemoryCheckpointStore_Archived(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleCheckpoint("a", 1)))
	require.NoError(t, s.Delete(ctx, "a"))

	arch, err := s.Archived(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, arch, 1)
}

// --- Case store contract ---

func caseBackends(t *testing.T) map[string]domain.CaseStore {
	t.Helper()
	out := map[string]domain.CaseStore{
		"sqlite": NewSQLiteCaseStore(testDB(t)),
		"memory": NewMemoryCaseStore(),
	}
	if dsn := os.Getenv("HOTLINE_TEST_POSTGRES_DSN"); dsn != "" {
		s, err := NewPostgresCaseStore(context.Background(), dsn)
		require.NoError(t, err)
		_, err = s.db.Exec(`TRUNCATE cases`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		out["postgres"] = s
	}
	return out
}

func TestCaseStore_CreateAndGet(t *testing.T) {
	for name, s := range caseBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Create(ctx, domain.CaseInput{
				Domain: domain.DomainElectricity,
				UserID: "u1",
				Draft:  domain.CaseDraft{"location": "12 Elm Street", "severity": "hazardous", "reporter_phone": nil},
			})
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			c, err := s.Get(ctx, id, domain.DomainElectricity)
			require.NoError(t, err)
			assert.Equal(t, "u1", c.UserID)
			assert.Equal(t, domain.StatusNotAssigned, c.Status)
			assert.Equal(t, "12 Elm Street", c.Fields["location"])
			assert.Contains(t, c.Fields, "reporter_phone")
			assert.Nil(t, c.Fields["reporter_phone"])

			_, err = s.Get(ctx, id, domain.DomainMedical)
			assert.ErrorIs(t, err, domain.ErrCaseNotFound)
			_, err = s.Get(ctx, "missing", domain.DomainElectricity)
			assert.ErrorIs(t, err, domain.ErrCaseNotFound)
		})
	}
}

func TestCaseStore_IdempotentCreate(t *testing.T) {
	for name, s := range caseBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := domain.CaseInput{
				Domain:         domain.DomainFire,
				UserID:         "u2",
				Draft:          domain.CaseDraft{"location": "Dock 4"},
				IdempotencyKey: "fire_u2:Fire:1",
			}

			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				ids = map[string]bool{}
			)
			for range 5 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					id, err := s.Create(ctx, in)
					assert.NoError(t, err)
					mu.Lock()
					ids[id] = true
					mu.Unlock()
				}()
			}
			wg.Wait()
			assert.Len(t, ids, 1)

			list, err := s.List(ctx, domain.DomainFire, "")
			require.NoError(t, err)
			assert.Len(t, list, 1)

			in.IdempotencyKey = "fire_u2:Fire:2"
			id2, err := s.Create(ctx, in)
			require.NoError(t, err)
			assert.False(t, ids[id2])
		})
	}
}

func TestCaseStore_StatusLifecycle(t *testing.T) {
	for name, s := range caseBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Create(ctx, domain.CaseInput{Domain: domain.DomainPolice, UserID: "u3"})
			require.NoError(t, err)

			require.NoError(t, s.SetStatus(ctx, id, domain.DomainPolice, domain.StatusInProgress))
			require.NoError(t, s.SetStatus(ctx, id, domain.DomainPolice, domain.StatusInProgress), "same status is a no-op")
			require.NoError(t, s.SetStatus(ctx, id, domain.DomainPolice, domain.StatusResolved))

			err = s.SetStatus(ctx, id, domain.DomainPolice, domain.StatusInProgress)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)

			err = s.SetStatus(ctx, id, domain.DomainPolice, "BOGUS")
			assert.Error(t, err)

			err = s.SetStatus(ctx, "missing", domain.DomainPolice, domain.StatusResolved)
			assert.ErrorIs(t, err, domain.ErrCaseNotFound)

			c, err := s.Get(ctx, id, domain.DomainPolice)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusResolved, c.Status)
		})
	}
}

func TestCaseStore_ListFilters(t *testing.T) {
	for name, s := range caseBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, _ := s.Create(ctx, domain.CaseInput{Domain: domain.DomainMedical, UserID: "x"})
			b, _ := s.Create(ctx, domain.CaseInput{Domain: domain.DomainMedical, UserID: "y"})
			_, _ = s.Create(ctx, domain.CaseInput{Domain: domain.DomainPolice, UserID: "z"})
			require.NoError(t, s.SetStatus(ctx, b, domain.DomainMedical, domain.StatusInProgress))

			all, err := s.List(ctx, domain.DomainMedical, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			open, err := s.List(ctx, domain.DomainMedical, domain.StatusNotAssigned)
			require.NoError(t, err)
			require.Len(t, open, 1)
			assert.Equal(t, a, open[0].ID)
		})
	}
}

// --- Notifications, triage reports, embedding cache ---

func TestNotificationStore(t *testing.T) {
	s := NewNotificationStore(testDB(t))
	ctx := context.Background()

	first, err := s.Add(ctx, domain.Notification{UserID: "u1", CaseID: "c1", Domain: domain.DomainFire, Title: "Case submitted", Body: "..."})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = s.Add(ctx, domain.Notification{UserID: "u1", CaseID: "c1", Title: "Status changed", Body: "..."})
	require.NoError(t, err)
	_, err = s.Add(ctx, domain.Notification{UserID: "other", Title: "x", Body: "y"})
	require.NoError(t, err)

	list, err := s.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Status changed", list[0].Title)

	found, err := s.MarkRead(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, found)

	unread, err := s.List(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Status changed", unread[0].Title)

	found, err = s.MarkRead(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNotificationStore_Approvals(t *testing.T) {
	s := NewNotificationStore(testDB(t))
	ctx := context.Background()

	update, err := s.Add(ctx, domain.Notification{UserID: "u1", CaseID: "c1", Domain: domain.DomainPolice, Title: "Police case in progress", Body: "..."})
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusUpdate, update.Kind)
	request, err := s.Add(ctx, domain.Notification{
		UserID: "u1", CaseID: "c1", Domain: domain.DomainPolice,
		Kind:  domain.NotificationResolutionRequest,
		Title: "Police case awaiting your confirmation", Body: "...",
	})
	require.NoError(t, err)

	count, err := s.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	pending, err := s.Pending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, request.ID, pending[0].ID)
	assert.Nil(t, pending[0].Approved)

	ok, err := s.SetApproval(ctx, update.ID, true)
	require.NoError(t, err)
	assert.False(t, ok, "status updates take no answer")

	ok, err = s.SetApproval(ctx, request.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SetApproval(ctx, request.ID, false)
	require.NoError(t, err)
	assert.False(t, ok, "the first answer stands")

	got, err := s.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationResolutionRequest, got.Kind)
	require.NotNil(t, got.Approved)
	assert.True(t, *got.Approved)
	assert.True(t, got.Read)
	assert.False(t, got.Pending())

	pending, err = s.Pending(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)
	count, err = s.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotificationNotFound)
}

func TestTriageReportStore(t *testing.T) {
	s := NewTriageReportStore(testDB(t))
	ctx := context.Background()

	_, err := s.Add(ctx, domain.TriageReport{UserID: "u1", EmergencyType: domain.DomainElectricity, UserQuery: "sparks"})
	require.NoError(t, err)
	_, err = s.Add(ctx, domain.TriageReport{UserID: "u1", EmergencyType: domain.DomainMedical, UserQuery: "fainted"})
	require.NoError(t, err)

	list, err := s.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.DomainElectricity, list[0].EmergencyType)
	assert.Equal(t, "fainted", list[1].UserQuery)
}

func TestEmbeddingCache(t *testing.T) {
	c := NewEmbeddingCache(testDB(t))
	ctx := context.Background()

	got, err := c.GetEmbeddings(ctx, "m", []string{"h1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.PutEmbeddings(ctx, "m", map[string][]float32{
		"h1": {0.25, -1, 3.5},
		"h2": {1},
	}))
	require.NoError(t, c.PutEmbeddings(ctx, "other", map[string][]float32{"h1": {9}}))

	got, err = c.GetEmbeddings(ctx, "m", []string{"h1", "h2", "h3"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{"h1": {0.25, -1, 3.5}, "h2": {1}}, got)

	n, err := c.Count(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 1e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Empty(t, decodeVector(nil))
}

// --- Backend selection ---

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	cs, err := OpenCheckpointStore(ctx, config.CheckpointConfig{Backend: "sqlite"}, db)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteCheckpointStore{}, cs)

	cs, err = OpenCheckpointStore(ctx, config.CheckpointConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryCheckpointStore{}, cs)

	_, err = OpenCheckpointStore(ctx, config.CheckpointConfig{Backend: "etcd"}, db)
	assert.Error(t, err)

	ks, err := OpenCaseStore(ctx, config.CasesConfig{Backend: ""}, db)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteCaseStore{}, ks)

	_, err = OpenCaseStore(ctx, config.CasesConfig{Backend: "oracle"}, db)
	assert.Error(t, err)
}
