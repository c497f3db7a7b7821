package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/docquery/pkg/postgres"
)

func TestSelectQueryQuotesTable(t *testing.T) {
	q := selectQuery(`docs"; DROP TABLE x; --`)
	assert.Contains(t, q, `FROM "docs""; DROP TABLE x; --"`)
	assert.Contains(t, q, "COALESCE(site, '')")
	assert.Contains(t, q, "ORDER BY id")
}

func TestFetchUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(cfg).Fetch(ctx)
	assert.Error(t, err)
}

// TestFetchFromCatalog runs against a live database and is skipped when none
// is reachable.
func TestFetchFromCatalog(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := pkgpostgres.Open(ctx, cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	defer db.Close()

	cfg.Table = "docquery_test_documents_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	_, err = db.ExecContext(ctx, `CREATE TABLE `+pq.QuoteIdentifier(cfg.Table)+` (
		id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL, site TEXT, url TEXT, content TEXT
	)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Exec(`DROP TABLE ` + pq.QuoteIdentifier(cfg.Table))
	})

	_, err = db.ExecContext(ctx, `INSERT INTO `+pq.QuoteIdentifier(cfg.Table)+` (name, site, url, content) VALUES
		('report.docx', 'Finance', 'https://contoso/report.docx', 'body'),
		('notes.md', NULL, NULL, NULL),
		('plan.txt', 'Ops', 'https://contoso/plan.txt', '')`)
	require.NoError(t, err)

	cfg.Limit = 2
	got, err := New(cfg).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []document.Record{
		{Name: "report.docx", Site: "Finance", URL: "https://contoso/report.docx", Content: "body"},
		{Name: "notes.md"},
	}, got)

	cfg.Limit = 0
	got, err = New(cfg).Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func testConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "docquery_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "docquery"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		Table:           "documents",
		Limit:           100,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
