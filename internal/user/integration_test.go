// Integration tests against a real MySQL server started with testcontainers.
// They require Docker.
//
// Run with: go test -tags=integration ./internal/user/...
//
//go:build integration

package user

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/persist"
)

var manager *db.Manager

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := startMySQL(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start mysql: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if manager != nil {
		_ = manager.Close()
	}
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func startMySQL(ctx context.Context) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		WaitingFor:   wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(120 * time.Second),
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "querykit",
			"MYSQL_USER":          "test",
			"MYSQL_PASSWORD":      "test",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "3306")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, _ := strconv.Atoi(mappedPort.Port())

	cfg := db.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Database = "querykit"
	cfg.Username = "test"
	cfg.Password = "test"
	cfg.Logging.Level = "silent"

	deadline := time.Now().Add(30 * time.Second)
	for {
		manager, err = db.NewManager(cfg)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := manager.AutoMigrate(ctx, &User{}); err != nil {
		container.Terminate(ctx)
		return nil, err
	}
	return container, nil
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := manager.Sqlx().Exec("TRUNCATE TABLE users")
	require.NoError(t, err)
}

func newRepository() (*Repository, *db.Session) {
	session := manager.NewSession()
	return NewRepository(session, persist.NewSaver(session)), session
}

func TestIntegrationSaveAndFind(t *testing.T) {
	truncate(t)
	repo, _ := newRepository()
	ctx := context.Background()

	u := New("ada", "ada@example.com", "secret")
	u.FirstName, u.LastName = "Ada", "Lovelace"

	_, err := repo.Save(ctx, u)
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	require.NotNil(t, u.CreatedAt)

	found, ok, err := repo.FindByUsername(ctx, "ada")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID, found.ID)
	assert.Equal(t, "Ada Lovelace", found.FullName())
	assert.Nil(t, found.UpdatedAt)

	u.Role = RoleAdmin
	_, err = repo.Save(ctx, u)
	require.NoError(t, err)

	found, ok, err = repo.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RoleAdmin, found.Role)
	assert.NotNil(t, found.UpdatedAt)

	n, err := repo.Count(ctx, repo.NewRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIntegrationFiltersAndPaging(t *testing.T) {
	truncate(t)
	repo, _ := newRepository()
	ctx := context.Background()

	batch := []*User{
		New("alice", "alice@example.com", "x"),
		New("bob", "bob@example.com", "x"),
		New("carol", "carol@example.com", "x"),
		New("dave", "dave@example.com", "x"),
	}
	batch[3].Active = false
	batch[2].Role = RoleManager

	saved, err := repo.SaveAll(ctx, batch)
	require.NoError(t, err)
	require.Len(t, saved, 4)

	active, err := repo.FindByRole(ctx, RoleUser)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alice", active[0].Username)
	assert.Equal(t, "bob", active[1].Username)

	byIDs, err := repo.Find(ctx, repo.NewRequest().IDs(saved[0].ID, saved[3].ID))
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	searched, err := repo.Find(ctx, repo.NewRequest().Search("aro"))
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, "carol", searched[0].Username)

	page, err := repo.FindPage(ctx, repo.NewRequest().Active(true), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages())
	assert.Equal(t, 1, page.NumberOfElements())
	assert.False(t, page.HasNext())
}

func TestIntegrationDuplicateUsername(t *testing.T) {
	truncate(t)
	repo, _ := newRepository()
	ctx := context.Background()

	_, err := repo.Save(ctx, New("ada", "ada@example.com", "x"))
	require.NoError(t, err)

	_, err = repo.Save(ctx, New("ada", "other@example.com", "x"))
	require.Error(t, err)
	assert.True(t, persist.IsDuplicate(err))
	assert.True(t, persist.IsSaveError(err))
}

func TestIntegrationTransactionRollback(t *testing.T) {
	truncate(t)
	repo, session := newRepository()
	ctx := context.Background()

	rollback := errors.New("abort")
	err := session.Transaction(ctx, func(*db.Session) error {
		if _, err := repo.Save(ctx, New("ghost", "ghost@example.com", "x")); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	_, ok, err := repo.FindByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := session.Metrics().Snapshot()
	assert.GreaterOrEqual(t, snap.TxRolledBack, uint64(1))
}
