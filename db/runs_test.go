package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacontract/indexer/models"
)

const testContract = "0x1234567890123456789012345678901234567890"

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "indexer.db")
}

func TestConnectMigrates(t *testing.T) {
	gdb, err := Connect(testDB(t), false)
	require.NoError(t, err)

	assert.True(t, gdb.Migrator().HasTable(&models.Run{}))
	assert.True(t, gdb.Migrator().HasTable(&models.Observation{}))
}

func TestRunLifecycle(t *testing.T) {
	gdb, err := Connect(testDB(t), false)
	require.NoError(t, err)

	runID, err := BeginRun(gdb, testContract, "mainnet", 1)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	outputs := map[string]string{"vault.owner": "00aa", "vault.total": "00bb"}
	obs := []models.Observation{
		{Seq: 0, Path: "vault", Kind: "struct", Step: 0},
		{Seq: 1, Path: "vault.owner", Kind: "primitive", Word: "00aa", Step: 1},
	}
	require.NoError(t, FinishRun(gdb, runID, 2, outputs, obs))

	run, err := GetRun(gdb, runID)
	require.NoError(t, err)
	assert.Equal(t, "done", run.Status)
	assert.Equal(t, 2, run.Steps)
	assert.Equal(t, testContract, run.Contract)
	assert.NotNil(t, run.FinishedAt)
	assert.NotEmpty(t, run.PublicULID)

	// Lookup by public ULID resolves the same run.
	same, err := GetRun(gdb, run.PublicULID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, same.ID)

	var count int64
	require.NoError(t, gdb.Model(&models.Observation{}).Where("run_id = ?", runID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestFailRun(t *testing.T) {
	gdb, err := Connect(testDB(t), false)
	require.NoError(t, err)

	runID, err := BeginRun(gdb, testContract, "sepolia", 11155111)
	require.NoError(t, err)
	require.NoError(t, FailRun(gdb, runID, errors.New("step 2: read failed")))

	run, err := GetRun(gdb, runID)
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.Contains(t, run.Error, "read failed")
}

func TestFinishUnknownRun(t *testing.T) {
	gdb, err := Connect(testDB(t), false)
	require.NoError(t, err)

	err = FinishRun(gdb, "no-such-run", 1, nil, nil)
	assert.Error(t, err)
}

func TestListRuns(t *testing.T) {
	gdb, err := Connect(testDB(t), false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := BeginRun(gdb, testContract, "mainnet", 1)
		require.NoError(t, err)
	}

	runs, err := ListRuns(gdb, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	all, err := ListRuns(gdb, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
