package configlibsql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.db")
	db, err := Struct{File: path}.OpenDB("create table if not exists things(id integer primary key)")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("insert into things(id) values (1)")
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRow("pragma journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
	require.FileExists(t, path)
}

func TestOpenDBInvalid(t *testing.T) {
	_, err := Struct{}.OpenDB("")
	require.Error(t, err)

	_, err = Struct{File: filepath.Join(t.TempDir(), "bad.db")}.OpenDB("this is not sql")
	require.Error(t, err)
}
