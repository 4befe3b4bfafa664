package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dir string, opts Options) *Store {
	t.Helper()
	opts.Dir = dir
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = "You are a helpful assistant."
	}
	st, err := Open(opts)
	require.NoError(t, err)
	return st
}

func TestOpen_NewSessionSeedsSystemPrompt(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{StartNew: true, SystemPrompt: "S"})
	defer st.Close()

	msgs := st.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "S", msgs[0].Content)
	assert.Positive(t, st.ID())
}

func TestOpen_CreatesHistoryDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "history")

	st := openTestStore(t, dir, Options{StartNew: true})
	defer st.Close()

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestOpen_LockExclusivity(t *testing.T) {
	dir := t.TempDir()

	first := openTestStore(t, dir, Options{StartNew: true})

	// A second open on the same directory must fail fast, not block.
	_, err := Open(Options{Dir: dir, StartNew: true, SystemPrompt: "S"})
	require.ErrorIs(t, err, ErrSessionLocked)

	// The holder's PID is written for diagnostics.
	data, err := os.ReadFile(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, first.Close())

	// Lock file is gone and the directory can be opened again.
	_, err = os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))

	second := openTestStore(t, dir, Options{StartNew: true})
	assert.NoError(t, second.Close())
}

func TestStore_CommitPersistsPointerAndLog(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{SystemPrompt: "S"})
	id := st.ID()
	st.AddUserMessage("hi")
	require.NoError(t, st.Commit())
	require.NoError(t, st.Close())

	// Pointer records the session id.
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"active_chat_id":`+strconv.FormatInt(id, 10)+`}`, string(data))

	// Log holds the seeded system message then the user turn.
	lines := readLogLines(t, dir, id)
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"role":"system","content":"S"}`, lines[0])
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, lines[1])

	// A later open without StartNew resumes the same session.
	reopened := openTestStore(t, dir, Options{})
	defer reopened.Close()
	assert.Equal(t, id, reopened.ID())
	assert.Len(t, reopened.Messages(), 2)
}

func TestStore_HistoryRoundTripPreservesExtraFields(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{SystemPrompt: "S"})
	id := st.ID()
	st.AddUserMessage("hi")
	st.Add(Message{
		Role:    RoleAssistant,
		Content: "hello",
		Extra: map[string]json.RawMessage{
			"refusal":     json.RawMessage(`null`),
			"annotations": json.RawMessage(`[{"kind":"citation"}]`),
		},
	})
	require.NoError(t, st.Commit())
	require.NoError(t, st.Close())

	reopened := openTestStore(t, dir, Options{ResumeID: id})
	defer reopened.Close()

	msgs := reopened.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "S"},
		{Role: RoleUser, Content: "hi"},
		{
			Role:    RoleAssistant,
			Content: "hello",
			Extra: map[string]json.RawMessage{
				"refusal":     json.RawMessage(`null`),
				"annotations": json.RawMessage(`[{"kind":"citation"}]`),
			},
		},
	}, msgs)
}

func TestStore_CloseWithoutCommitPersistsNothing(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{SystemPrompt: "S"})
	id := st.ID()
	st.AddUserMessage("hi")
	require.NoError(t, st.Close())

	_, err := os.Stat(filepath.Join(dir, StateFileName))
	assert.True(t, os.IsNotExist(err), "pointer must not be written")
	_, err = os.Stat(filepath.Join(dir, strconv.FormatInt(id, 10)+".jsonlines"))
	assert.True(t, os.IsNotExist(err), "log must not be written")
}

func TestStore_CommitOnlyAppends(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{SystemPrompt: "S"})
	id := st.ID()
	st.AddUserMessage("first")
	require.NoError(t, st.Commit())
	require.NoError(t, st.Close())

	before, err := os.ReadFile(filepath.Join(dir, strconv.FormatInt(id, 10)+".jsonlines"))
	require.NoError(t, err)

	st = openTestStore(t, dir, Options{})
	st.AddUserMessage("second")
	require.NoError(t, st.Commit())
	require.NoError(t, st.Close())

	after, err := os.ReadFile(filepath.Join(dir, strconv.FormatInt(id, 10)+".jsonlines"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(after), string(before)),
		"existing log content must never be rewritten")
	assert.Len(t, strings.Split(strings.TrimRight(string(after), "\n"), "\n"), 3)
}

func TestStore_ResumeByIDOverridesPointer(t *testing.T) {
	dir := t.TempDir()

	first := openTestStore(t, dir, Options{ResumeID: 100, SystemPrompt: "S"})
	first.AddUserMessage("in first")
	require.NoError(t, first.Commit())
	require.NoError(t, first.Close())

	second := openTestStore(t, dir, Options{ResumeID: 200, SystemPrompt: "S"})
	second.AddUserMessage("in second")
	require.NoError(t, second.Commit())
	require.NoError(t, second.Close())

	// Pointer now names session 200, but an explicit id wins.
	resumed := openTestStore(t, dir, Options{ResumeID: 100})
	defer resumed.Close()
	assert.Equal(t, int64(100), resumed.ID())

	msgs := resumed.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "in first", msgs[1].Content)
}

func TestOpen_CorruptHistoryIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{"broken json", `{"role":"system","content":"S"}` + "\n" + `{"role":`, 2},
		{"blank line", `{"role":"system","content":"S"}` + "\n\n" + `{"role":"user","content":"x"}`, 2},
		{"not an object", `[1,2,3]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "42.jsonlines")
			require.NoError(t, os.WriteFile(path, []byte(tt.content+"\n"), 0o600))

			_, err := Open(Options{Dir: dir, ResumeID: 42, SystemPrompt: "S"})
			var corrupt *CorruptHistoryError
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, path, corrupt.Path)
			assert.Equal(t, tt.line, corrupt.Line)

			// The failed open must not leave the directory locked.
			_, err = os.Stat(filepath.Join(dir, LockFileName))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{StartNew: true})
	require.NoError(t, st.Close())
	assert.NoError(t, st.Close())
}

func TestStore_CommitAfterCloseFails(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{StartNew: true})
	require.NoError(t, st.Close())
	assert.Error(t, st.Commit())
}

func TestList(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing directory", func(t *testing.T) {
		infos, err := List(filepath.Join(dir, "nope"))
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	for _, id := range []int64{300, 100, 200} {
		st := openTestStore(t, dir, Options{ResumeID: id, SystemPrompt: "S"})
		st.AddUserMessage("hi")
		require.NoError(t, st.Commit())
		require.NoError(t, st.Close())
	}

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, int64(100), infos[0].ID)
	assert.Equal(t, int64(200), infos[1].ID)
	assert.Equal(t, int64(300), infos[2].ID)
	for _, info := range infos {
		assert.Equal(t, 2, info.Messages)
		assert.False(t, info.UpdatedAt.IsZero())
	}
}

func TestList_FailsWhileLocked(t *testing.T) {
	dir := t.TempDir()

	st := openTestStore(t, dir, Options{StartNew: true})
	defer st.Close()

	_, err := List(dir)
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func readLogLines(t *testing.T, dir string, id int64) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, strconv.FormatInt(id, 10)+".jsonlines"))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}
