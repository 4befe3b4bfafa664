package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

// Storage layout inside the history directory.
const (
	// LockFileName exists only while a process holds the directory lock
	// and contains the holder's PID as diagnostic text.
	LockFileName = ".gp-cmdline-chatgpt.lock"

	// StateFileName records the active session id across invocations.
	StateFileName = ".state.json"

	logFileSuffix = ".jsonlines"
)

// state is the persisted active-session pointer.
type state struct {
	ActiveChatID int64 `json:"active_chat_id"`
}

// Options configures Open.
type Options struct {
	// Dir is the storage directory. Created if missing.
	Dir string

	// StartNew forces a fresh session id instead of resuming the pointer.
	StartNew bool

	// ResumeID, when non-zero, selects a specific session id. Takes
	// precedence over both StartNew and the pointer file.
	ResumeID int64

	// SystemPrompt seeds the first message of a brand-new session.
	SystemPrompt string
}

// Store owns one session for the duration of a scoped operation: it holds the
// directory lock, the loaded history and the buffered new messages. New
// messages only reach disk through Commit; Close releases the lock without
// persisting anything.
type Store struct {
	dir      string
	id       int64
	lock     *flock.Flock
	history  []Message
	buffered []Message
	closed   bool
}

// Open acquires the directory lock, resolves the working session id and loads
// any existing history. If another process holds the lock it fails
// immediately with ErrSessionLocked; it never waits.
func Open(opts Options) (*Store, error) {
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	lock, err := acquireLock(opts.Dir)
	if err != nil {
		return nil, err
	}

	s := &Store{dir: opts.Dir, lock: lock}

	id, err := s.resolveID(opts)
	if err != nil {
		_ = s.releaseLock()
		return nil, err
	}
	s.id = id

	logPath := s.logPath()
	if _, err := os.Stat(logPath); err == nil {
		history, err := readLog(logPath)
		if err != nil {
			_ = s.releaseLock()
			return nil, err
		}
		s.history = history
	} else if errors.Is(err, os.ErrNotExist) {
		// Brand-new session: the first turn is always the configured
		// system prompt.
		s.buffered = []Message{{Role: RoleSystem, Content: opts.SystemPrompt}}
	} else {
		_ = s.releaseLock()
		return nil, fmt.Errorf("stat session log: %w", err)
	}

	log.Debug().
		Int64("session_id", s.id).
		Int("history", len(s.history)).
		Str("dir", s.dir).
		Msg("Session store opened")

	return s, nil
}

// acquireLock takes a non-blocking exclusive flock on the lock file and
// writes the holder's PID into it.
func acquireLock(dir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dir, LockFileName))

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !locked {
		return nil, ErrSessionLocked
	}

	// PID is diagnostic only; the flock is what provides exclusion.
	if err := os.WriteFile(lock.Path(), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return lock, nil
}

func (s *Store) resolveID(opts Options) (int64, error) {
	if opts.ResumeID > 0 {
		return opts.ResumeID, nil
	}
	if opts.StartNew {
		return time.Now().Unix(), nil
	}

	statePath := filepath.Join(s.dir, StateFileName)
	data, err := os.ReadFile(statePath)
	if errors.Is(err, os.ErrNotExist) {
		return time.Now().Unix(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("read state file: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, fmt.Errorf("parse state file %s: %w", statePath, err)
	}
	return st.ActiveChatID, nil
}

func (s *Store) logPath() string {
	return filepath.Join(s.dir, strconv.FormatInt(s.id, 10)+logFileSuffix)
}

// readLog parses a session log file, one JSON message per line, preserving
// file order. Any line that fails to parse is fatal.
func readLog(path string) ([]Message, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer file.Close()

	var messages []Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			return nil, &CorruptHistoryError{Path: path, Line: line, Err: errors.New("blank line")}
		}

		var msg Message
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return nil, &CorruptHistoryError{Path: path, Line: line, Err: err}
		}
		messages = append(messages, msg)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}
	return messages, nil
}

// ID returns the working session id.
func (s *Store) ID() int64 {
	return s.id
}

// Messages returns the loaded history followed by the buffered new messages,
// in conversation order. The returned slice is a copy.
func (s *Store) Messages() []Message {
	out := make([]Message, 0, len(s.history)+len(s.buffered))
	out = append(out, s.history...)
	out = append(out, s.buffered...)
	return out
}

// AddUserMessage buffers a user-role message.
func (s *Store) AddUserMessage(text string) {
	s.Add(NewUserMessage(text))
}

// Add buffers a pre-built message, preserving all of its fields. Used for
// assistant replies so provider-specific fields survive into later turns.
func (s *Store) Add(msg Message) {
	s.buffered = append(s.buffered, msg)
}

// Commit durably persists the exchange: it overwrites the active-session
// pointer with the current id, then appends every buffered message to the
// session log as one JSON line each. Existing log content is never rewritten.
// Steps run in order and the first failure propagates; completed steps are
// not rolled back.
func (s *Store) Commit() error {
	if s.closed {
		return errors.New("session store is closed")
	}

	data, err := json.Marshal(state{ActiveChatID: s.id})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, StateFileName), data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if len(s.buffered) == 0 {
		return nil
	}

	file, err := os.OpenFile(s.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer file.Close()

	for _, msg := range s.buffered {
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append to session log: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync session log: %w", err)
	}

	s.history = append(s.history, s.buffered...)
	s.buffered = nil

	log.Debug().Int64("session_id", s.id).Msg("Session committed")
	return nil
}

// Close releases the directory lock and removes the lock file. It runs on
// every exit path; calling it again is a no-op. Buffered messages that were
// never committed are discarded.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.releaseLock()
}

func (s *Store) releaseLock() error {
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("release session lock: %w", err)
	}
	if err := os.Remove(s.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Info summarizes one stored session.
type Info struct {
	ID        int64
	Messages  int
	UpdatedAt time.Time
}

// List returns a summary of every session log in dir, oldest id first. It
// takes the same directory lock as Open, so it cannot race a live exchange.
// A missing directory yields an empty list.
func List(dir string) ([]Info, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, logFileSuffix), 10, 64)
		if err != nil {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat session log: %w", err)
		}
		count, err := countLines(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{ID: id, Messages: count, UpdatedAt: fi.ModTime()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func countLines(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open session log: %w", err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read session log: %w", err)
	}
	return count, nil
}
