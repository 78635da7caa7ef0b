// Package db implements the bot's single-file persistent database.
//
// The file starts with a fixed 24-byte superblock (magic, version, flags,
// timestamp) followed by the tagged payloads of each subsystem: twitch
// data, discord data, the command interpreter state, and the markov model.
// Snapshots are written to a ".new" shadow file and committed with a
// rename, so the primary file is never left half-written.
package db

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"src.ikura.sh/pkg/interp"
	"src.ikura.sh/pkg/logutil"
	"src.ikura.sh/pkg/markov"
	"src.ikura.sh/pkg/serial"
)

var logger = logutil.GetLogger("[db] ")

const (
	Magic   = "ikura_db"
	Version = 1

	// How often the background syncer snapshots the database.
	SyncInterval = 60 * time.Second

	superblockSize = 24
)

// ErrNoDatabase is returned by Load when the file does not exist and
// creation was not requested.
var ErrNoDatabase = errors.New("database file does not exist")

// Database is the in-memory form of the database file.
type Database struct {
	Version   uint32
	Flags     uint32
	Timestamp uint64 // milliseconds, set at serialization time

	Twitch  TwitchData
	Discord DiscordData
}

func newDatabase() *Database {
	return &Database{
		Version: Version,
		Twitch:  TwitchData{Channels: make(map[string]TwitchChannel)},
		Discord: DiscordData{Users: make(map[string]DiscordUser)},
	}
}

// Store owns the live Database behind a readers-writer lock, together with
// the interpreter and markov handles whose state is persisted alongside it.
type Store struct {
	mu sync.RWMutex
	db *Database

	path string
	file *os.File // held open for the file lock

	interp *interp.Interp
	markov *markov.DB

	syncStop chan struct{}
	syncDone chan struct{}
}

func millis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Load opens the database at path. A missing file is an error unless
// create is set, in which case a fresh database is written first. On any
// decode error the returned error describes the failure and neither the
// interpreter nor the markov handle is touched.
func Load(path string, create bool, itp *interp.Interp, mk *markov.DB) (*Store, error) {
	s := &Store{path: path, interp: itp, markov: mk}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if !create {
			return nil, ErrNoDatabase
		}
		logger.Printf("creating new database %q", path)
		s.db = newDatabase()
		if err := s.Sync(); err != nil {
			return nil, err
		}
	} else if create {
		logger.Printf("database %q exists, ignoring create flag", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read database: %w", err)
	}
	db, interpState, err := decode(data, mk)
	if err != nil {
		return nil, err
	}
	s.db = db
	itp.Replace(interpState)

	if err := s.lockFile(); err != nil {
		return nil, err
	}
	logger.Printf("database loaded (%d bytes)", len(data))
	return s, nil
}

// decode parses a whole database image. The markov model is installed into
// mk only when the entire image decodes.
func decode(data []byte, mk *markov.DB) (*Database, *interp.State, error) {
	if len(data) < superblockSize {
		return nil, nil, fmt.Errorf("database truncated (%d bytes)", len(data))
	}
	r := serial.NewReader(data)
	sb, _ := r.Raw(superblockSize)

	if string(sb[:8]) != Magic {
		return nil, nil, fmt.Errorf("invalid database identifier (expected %q, got %q)",
			Magic, string(sb[:8]))
	}
	db := &Database{}
	db.Version = leU32(sb[8:12])
	db.Flags = leU32(sb[12:16])
	db.Timestamp = leU64(sb[16:24])
	if db.Version != Version {
		return nil, nil, fmt.Errorf("invalid database version %d (expected %d)", db.Version, Version)
	}

	var err error
	if db.Twitch, err = readTwitchData(r); err != nil {
		return nil, nil, fmt.Errorf("failed to read twitch data: %w", err)
	}
	if db.Discord, err = readDiscordData(r); err != nil {
		return nil, nil, fmt.Errorf("failed to read discord data: %w", err)
	}
	interpState, err := interp.ReadState(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read command interpreter state: %w", err)
	}
	if err := mk.LoadFrom(r); err != nil {
		return nil, nil, fmt.Errorf("failed to read markov data: %w", err)
	}
	return db, interpState, nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	return uint64(leU32(b[0:4])) | uint64(leU32(b[4:8]))<<32
}

func putLEU32(b []byte, x uint32) {
	b[0], b[1], b[2], b[3] = byte(x), byte(x>>8), byte(x>>16), byte(x>>24)
}

func putLEU64(b []byte, x uint64) {
	putLEU32(b[0:4], uint32(x))
	putLEU32(b[4:8], uint32(x>>32))
}

// PerformRead runs f with the database under the read lock.
func (s *Store) PerformRead(f func(db *Database)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(s.db)
}

// PerformWrite runs f with the database under the exclusive lock.
func (s *Store) PerformWrite(f func(db *Database)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.db)
}

// encode serializes the whole database. Callers hold at least the read
// lock.
func (s *Store) encode() []byte {
	w := serial.NewWriter()

	var sb [superblockSize]byte
	copy(sb[:8], Magic)
	putLEU32(sb[8:12], s.db.Version)
	putLEU32(sb[12:16], s.db.Flags)
	putLEU64(sb[16:24], millis())
	w.Raw(sb[:])

	s.db.Twitch.serialize(w)
	s.db.Discord.serialize(w)
	s.interp.Read(func(st *interp.State) { st.Serialize(w) })
	s.markov.Serialize(w)
	return w.Bytes()
}

// Sync snapshots the database: the encoding goes to "<path>.new" and the
// rename onto the primary file is the commit point. Errors are logged and
// returned; the live state is unaffected either way.
func (s *Store) Sync() error {
	s.mu.RLock()
	data := s.encode()
	s.mu.RUnlock()

	shadow := s.path + ".new"
	file, err := os.OpenFile(shadow, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		logger.Printf("sync: cannot open %q: %v", shadow, err)
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		logger.Printf("sync: write failed: %v", err)
		return err
	}
	if err := file.Close(); err != nil {
		logger.Printf("sync: close failed: %v", err)
		return err
	}
	if err := os.Rename(shadow, s.path); err != nil {
		logger.Printf("sync: rename failed: %v", err)
		return err
	}
	return nil
}

// StartSyncer begins snapshotting the database every interval until Close.
func (s *Store) StartSyncer(interval time.Duration) {
	if s.syncStop != nil {
		return
	}
	s.syncStop = make(chan struct{})
	s.syncDone = make(chan struct{})
	go func() {
		defer close(s.syncDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// A failed cycle is retried on the next tick.
				s.Sync()
			case <-s.syncStop:
				return
			}
		}
	}()
}

// Close stops the background syncer, writes a final snapshot, and releases
// the file lock.
func (s *Store) Close() error {
	if s.syncStop != nil {
		close(s.syncStop)
		<-s.syncDone
		s.syncStop = nil
	}
	err := s.Sync()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	return err
}
