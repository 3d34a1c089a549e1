// Package journal keeps the local decision record on disk.
package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/AegisSentinel/internal/domain"
	"github.com/ghalamif/AegisSentinel/internal/ports"
)

// entry layout: [8 id][4 length][4 crc32(body)][body json]
const (
	headerLen = 16

	// maxEntryLen bounds a single incident body; a larger length in a header
	// means the header itself is damaged.
	maxEntryLen = 1 << 20
)

var ErrCorrupt = errors.New("journal: corrupt entry")

// FileJournal is an append-only log of incidents plus a small metadata file
// holding the id of the last entry delivered to every sink.
type FileJournal struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	sync      func() error
	lastID    ports.JournalEntryID
	reported  ports.JournalEntryID
	sizeBytes int64
}

var _ ports.Journal = (*FileJournal)(nil)

func Open(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "decisions.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	j := &FileJournal{
		path:     path,
		metaPath: filepath.Join(dir, "decisions.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 64<<10),
		sync:     f.Sync,
	}
	if err := j.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return j, nil
}

// recover finds the last complete entry, drops any torn tail left by a crash
// and reloads the reported watermark.
func (j *FileJournal) recover() error {
	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	r := bufio.NewReader(rf)
	var good int64
	for {
		id, body, err := readEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorrupt) {
				break
			}
			return fmt.Errorf("journal scan: %w", err)
		}
		good += int64(headerLen + len(body))
		j.lastID = id
	}
	if err := j.file.Truncate(good); err != nil {
		return err
	}
	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	j.sizeBytes = good

	if err := j.loadMeta(); err != nil {
		return err
	}
	if j.reported > j.lastID {
		j.reported = j.lastID
	}
	return nil
}

func (j *FileJournal) loadMeta() error {
	data, err := os.ReadFile(j.metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("journal meta parse: %w", err)
	}
	j.reported = ports.JournalEntryID(u)
	return nil
}

// Append writes one incident and fsyncs the log. A decision is on disk once
// Append returns without error.
func (j *FileJournal) Append(inc *domain.Incident) (ports.JournalEntryID, error) {
	body, err := json.Marshal(inc)
	if err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.lastID + 1
	var hdr [headerLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(body))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := j.writer.Write(body); err != nil {
		return 0, err
	}
	if err := j.writer.Flush(); err != nil {
		return 0, err
	}
	// The bytes are in the file now; the id is spent even if the sync fails.
	j.lastID = id
	j.sizeBytes += int64(headerLen + len(body))
	if err := j.sync(); err != nil {
		return 0, fmt.Errorf("journal sync: %w", err)
	}
	return id, nil
}

// Iterate calls fn for every entry with id >= from, in order.
func (j *FileJournal) Iterate(from ports.JournalEntryID, fn func(id ports.JournalEntryID, inc *domain.Incident) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		id, body, err := readEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if id < from {
			continue
		}
		var inc domain.Incident
		if err := json.Unmarshal(body, &inc); err != nil {
			return fmt.Errorf("%w: id %d: %v", ErrCorrupt, id, err)
		}
		if err := fn(id, &inc); err != nil {
			return err
		}
	}
}

// Commit marks every entry up to and including upto as reported.
func (j *FileJournal) Commit(upto ports.JournalEntryID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if upto <= j.reported {
		return nil
	}
	if upto > j.lastID {
		upto = j.lastID
	}
	if err := j.sync(); err != nil {
		return fmt.Errorf("journal sync: %w", err)
	}
	if err := writeMeta(j.metaPath, upto); err != nil {
		return err
	}
	j.reported = upto
	return nil
}

// writeMeta replaces the watermark file atomically: temp file, fsync, rename.
func writeMeta(path string, reported ports.JournalEntryID) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", reported); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		OldestUnreported: j.reported + 1,
		LatestAppended:   j.lastID,
		SizeBytes:        j.sizeBytes,
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	flushErr := j.writer.Flush()
	syncErr := j.sync()
	closeErr := j.file.Close()
	j.file = nil
	return errors.Join(flushErr, syncErr, closeErr)
}

func readEntry(r *bufio.Reader) (ports.JournalEntryID, []byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	length := binary.BigEndian.Uint32(hdr[8:12])
	sum := binary.BigEndian.Uint32(hdr[12:16])
	if length > maxEntryLen {
		return 0, nil, fmt.Errorf("%w: id %d length %d", ErrCorrupt, id, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	if crc32.ChecksumIEEE(body) != sum {
		return 0, nil, fmt.Errorf("%w: id %d checksum mismatch", ErrCorrupt, id)
	}
	return id, body, nil
}

// Scan reads the journal in dir without opening it for writing, so it is safe
// next to a running engine. fn may be nil; a torn tail ends the scan.
func Scan(dir string, from ports.JournalEntryID, fn func(id ports.JournalEntryID, inc *domain.Incident) error) (ports.JournalStats, error) {
	j := &FileJournal{path: filepath.Join(dir, "decisions.log"), metaPath: filepath.Join(dir, "decisions.meta")}
	if err := j.loadMeta(); err != nil {
		return ports.JournalStats{}, err
	}
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return ports.JournalStats{OldestUnreported: j.reported + 1}, nil
	}
	if err != nil {
		return ports.JournalStats{}, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		id, body, err := readEntry(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorrupt) {
				break
			}
			return ports.JournalStats{}, err
		}
		j.lastID = id
		j.sizeBytes += int64(headerLen + len(body))
		if fn == nil || id < from {
			continue
		}
		var inc domain.Incident
		if err := json.Unmarshal(body, &inc); err != nil {
			return ports.JournalStats{}, fmt.Errorf("%w: id %d: %v", ErrCorrupt, id, err)
		}
		if err := fn(id, &inc); err != nil {
			return ports.JournalStats{}, err
		}
	}
	return ports.JournalStats{
		OldestUnreported: min(j.reported, j.lastID) + 1,
		LatestAppended:   j.lastID,
		SizeBytes:        j.sizeBytes,
	}, nil
}
