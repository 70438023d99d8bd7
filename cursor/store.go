package cursor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store reads and writes the cursor file. There must be only one writer per file.
type Store struct {
	filename string
}

func NewStore(filename string) *Store {
	return &Store{
		filename: filename,
	}
}

func (s *Store) Filename() string {
	return s.filename
}

// Load returns the saved cursor. A missing file is not an error: the
// synchronization starts from the first UID.
func (s *Store) Load() (Cursor, error) {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return New(), fmt.Errorf("cannot read cursor file: %w", err)
	}
	return Parse(string(data))
}

// Save writes the cursor to a temporary file then renames it over the
// previous one, so a crash never leaves a torn value behind.
func (s *Store) Save(c Cursor) error {
	dir := filepath.Dir(s.filename)
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return fmt.Errorf("cannot create cursor directory: %w", err)
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(s.filename)+".*")
	if err != nil {
		return fmt.Errorf("cannot save cursor: %w", err)
	}
	tempName := file.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tempName)
	}()

	_, err = file.WriteString(Format(c))
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("cannot write cursor: %w", err)
	}
	err = os.Rename(tempName, s.filename)
	if err != nil {
		return fmt.Errorf("cannot replace cursor file: %w", err)
	}
	return nil
}

// Format returns the content of a cursor file
func Format(c Cursor) string {
	return strconv.FormatUint(uint64(c.LastSeenUID), 10) + ":" + strconv.FormatUint(uint64(c.UIDValidity), 10) + "\n"
}

// Parse reads "<last_seen_uid>:<uidvalidity>". A single number is accepted
// as the last seen UID of an unknown epoch.
func Parse(content string) (Cursor, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return New(), nil
	}
	uidPart, validityPart, hasValidity := strings.Cut(content, ":")
	lastSeen, err := strconv.ParseUint(uidPart, 10, 32)
	if err != nil {
		return New(), fmt.Errorf("invalid last seen UID %q: %w", uidPart, err)
	}
	c := Cursor{LastSeenUID: uint32(lastSeen)}
	if c.LastSeenUID < FirstUID {
		c.LastSeenUID = FirstUID
	}
	if hasValidity {
		validity, err := strconv.ParseUint(validityPart, 10, 32)
		if err != nil {
			return New(), fmt.Errorf("invalid UIDVALIDITY %q: %w", validityPart, err)
		}
		c.UIDValidity = uint32(validity)
	}
	return c, nil
}
