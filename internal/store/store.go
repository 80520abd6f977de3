// ABOUTME: Audio clip store: PCM files on disk plus an optional SQLite index
// ABOUTME: Clips are written to a temp file and renamed into place before being indexed
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BuffMcBigHuge/audio-chat/internal/config"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio"
	"github.com/BuffMcBigHuge/audio-chat/pkg/audio/mediatype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

const (
	// Extension is the suffix of stored clip files
	Extension = ".pcm"

	// formatExtension names the sidecar holding a non-default clip format
	formatExtension = ".format"
)

var (
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	tracer    = otel.Tracer("github.com/BuffMcBigHuge/audio-chat/store")
)

// Clip describes one stored payload
type Clip struct {
	ID             string
	UserID         string
	ConversationID string
	Format         audio.Format
	Size           int64
	CreatedAt      time.Time
}

// Filename is the on-disk and URL name of the clip
func (c Clip) Filename() string {
	return c.ID + Extension
}

// Duration is the play time of the stored payload
func (c Clip) Duration() time.Duration {
	f := c.Format.OrDefault()
	return f.Duration(f.Frames(int(c.Size)))
}

// Store keeps clips under Root/<user>/<conversation>/<id>.pcm
type Store struct {
	root  string
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open prepares the root directory and, when IndexPath is set, the SQLite index
func Open(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create audio root: %w", err)
	}

	s := &Store{root: cfg.Root, log: log, clock: time.Now}
	if cfg.IndexPath == "" {
		log.Info("clip index disabled, serving from directory scan", slog.String("root", cfg.Root))
		return s, nil
	}

	dir := filepath.Dir(cfg.IndexPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.IndexPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Info("clip index opened", slog.String("path", cfg.IndexPath), slog.String("root", cfg.Root))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    user_id TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY(user_id, conversation_id)
);
CREATE TABLE IF NOT EXISTS clips (
    clip_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    sample_rate INTEGER NOT NULL,
    channels INTEGER NOT NULL,
    bit_depth INTEGER NOT NULL,
    size INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(user_id, conversation_id) REFERENCES conversations(user_id, conversation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_clips_conversation ON clips(user_id, conversation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the index
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Root returns the directory clips are stored under
func (s *Store) Root() string {
	return s.root
}

// Indexed reports whether a SQLite index backs the store
func (s *Store) Indexed() bool {
	return s.db != nil
}

// Put stores payload as a new clip. It returns once the file is complete on disk.
func (s *Store) Put(ctx context.Context, userID, conversationID string, payload []byte, format audio.Format) (Clip, error) {
	ctx, span := tracer.Start(ctx, "store.Put", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("conversation.id", conversationID),
		attribute.Int("payload.bytes", len(payload)),
	))
	defer span.End()

	clip, err := s.put(ctx, userID, conversationID, payload, format)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Clip{}, err
	}
	span.SetAttributes(attribute.String("clip.id", clip.ID))
	return clip, nil
}

func (s *Store) put(ctx context.Context, userID, conversationID string, payload []byte, format audio.Format) (Clip, error) {
	if err := ValidateIDs(userID, conversationID); err != nil {
		return Clip{}, err
	}
	format = format.OrDefault()
	if err := audio.ValidatePayload(format, payload); err != nil {
		return Clip{}, err
	}

	dir := s.conversationDir(userID, conversationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Clip{}, fmt.Errorf("create conversation dir: %w", err)
	}

	clip := Clip{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Format:         format,
		Size:           int64(len(payload)),
		CreatedAt:      s.clock().UTC(),
	}
	final := filepath.Join(dir, clip.Filename())

	// The sidecar is published first so a visible clip never reads as the default format
	sidecar := filepath.Join(dir, clip.ID+formatExtension)
	if format != audio.DefaultFormat {
		if err := writeFile(dir, sidecar, []byte(mediatype.MimeType(format))); err != nil {
			return Clip{}, err
		}
	}

	if err := writeFile(dir, final, payload); err != nil {
		os.Remove(sidecar)
		return Clip{}, err
	}

	if err := s.index(ctx, clip); err != nil {
		os.Remove(final)
		os.Remove(sidecar)
		return Clip{}, fmt.Errorf("index clip: %w", err)
	}

	s.log.Debug("clip stored",
		slog.String("user", userID),
		slog.String("conversation", conversationID),
		slog.String("clip", clip.ID),
		slog.Int64("bytes", clip.Size),
		slog.Duration("duration", clip.Duration()))
	return clip, nil
}

func writeFile(dir, final string, payload []byte) (err error) {
	tmp, err := os.CreateTemp(dir, ".clip-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write clip: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync clip: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close clip: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod clip: %w", err)
	}
	if err = os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("publish clip: %w", err)
	}
	return nil
}

func (s *Store) index(ctx context.Context, c Clip) (err error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	created := c.CreatedAt.UnixNano()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO conversations(user_id, conversation_id, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(user_id, conversation_id) DO NOTHING`,
		c.UserID, c.ConversationID, created); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO clips(clip_id, user_id, conversation_id, sample_rate, channels, bit_depth, size, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.ConversationID, c.Format.SampleRate, c.Format.Channels, c.Format.BitDepth, c.Size, created); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// Get returns the payload of a stored clip
func (s *Store) Get(ctx context.Context, userID, conversationID, clipID string) ([]byte, error) {
	f, _, err := s.Open(ctx, userID, conversationID, clipID)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat clip: %w", err)
	}
	data := make([]byte, st.Size())
	if _, err := f.ReadAt(data, 0); err != nil && st.Size() > 0 {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	return data, nil
}

// Open returns the clip file for range-capable serving along with its metadata.
// clipID may carry the .pcm extension. The caller closes the file.
func (s *Store) Open(ctx context.Context, userID, conversationID, clipID string) (*os.File, Clip, error) {
	clipID = strings.TrimSuffix(clipID, Extension)
	if err := ValidateIDs(userID, conversationID, clipID); err != nil {
		return nil, Clip{}, err
	}

	path := filepath.Join(s.conversationDir(userID, conversationID), clipID+Extension)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Clip{}, fmt.Errorf("clip %s/%s/%s: %w", userID, conversationID, clipID, audio.ErrNotFound)
		}
		return nil, Clip{}, fmt.Errorf("open clip: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Clip{}, fmt.Errorf("stat clip: %w", err)
	}

	format, err := s.readFormat(userID, conversationID, clipID)
	if err != nil {
		f.Close()
		return nil, Clip{}, err
	}

	clip := Clip{
		ID:             clipID,
		UserID:         userID,
		ConversationID: conversationID,
		Format:         format,
		Size:           st.Size(),
		CreatedAt:      st.ModTime().UTC(),
	}
	if indexed, ok, err := s.lookup(ctx, clipID); err != nil {
		s.log.Warn("clip index lookup failed", slog.String("clip", clipID), slog.String("error", err.Error()))
	} else if ok && indexed.UserID == userID && indexed.ConversationID == conversationID {
		clip.Format = indexed.Format
		clip.CreatedAt = indexed.CreatedAt
	}
	return f, clip, nil
}

func (s *Store) lookup(ctx context.Context, clipID string) (Clip, bool, error) {
	if s.db == nil {
		return Clip{}, false, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT clip_id, user_id, conversation_id, sample_rate, channels, bit_depth, size, created_at
		 FROM clips WHERE clip_id = ?`, clipID)
	c, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Clip{}, false, nil
	}
	if err != nil {
		return Clip{}, false, err
	}
	return c, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClip(r scanner) (Clip, error) {
	var c Clip
	var created int64
	if err := r.Scan(&c.ID, &c.UserID, &c.ConversationID,
		&c.Format.SampleRate, &c.Format.Channels, &c.Format.BitDepth, &c.Size, &created); err != nil {
		return Clip{}, err
	}
	c.CreatedAt = time.Unix(0, created).UTC()
	return c, nil
}

// List returns the clips of a conversation, oldest first
func (s *Store) List(ctx context.Context, userID, conversationID string) ([]Clip, error) {
	if err := ValidateIDs(userID, conversationID); err != nil {
		return nil, err
	}
	if s.db == nil {
		return s.scan(userID, conversationID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT clip_id, user_id, conversation_id, sample_rate, channels, bit_depth, size, created_at
		 FROM clips WHERE user_id = ? AND conversation_id = ?
		 ORDER BY created_at ASC, clip_id ASC`, userID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (s *Store) scan(userID, conversationID string) ([]Clip, error) {
	entries, err := os.ReadDir(s.conversationDir(userID, conversationID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation dir: %w", err)
	}

	var clips []Clip
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(name, Extension)
		format, err := s.readFormat(userID, conversationID, id)
		if err != nil {
			return nil, err
		}
		clips = append(clips, Clip{
			ID:             id,
			UserID:         userID,
			ConversationID: conversationID,
			Format:         format,
			Size:           info.Size(),
			CreatedAt:      info.ModTime().UTC(),
		})
	}
	sort.Slice(clips, func(i, j int) bool {
		if clips[i].CreatedAt.Equal(clips[j].CreatedAt) {
			return clips[i].ID < clips[j].ID
		}
		return clips[i].CreatedAt.Before(clips[j].CreatedAt)
	})
	return clips, nil
}

// DeleteConversation removes every clip of a conversation and returns how many were removed
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) (int, error) {
	ctx, span := tracer.Start(ctx, "store.DeleteConversation", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	clips, err := s.List(ctx, userID, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if s.db != nil {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM conversations WHERE user_id = ? AND conversation_id = ?`,
			userID, conversationID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, fmt.Errorf("delete conversation index: %w", err)
		}
	}

	if err := os.RemoveAll(s.conversationDir(userID, conversationID)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("remove conversation dir: %w", err)
	}

	span.SetAttributes(attribute.Int("clips.removed", len(clips)))
	s.log.Info("conversation deleted",
		slog.String("user", userID),
		slog.String("conversation", conversationID),
		slog.Int("clips", len(clips)))
	return len(clips), nil
}

// readFormat returns the format recorded next to a clip, or the default when none was
func (s *Store) readFormat(userID, conversationID, clipID string) (audio.Format, error) {
	path := filepath.Join(s.conversationDir(userID, conversationID), clipID+formatExtension)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return audio.DefaultFormat, nil
	}
	if err != nil {
		return audio.Format{}, fmt.Errorf("read clip format: %w", err)
	}
	format, err := mediatype.Parse(string(data))
	if err != nil {
		return audio.Format{}, fmt.Errorf("clip %s format: %w", clipID, err)
	}
	return format, nil
}

func (s *Store) conversationDir(userID, conversationID string) string {
	return filepath.Join(s.root, userID, conversationID)
}

// ValidateIDs checks that every id is a safe path segment
func ValidateIDs(ids ...string) error {
	for _, id := range ids {
		if !idPattern.MatchString(id) {
			return &audio.MalformedInputError{Op: "id", Reason: fmt.Sprintf("invalid identifier %q", id)}
		}
	}
	return nil
}
