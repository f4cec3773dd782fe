package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"eink_backend/core"
	"eink_backend/logging"
)

// deviceKeyCacheTTL bounds how long a device-key to user-id mapping is
// served from memory. Keys change only on explicit regeneration, so a
// short TTL keeps the window for a revoked key small.
const deviceKeyCacheTTL = 5 * time.Minute

// User is a row in the users table together with its decoded settings
// and cached last frame.
type User struct {
	ID                string
	Email             string
	DeviceKey         string
	Settings          core.DisplaySettings
	NeedsRefresh      bool
	LastFrame         *core.Frame
	LastDeviceContact time.Time
	CreatedAt         time.Time
}

// Store provides persistence for users, their display settings and the
// most recently generated frame.
//
// Only the device-key to user-id mapping is cached; settings and the
// needs_refresh flag are always read from the database so that changes
// made through the web API are visible on the very next display poll.
type Store struct {
	db       *sql.DB
	keyCache *gocache.Cache
	logger   *logging.Logger
}

// NewStore creates a Store on top of an open database connection.
// The connection is not owned by the Store; close it separately.
func NewStore(db *sql.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		db:       db,
		keyCache: gocache.New(deviceKeyCacheTTL, 2*deviceKeyCacheTTL),
		logger:   logger.Named("store"),
	}
}

// CreateUser inserts a new user with default settings and a fresh
// device key.
func (s *Store) CreateUser(ctx context.Context, email string) (User, error) {
	if email == "" {
		return User{}, fmt.Errorf("email is required")
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		DeviceKey:    uuid.New().String(),
		Settings:     core.DefaultDisplaySettings(),
		NeedsRefresh: true,
		CreatedAt:    time.Now().UTC(),
	}

	settingsJSON, err := json.Marshal(user.Settings)
	if err != nil {
		return User{}, fmt.Errorf("failed to encode settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, device_key, settings, needs_refresh, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		user.ID, user.Email, user.DeviceKey, string(settingsJSON), user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", zap.String("user_id", user.ID))
	return user, nil
}

// EnsureUser returns the user with the given email, creating it with
// default settings if it does not exist yet. Used at startup to
// bootstrap the single-tenant deployment.
func (s *Store) EnsureUser(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, device_key, settings, needs_refresh,
		       last_frame_bitmap, last_frame_quote, last_frame_at,
		       last_device_contact, created_at
		FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return User{}, err
	}
	return s.CreateUser(ctx, email)
}

// Load reads a user by id.
// Returns core.ErrNotFound when no such user exists.
func (s *Store) Load(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, device_key, settings, needs_refresh,
		       last_frame_bitmap, last_frame_quote, last_frame_at,
		       last_device_contact, created_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ByDeviceKey resolves a device key to its user. The key to id mapping
// is cached; the user row itself is always read fresh.
// Returns core.ErrNotFound when the key matches no user.
func (s *Store) ByDeviceKey(ctx context.Context, key string) (User, error) {
	if cached, ok := s.keyCache.Get(key); ok {
		user, err := s.Load(ctx, cached.(string))
		if err == nil && user.DeviceKey == key {
			return user, nil
		}
		// Stale mapping (key regenerated or user deleted)
		s.keyCache.Delete(key)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, device_key, settings, needs_refresh,
		       last_frame_bitmap, last_frame_quote, last_frame_at,
		       last_device_contact, created_at
		FROM users WHERE device_key = ?`, key)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}

	s.keyCache.Set(key, user.ID, gocache.DefaultExpiration)
	return user, nil
}

// UpdateSettings replaces a user's display settings and marks the user
// as needing a regenerated frame.
func (s *Store) UpdateSettings(ctx context.Context, id string, settings core.DisplaySettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET settings = ?, needs_refresh = 1 WHERE id = ?`,
		string(settingsJSON), id)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return requireRowAffected(res)
}

// SetCustomImage stores an uploaded image (base64 data URI) in the
// user's settings and marks the user as needing a regenerated frame.
func (s *Store) SetCustomImage(ctx context.Context, id, dataURI string) error {
	user, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	user.Settings.CustomImage = dataURI
	return s.UpdateSettings(ctx, id, user.Settings)
}

// SaveFrame persists a freshly generated frame and clears the
// needs_refresh flag in the same statement.
func (s *Store) SaveFrame(ctx context.Context, id string, frame core.Frame) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET last_frame_bitmap = ?, last_frame_quote = ?, last_frame_at = ?,
		    needs_refresh = 0
		WHERE id = ?`,
		frame.Bitmap, frame.Quote, frame.GeneratedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save frame: %w", err)
	}
	return requireRowAffected(res)
}

// TouchDevice records that the user's display contacted the server.
func (s *Store) TouchDevice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_device_contact = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record device contact: %w", err)
	}
	return requireRowAffected(res)
}

// RegenerateDeviceKey issues a new device key for the user, invalidating
// the old one immediately.
func (s *Store) RegenerateDeviceKey(ctx context.Context, id string) (string, error) {
	user, err := s.Load(ctx, id)
	if err != nil {
		return "", err
	}

	newKey := uuid.New().String()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET device_key = ? WHERE id = ?`, newKey, id)
	if err != nil {
		return "", fmt.Errorf("failed to regenerate device key: %w", err)
	}
	if err := requireRowAffected(res); err != nil {
		return "", err
	}

	s.keyCache.Delete(user.DeviceKey)
	s.logger.Info("device key regenerated", zap.String("user_id", id))
	return newKey, nil
}

// scanUser decodes a users row, tolerating missing frame columns.
func scanUser(row *sql.Row) (User, error) {
	var (
		user         User
		settingsJSON string
		needsRefresh int
		bitmap       []byte
		quote        string
		frameAt      sql.NullTime
		contact      sql.NullTime
	)

	err := row.Scan(&user.ID, &user.Email, &user.DeviceKey, &settingsJSON,
		&needsRefresh, &bitmap, &quote, &frameAt, &contact, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, core.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}

	user.Settings = core.DefaultDisplaySettings()
	if err := json.Unmarshal([]byte(settingsJSON), &user.Settings); err != nil {
		return User{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	user.NeedsRefresh = needsRefresh != 0
	if len(bitmap) > 0 && frameAt.Valid {
		user.LastFrame = &core.Frame{
			Bitmap:      bitmap,
			Quote:       quote,
			GeneratedAt: frameAt.Time,
		}
	}
	if contact.Valid {
		user.LastDeviceContact = contact.Time
	}

	return user, nil
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
