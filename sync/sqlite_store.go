package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS campaigner_settings (
	site_id   INTEGER PRIMARY KEY,
	api_key   TEXT NOT NULL DEFAULT '',
	client_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS campaigner_mailing_lists (
	site_id       INTEGER NOT NULL,
	list_id       TEXT NOT NULL,
	list_name     TEXT NOT NULL DEFAULT '',
	custom_fields TEXT NOT NULL DEFAULT '[]',
	trigger_field TEXT NOT NULL DEFAULT '',
	trigger_value TEXT NOT NULL DEFAULT '',
	position      INTEGER NOT NULL,
	PRIMARY KEY (site_id, list_id)
);
CREATE TABLE IF NOT EXISTS members (
	member_id INTEGER PRIMARY KEY,
	data      TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS member_fields (
	m_field_id         INTEGER PRIMARY KEY,
	m_field_label      TEXT NOT NULL,
	m_field_type       TEXT NOT NULL DEFAULT 'text',
	m_field_list_items TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS campaigner_error_log (
	id          TEXT PRIMARY KEY,
	site_id     INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	context     TEXT NOT NULL,
	code        TEXT NOT NULL,
	remote_code INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	member_id   INTEGER NOT NULL DEFAULT 0,
	list_id     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS campaigner_error_log_site ON campaigner_error_log (site_id, created_at);`

// errorLogTimeLayout sorts lexically.
const errorLogTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// standardMemberFields are the built-in member fields offered for mapping.
var standardMemberFields = []string{"group_id", "location", "occupation", "screen_name", "url", "username"}

// MemberField describes a member field that can be mapped to a list custom field.
type MemberField struct {
	ID      string
	Label   string
	Type    string
	Options []string
}

// ErrorLogEntry is a persisted failure report.
type ErrorLogEntry struct {
	ID        string
	CreatedAt time.Time
	Context   string
	ErrorDetail
}

// SQLiteStore persists settings, mailing list rules, members and the error log.
// It implements Store and ErrorReporter.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// SQLiteStoreOption is a functional option for configuring a SQLiteStore.
type SQLiteStoreOption func(*SQLiteStore)

func SQLiteStoreWithLogger(logger *zap.Logger) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func SQLiteStoreWithClock(now func() time.Time) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

func NewSQLiteStore(db *sql.DB, opts ...SQLiteStoreOption) *SQLiteStore {
	s := &SQLiteStore{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates any missing tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite store %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Settings(ctx context.Context, siteID int) (SiteSettings, error) {
	result := SiteSettings{SiteID: siteID}
	err := s.db.QueryRowContext(ctx,
		`SELECT api_key, client_id FROM campaigner_settings WHERE site_id = ?`, siteID).
		Scan(&result.APIKey, &result.ClientID)
	if errors.Is(err, sql.ErrNoRows) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to load settings for site %d %w", siteID, err)
	}
	return result, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings SiteSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigner_settings (site_id, api_key, client_id) VALUES (?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET api_key = excluded.api_key, client_id = excluded.client_id`,
		settings.SiteID, settings.APIKey, settings.ClientID)
	if err != nil {
		return fmt.Errorf("failed to save settings for site %d %w", settings.SiteID, err)
	}
	return nil
}

// MailingLists returns the site's rules in the order they were saved.
func (s *SQLiteStore) MailingLists(ctx context.Context, siteID int) ([]MailingList, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_id, list_name, custom_fields, trigger_field, trigger_value
		FROM campaigner_mailing_lists WHERE site_id = ? ORDER BY position`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mailing lists for site %d %w", siteID, err)
	}
	defer rows.Close()

	var result []MailingList
	for rows.Next() {
		var l MailingList
		var customFields string
		err = rows.Scan(&l.ListID, &l.Name, &customFields, &l.TriggerField, &l.TriggerValue)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailing list %w", err)
		}
		if customFields != "" {
			err = json.Unmarshal([]byte(customFields), &l.CustomFields)
			if err != nil {
				return nil, fmt.Errorf("failed to decode custom fields for list %s %w", l.ListID, err)
			}
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// SaveMailingLists replaces every rule of the site with lists, keeping their order.
func (s *SQLiteStore) SaveMailingLists(ctx context.Context, siteID int, lists []MailingList) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `DELETE FROM campaigner_mailing_lists WHERE site_id = ?`, siteID)
	if err != nil {
		return fmt.Errorf("failed to delete mailing lists for site %d %w", siteID, err)
	}
	for i, l := range lists {
		fields := l.CustomFields
		if fields == nil {
			fields = []CustomField{}
		}
		customFields, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to encode custom fields for list %s %w", l.ListID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO campaigner_mailing_lists
				(site_id, list_id, list_name, custom_fields, trigger_field, trigger_value, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			siteID, l.ListID, l.Name, string(customFields), l.TriggerField, l.TriggerValue, i)
		if err != nil {
			return fmt.Errorf("failed to insert mailing list %s %w", l.ListID, err)
		}
	}
	return tx.Commit()
}

// Member returns ErrMemberNotFound when no row matches memberID.
func (s *SQLiteStore) Member(ctx context.Context, memberID int) (Member, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM members WHERE member_id = ?`, memberID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("member %d %w", memberID, ErrMemberNotFound)
	}
	if err != nil {
		return Member{}, fmt.Errorf("failed to load member %d %w", memberID, err)
	}
	return NewMemberFromJSON(memberID, data)
}

// SaveMember inserts or replaces a member snapshot. Member ids are shared by every site.
func (s *SQLiteStore) SaveMember(ctx context.Context, member Member) error {
	return s.SaveMembers(ctx, []Member{member})
}

// SaveMembers upserts members in one transaction; either all are saved or none.
func (s *SQLiteStore) SaveMembers(ctx context.Context, members []Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, member := range members {
		data := member.Raw()
		if data == "" {
			data = "{}"
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO members (member_id, data) VALUES (?, ?)
			ON CONFLICT(member_id) DO UPDATE SET data = excluded.data`,
			member.ID, data)
		if err != nil {
			return fmt.Errorf("failed to save member %d %w", member.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteMember(ctx context.Context, memberID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE member_id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("failed to delete member %d %w", memberID, err)
	}
	return nil
}

// MemberFields lists the standard member fields followed by the custom member
// fields, which are keyed m_field_id_N.
func (s *SQLiteStore) MemberFields(ctx context.Context) ([]MemberField, error) {
	result := make([]MemberField, 0, len(standardMemberFields))
	for _, f := range standardMemberFields {
		result = append(result, MemberField{ID: f, Label: FieldLabel(f), Type: "text"})
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m_field_id, m_field_label, m_field_type, m_field_list_items
		FROM member_fields ORDER BY m_field_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query member fields %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var f MemberField
		var items string
		if err = rows.Scan(&id, &f.Label, &f.Type, &items); err != nil {
			return nil, fmt.Errorf("failed to scan member field %w", err)
		}
		f.ID = fmt.Sprintf("m_field_id_%d", id)
		if f.Type == "select" && items != "" {
			for _, item := range strings.Split(items, "\n") {
				if item = strings.TrimSpace(item); item != "" {
					f.Options = append(f.Options, item)
				}
			}
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// LogError persists a failure report. Storage failures are logged, never returned.
func (s *SQLiteStore) LogError(ctx context.Context, errContext string, detail ErrorDetail) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigner_error_log
			(id, site_id, created_at, context, code, remote_code, message, member_id, list_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		detail.SiteID,
		s.now().UTC().Format(errorLogTimeLayout),
		errContext,
		string(detail.Code),
		detail.RemoteCode,
		detail.Message,
		detail.MemberID,
		detail.ListID,
	)
	if err != nil {
		s.logger.Warn("failed to persist error log entry",
			zap.String("context", errContext),
			zap.String("code", string(detail.Code)),
			zap.Error(err))
	}
}

// ErrorLog returns the site's most recent entries first. A limit of zero or less returns all entries.
func (s *SQLiteStore) ErrorLog(ctx context.Context, siteID int, limit int) ([]ErrorLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, created_at, context, code, remote_code, message, member_id, list_id
		FROM campaigner_error_log WHERE site_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error log %w", err)
	}
	defer rows.Close()

	var result []ErrorLogEntry
	for rows.Next() {
		var e ErrorLogEntry
		var createdAt, code string
		err = rows.Scan(&e.ID, &e.SiteID, &createdAt, &e.Context, &code, &e.RemoteCode, &e.Message, &e.MemberID, &e.ListID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error log entry %w", err)
		}
		e.Code = ErrorCode(code)
		e.CreatedAt, _ = time.Parse(errorLogTimeLayout, createdAt)
		result = append(result, e)
	}
	return result, rows.Err()
}
