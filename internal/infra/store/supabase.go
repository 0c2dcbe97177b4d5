package store

import (
	"context"
	"encoding/json"
	"fmt"

	"boardnotice/internal/domain/notice"

	supa "github.com/supabase-community/supabase-go"
)

const usersTable = "user_profiles"

var _ notice.UserConfigClient = (*SupabaseUserStore)(nil)

// NewSupabaseClient creates a Supabase client with the service key.
func NewSupabaseClient(supabaseURL, serviceKey string) (*supa.Client, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return client, nil
}

// SupabaseUserStore implements the user config endpoint on a Supabase table.
type SupabaseUserStore struct {
	client *supa.Client
}

// NewSupabaseUserStore creates a new Supabase-backed user config store.
func NewSupabaseUserStore(client *supa.Client) *SupabaseUserStore {
	return &SupabaseUserStore{client: client}
}

// userRow is the internal representation for Supabase PostgREST reads and updates.
type userRow struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Roles    string            `json:"roles"`
	Props    map[string]string `json:"props"`
}

// GetUser retrieves a user profile. Returns nil, nil if no row is found.
func (s *SupabaseUserStore) GetUser(ctx context.Context, userID string) (*notice.UserProfile, error) {
	row, err := s.getRow(userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return rowToProfile(row), nil
}

// mergePropsFn applies a props patch in a single statement, so concurrent
// snoozes of different kinds do not overwrite each other. See
// migrations/001_merge_user_props.sql.
const mergePropsFn = "merge_user_props"

// mergeResult is the body of a mergePropsFn call. PostgREST errors carry a
// message and no props.
type mergeResult struct {
	Props   map[string]string `json:"props"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
}

// UpdateUserConfig applies the patch to the props column and returns the result.
// Returns nil, nil if the user has no row.
func (s *SupabaseUserStore) UpdateUserConfig(ctx context.Context, userID string, patch *notice.UserConfigPatch) (map[string]string, error) {
	updated := patch.UpdatedFields
	if updated == nil {
		updated = map[string]string{}
	}
	deleted := patch.DeletedFields
	if deleted == nil {
		deleted = []string{}
	}

	body := s.client.Rpc(mergePropsFn, "", map[string]any{
		"p_user_id": userID,
		"p_updated": updated,
		"p_deleted": deleted,
	})

	var res mergeResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("updating user props: %s", body)
	}
	if res.Message != "" {
		return nil, fmt.Errorf("updating user props: %s (%s)", res.Message, res.Code)
	}
	return res.Props, nil
}

func (s *SupabaseUserStore) getRow(userID string) (*userRow, error) {
	data, _, err := s.client.From(usersTable).Select("id,username,roles,props", "", false).Eq("id", userID).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching user profile: %w", err)
	}

	var rows []userRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing user profile: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// rowToProfile converts a userRow to a UserProfile.
func rowToProfile(row *userRow) *notice.UserProfile {
	props := row.Props
	if props == nil {
		props = map[string]string{}
	}
	return &notice.UserProfile{
		ID:       row.ID,
		Username: row.Username,
		Roles:    notice.ParseRoles(row.Roles),
		Props:    props,
	}
}
