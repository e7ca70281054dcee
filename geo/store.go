package geo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Level is an administrative geography level.
type Level string

const (
	LevelProvince Level = "province"
	LevelRegency  Level = "regency"
	LevelDistrict Level = "district"
	LevelVillage  Level = "village"
)

var ErrNotFound = errors.New("geo node not found")

// levelRank orders the four levels top-down. Lower rank is closer to the root.
var levelRank = map[Level]int{
	LevelProvince: 0,
	LevelRegency:  1,
	LevelDistrict: 2,
	LevelVillage:  3,
}

// Rank returns the depth of a level in the tree, or -1 for an unknown level.
func Rank(l Level) int {
	r, ok := levelRank[l]
	if !ok {
		return -1
	}
	return r
}

// Node is a single geography node. ParentID is empty for provinces.
type Node struct {
	ID       string `json:"id"`
	Level    Level  `json:"level"`
	ParentID string `json:"parent_id,omitempty"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// Chain is the full ancestor tuple of a node, including the node itself.
// Fields above the node's level are always populated; fields below stay empty.
type Chain struct {
	ProvinceID string
	RegencyID  string
	DistrictID string
	VillageID  string
}

// Store is the read contract the authorization engine depends on.
// Node is a direct single-table lookup; IsDescendant is an optimized joined
// query across the fixed four-level tree.
type Store interface {
	// Node fetches one node by level and id. Returns ErrNotFound when absent.
	Node(ctx context.Context, level Level, id string) (*Node, error)

	// IsDescendant reports whether node (level, id) sits strictly below
	// ancestor (ancestorLevel, ancestorID) in the tree.
	IsDescendant(ctx context.Context, ancestorLevel Level, ancestorID string, level Level, id string) (bool, error)

	// AncestorChain resolves the ids of a node and all of its ancestors.
	AncestorChain(ctx context.Context, level Level, id string) (*Chain, error)
}

// SQLStore implements Store over the provinces/regencies/districts/villages tables.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

// Node fetches one node by level and id.
func (s *SQLStore) Node(ctx context.Context, level Level, id string) (*Node, error) {
	var query string
	switch level {
	case LevelProvince:
		query = `SELECT id, '' AS parent_id, code, name FROM provinces WHERE id = $1`
	case LevelRegency:
		query = `SELECT id, province_id, code, name FROM regencies WHERE id = $1`
	case LevelDistrict:
		query = `SELECT id, regency_id, code, name FROM districts WHERE id = $1`
	case LevelVillage:
		query = `SELECT id, district_id, code, name FROM villages WHERE id = $1`
	default:
		return nil, fmt.Errorf("unknown geo level %q", level)
	}

	node := Node{Level: level}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&node.ID, &node.ParentID, &node.Code, &node.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", level, id, err)
	}
	return &node, nil
}

// descendantQueries maps (ancestor level, node level) to a single EXISTS-style
// join. The tree has a fixed depth of four, so every pair is enumerable and no
// recursive CTE is needed.
var descendantQueries = map[[2]Level]string{
	{LevelProvince, LevelRegency}: `
		SELECT 1 FROM regencies r
		WHERE r.id = $1 AND r.province_id = $2`,
	{LevelProvince, LevelDistrict}: `
		SELECT 1 FROM districts d
		JOIN regencies r ON d.regency_id = r.id
		WHERE d.id = $1 AND r.province_id = $2`,
	{LevelProvince, LevelVillage}: `
		SELECT 1 FROM villages v
		JOIN districts d ON v.district_id = d.id
		JOIN regencies r ON d.regency_id = r.id
		WHERE v.id = $1 AND r.province_id = $2`,
	{LevelRegency, LevelDistrict}: `
		SELECT 1 FROM districts d
		WHERE d.id = $1 AND d.regency_id = $2`,
	{LevelRegency, LevelVillage}: `
		SELECT 1 FROM villages v
		JOIN districts d ON v.district_id = d.id
		WHERE v.id = $1 AND d.regency_id = $2`,
	{LevelDistrict, LevelVillage}: `
		SELECT 1 FROM villages v
		WHERE v.id = $1 AND v.district_id = $2`,
}

// IsDescendant reports whether node (level, id) is strictly below the ancestor.
// Same-level or inverted pairs are never descendants.
func (s *SQLStore) IsDescendant(ctx context.Context, ancestorLevel Level, ancestorID string, level Level, id string) (bool, error) {
	query, ok := descendantQueries[[2]Level{ancestorLevel, level}]
	if !ok {
		return false, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx, query, id, ancestorID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check descendant %s %s under %s %s: %w", level, id, ancestorLevel, ancestorID, err)
	}
	return true, nil
}

// AncestorChain walks parent links upward from (level, id). At most three
// lookups for a village; records write the result so authorization filters can
// match any ancestor column directly.
func (s *SQLStore) AncestorChain(ctx context.Context, level Level, id string) (*Chain, error) {
	chain := &Chain{}
	curLevel, curID := level, id
	for curLevel != "" && curID != "" {
		node, err := s.Node(ctx, curLevel, curID)
		if err != nil {
			return nil, err
		}
		switch curLevel {
		case LevelProvince:
			chain.ProvinceID = curID
		case LevelRegency:
			chain.RegencyID = curID
		case LevelDistrict:
			chain.DistrictID = curID
		case LevelVillage:
			chain.VillageID = curID
		}
		curLevel, curID = ParentLevel(curLevel), node.ParentID
	}
	return chain, nil
}

// ParentLevel returns the level directly above l, or "" for provinces.
func ParentLevel(l Level) Level {
	switch l {
	case LevelVillage:
		return LevelDistrict
	case LevelDistrict:
		return LevelRegency
	case LevelRegency:
		return LevelProvince
	default:
		return ""
	}
}
