package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sidesa-id/sidesa/db"
	"github.com/sidesa-id/sidesa/geo"
)

var (
	ErrSurveyNotFound    = errors.New("survey not found")
	ErrUnknownSurveyKind = errors.New("unknown survey kind")
)

// surveyTables maps the resource type to its table. Must stay in sync with
// the authz resource-meta mapping.
var surveyTables = map[string]string{
	"housing":  "housing_surveys",
	"facility": "facility_surveys",
}

// SurveyService is the thin CRUD layer for housing and facility forms. All
// access decisions are made by the authz middleware before these methods run.
type SurveyService struct {
	PG  *sql.DB
	Geo geo.Store
}

func NewSurveyService(pg *sql.DB, g geo.Store) *SurveyService {
	return &SurveyService{PG: pg, Geo: g}
}

type SurveyInput struct {
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data"`
	ProvinceID string                 `json:"province_id"`
	RegencyID  string                 `json:"regency_id"`
	DistrictID string                 `json:"district_id"`
	VillageID  string                 `json:"village_id"`
}

// Create inserts a survey anchored at the given location tuple.
func (s *SurveyService) Create(ctx context.Context, kind, actorID string, input SurveyInput) (*db.Survey, error) {
	table, ok := surveyTables[kind]
	if !ok {
		return nil, ErrUnknownSurveyKind
	}

	survey := &db.Survey{
		ID:         uuid.New().String(),
		Type:       kind,
		Status:     input.Status,
		Data:       input.Data,
		ProvinceID: input.ProvinceID,
		RegencyID:  input.RegencyID,
		DistrictID: input.DistrictID,
		VillageID:  input.VillageID,
		CreatedBy:  actorID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if survey.Status == "" {
		survey.Status = "draft"
	}

	// Visibility filters match records on any ancestor column, so the stored
	// tuple must carry the full chain, not just the level the caller sent.
	if s.Geo != nil {
		if level, nodeID := mostSpecificNode(input); nodeID != "" {
			chain, err := s.Geo.AncestorChain(ctx, level, nodeID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve location chain for %s survey: %w", kind, err)
			}
			survey.ProvinceID = chain.ProvinceID
			survey.RegencyID = chain.RegencyID
			survey.DistrictID = chain.DistrictID
			survey.VillageID = chain.VillageID
		}
	}

	var data interface{}
	if len(survey.Data) > 0 {
		raw, err := json.Marshal(survey.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal survey data: %w", err)
		}
		data = string(raw)
	}

	nullable := func(v string) interface{} {
		if v == "" {
			return nil
		}
		return v
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO `+table+` (id, status, data, province_id, regency_id, district_id, village_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, survey.ID, survey.Status, data,
		nullable(survey.ProvinceID), nullable(survey.RegencyID),
		nullable(survey.DistrictID), nullable(survey.VillageID),
		survey.CreatedBy, survey.CreatedAt, survey.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s survey: %w", kind, err)
	}
	return survey, nil
}

// mostSpecificNode picks the deepest level present in the input tuple.
func mostSpecificNode(input SurveyInput) (geo.Level, string) {
	switch {
	case input.VillageID != "":
		return geo.LevelVillage, input.VillageID
	case input.DistrictID != "":
		return geo.LevelDistrict, input.DistrictID
	case input.RegencyID != "":
		return geo.LevelRegency, input.RegencyID
	case input.ProvinceID != "":
		return geo.LevelProvince, input.ProvinceID
	}
	return "", ""
}

// Get loads one survey.
func (s *SurveyService) Get(ctx context.Context, kind, id string) (*db.Survey, error) {
	table, ok := surveyTables[kind]
	if !ok {
		return nil, ErrUnknownSurveyKind
	}

	survey := db.Survey{Type: kind}
	var data sql.NullString
	err := s.PG.QueryRowContext(ctx, `
		SELECT id, status, data,
		       COALESCE(province_id, ''), COALESCE(regency_id, ''),
		       COALESCE(district_id, ''), COALESCE(village_id, ''),
		       created_by, created_at, updated_at
		FROM `+table+`
		WHERE id = $1
	`, id).Scan(&survey.ID, &survey.Status, &data,
		&survey.ProvinceID, &survey.RegencyID, &survey.DistrictID, &survey.VillageID,
		&survey.CreatedBy, &survey.CreatedAt, &survey.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSurveyNotFound
		}
		return nil, fmt.Errorf("failed to get %s survey: %w", kind, err)
	}

	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &survey.Data); err != nil {
			return nil, fmt.Errorf("failed to decode survey data: %w", err)
		}
	}
	return &survey, nil
}

// ListVisible returns surveys inside the actor's visibility: their own
// submissions plus, for anchored officials, everything at (and with
// all_children, under) their assigned unit. The filter mirrors the engine's
// location semantics for list endpoints, where per-instance checks would be
// too expensive.
func (s *SurveyService) ListVisible(ctx context.Context, kind string, actor ListScope, limit, offset int) ([]db.Survey, error) {
	table, ok := surveyTables[kind]
	if !ok {
		return nil, ErrUnknownSurveyKind
	}

	query := `
		SELECT id, status, data,
		       COALESCE(province_id, ''), COALESCE(regency_id, ''),
		       COALESCE(district_id, ''), COALESCE(village_id, ''),
		       created_by, created_at, updated_at
		FROM ` + table + `
	`
	args := []interface{}{}

	where, whereArgs := actor.filter(len(args) + 1)
	if where != "" {
		query += " WHERE " + where
		args = append(args, whereArgs...)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s surveys: %w", kind, err)
	}
	defer rows.Close()

	var surveys []db.Survey
	for rows.Next() {
		survey := db.Survey{Type: kind}
		var data sql.NullString
		if err := rows.Scan(&survey.ID, &survey.Status, &data,
			&survey.ProvinceID, &survey.RegencyID, &survey.DistrictID, &survey.VillageID,
			&survey.CreatedBy, &survey.CreatedAt, &survey.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &survey.Data); err != nil {
				return nil, fmt.Errorf("failed to decode survey data: %w", err)
			}
		}
		surveys = append(surveys, survey)
	}
	return surveys, rows.Err()
}

// ListScope captures how far a caller can see for list queries. Unrestricted
// is set for super-admins and verifikator. Records carry their full ancestor
// chain, so matching the anchor column also matches records anchored deeper
// in the tree.
type ListScope struct {
	Unrestricted bool
	UserID       string
	AnchorColumn string // province_id, regency_id, district_id, village_id
	AnchorID     string
}

func (sc ListScope) filter(argStart int) (string, []interface{}) {
	if sc.Unrestricted {
		return "", nil
	}
	if sc.AnchorColumn == "" || sc.AnchorID == "" {
		// Citizens: own records only.
		return fmt.Sprintf("created_by = $%d", argStart), []interface{}{sc.UserID}
	}
	return fmt.Sprintf("(created_by = $%d OR %s = $%d)", argStart, sc.AnchorColumn, argStart+1),
		[]interface{}{sc.UserID, sc.AnchorID}
}
