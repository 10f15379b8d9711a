package store

import (
	"context"
	"fmt"

	"commerce-ledger/internal/models"

	"github.com/jmoiron/sqlx"
)

const qrScanDailyConstraint = "uq_qr_scans_member_business_day"

// GetMember retrieves a member by ID
func (s *Store) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	var member models.Member
	err := s.db.GetContext(ctx, &member, "SELECT * FROM members WHERE id = $1", id)
	if isNoRows(err) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &member, nil
}

// GetBusiness retrieves a business by ID
func (s *Store) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	var business models.Business
	err := s.db.GetContext(ctx, &business, "SELECT * FROM businesses WHERE id = $1", id)
	if isNoRows(err) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &business, nil
}

// GetBusinessCategories lists the categories a business belongs to
func (s *Store) GetBusinessCategories(ctx context.Context, businessID int64) ([]string, error) {
	categories := []string{}
	err := s.db.SelectContext(ctx, &categories,
		"SELECT category FROM business_categories WHERE business_id = $1 ORDER BY category", businessID)
	return categories, err
}

// GetCategoryPoints returns the configured points-per-scan for the given categories.
// Categories without configuration are absent from the result.
func (s *Store) GetCategoryPoints(ctx context.Context, categories []string) ([]models.CategoryPointsConfig, error) {
	if len(categories) == 0 {
		return []models.CategoryPointsConfig{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM category_points_config WHERE category IN (?)", categories)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	configs := []models.CategoryPointsConfig{}
	err = s.db.SelectContext(ctx, &configs, query, args...)
	return configs, err
}

// RecordScan inserts the day's scan for a member and business and adds the
// award to the member's points in one transaction. A second scan on the same
// day fails with ErrAlreadyScannedToday.
func (s *Store) RecordScan(ctx context.Context, scan *models.QRScan) (int64, error) {
	var total int64
	day := scan.ScanDay.Format("2006-01-02")

	err := s.WithRetry(ctx, DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var exists bool
		err := tx.GetContext(ctx, &exists, `
			SELECT EXISTS(
				SELECT 1 FROM qr_scans
				WHERE member_id = $1 AND business_id = $2 AND scan_day = $3::DATE
			)`,
			scan.MemberID, scan.BusinessID, day)
		if err != nil {
			return fmt.Errorf("check daily scan: %w", err)
		}
		if exists {
			return ErrAlreadyScannedToday
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO qr_scans (member_id, business_id, points_awarded, scan_day)
			VALUES ($1, $2, $3, $4::DATE)
			RETURNING id, created_at`,
			scan.MemberID, scan.BusinessID, scan.PointsAwarded, day).
			Scan(&scan.ID, &scan.CreatedAt)
		if IsUniqueViolation(err, qrScanDailyConstraint) {
			return ErrAlreadyScannedToday
		}
		if err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}

		err = tx.GetContext(ctx, &total, `
			UPDATE members SET points = points + $1, updated_at = NOW()
			WHERE id = $2
			RETURNING points`,
			scan.PointsAwarded, scan.MemberID)
		if isNoRows(err) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("credit points: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}
