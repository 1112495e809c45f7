package postgres

import (
	"context"

	"github.com/yoockh/mockinterview/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferenceRepository interface {
	List(ctx context.Context, kind models.ReferenceKind) ([]models.ReferenceItem, error)
	Seed(ctx context.Context, kind models.ReferenceKind, items []models.ReferenceItem) error
}

type referenceRepo struct {
	db *gorm.DB
}

func NewReferenceRepo(db *gorm.DB) ReferenceRepository {
	return &referenceRepo{db: db}
}

func (r *referenceRepo) List(ctx context.Context, kind models.ReferenceKind) ([]models.ReferenceItem, error) {
	var rows []models.ReferenceItem
	err := conn(ctx, r.db).
		Table(string(kind)).
		Order("sort_order ASC").
		Order("label ASC").
		Find(&rows).Error
	return rows, classify(err)
}

func (r *referenceRepo) Seed(ctx context.Context, kind models.ReferenceKind, items []models.ReferenceItem) error {
	if len(items) == 0 {
		return nil
	}
	return classify(conn(ctx, r.db).
		Table(string(kind)).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&items).Error)
}

// Migrate creates or updates every table the service owns and seeds the
// reference catalogs.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&models.AccountQuota{},
		&models.Interview{},
		&models.InterviewType{},
		&models.ExperienceLevel{},
		&models.DifficultyLevel{},
	); err != nil {
		return err
	}

	refs := NewReferenceRepo(db)
	for _, kind := range []models.ReferenceKind{models.RefInterviewTypes, models.RefExperienceLevels, models.RefDifficultyLevels} {
		if err := refs.Seed(ctx, kind, models.Fallback(kind)); err != nil {
			return err
		}
	}
	return nil
}
