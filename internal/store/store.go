package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/inkpress/emagazine/internal/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: record not found")

// ProfileStore is the narrow identity-lookup contract the auth middleware
// depends on. The rest of GormStore is plain document CRUD for handlers.
type ProfileStore interface {
	FindProfileBySubjectID(ctx context.Context, subjectID string) (*models.Profile, error)
}

type GormStore struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func wrapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User, profile *models.Profile) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile.UserID = user.ID
		profile.SubjectID = user.SubjectID
		profile.Role = user.Role
		return tx.Create(profile).Error
	})
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &user, nil
}

func (s *GormStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) FindProfileBySubjectID(ctx context.Context, subjectID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.DB.WithContext(ctx).Where("subject_id = ?", subjectID).First(&profile).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &profile, nil
}

func (s *GormStore) CreatePost(ctx context.Context, post *models.Post) error {
	return s.DB.WithContext(ctx).Create(post).Error
}

func (s *GormStore) FindPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.DB.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &post, nil
}

func (s *GormStore) SavePost(ctx context.Context, post *models.Post) error {
	return s.DB.WithContext(ctx).Save(post).Error
}

// ListPosts pages posts filtered by status; an empty status lists all.
func (s *GormStore) ListPosts(ctx context.Context, status string, offset, limit int) (int64, []models.Post, error) {
	q := s.DB.WithContext(ctx).Model(&models.Post{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}
	var posts []models.Post
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&posts).Error; err != nil {
		return 0, nil, err
	}
	return total, posts, nil
}

func (s *GormStore) CreateEdition(ctx context.Context, edition *models.Edition) error {
	return s.DB.WithContext(ctx).Create(edition).Error
}

func (s *GormStore) FindEdition(ctx context.Context, id uint) (*models.Edition, error) {
	var edition models.Edition
	if err := s.DB.WithContext(ctx).First(&edition, id).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &edition, nil
}

func (s *GormStore) SaveEdition(ctx context.Context, edition *models.Edition) error {
	return s.DB.WithContext(ctx).Save(edition).Error
}

// ListEditions returns editions, optionally only published ones.
func (s *GormStore) ListEditions(ctx context.Context, publishedOnly bool) ([]models.Edition, error) {
	q := s.DB.WithContext(ctx).Model(&models.Edition{})
	if publishedOnly {
		q = q.Where("published = ?", true)
	}
	var editions []models.Edition
	if err := q.Order("volume DESC").Find(&editions).Error; err != nil {
		return nil, err
	}
	return editions, nil
}
