package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/meetprep/backend/internal/domain/meeting"
	"github.com/meetprep/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormJoinStore implements meeting.JoinStore using GORM.
// The fire-once guarantee comes from a conditional UPDATE on the fired column.
type GormJoinStore struct {
	db *gorm.DB
}

// NewGormJoinStore creates a new GormJoinStore
func NewGormJoinStore(db *gorm.DB) *GormJoinStore {
	return &GormJoinStore{db: db}
}

// Watch registers the meeting as waiting on the participants and domains
func (s *GormJoinStore) Watch(ctx context.Context, meetingID string, emails, domains []string) error {
	rows := make([]models.MeetingWatchModel, 0, len(emails)+len(domains))
	for _, e := range emails {
		rows = append(rows, models.MeetingWatchModel{MeetingID: meetingID, Kind: models.WatchParticipant, Value: e})
	}
	for _, d := range domains {
		rows = append(rows, models.MeetingWatchModel{MeetingID: meetingID, Kind: models.WatchDomain, Value: d})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		join := &models.MeetingJoinModel{MeetingID: meetingID, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(join).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}

// MeetingsForParticipant returns the meetings waiting on email
func (s *GormJoinStore) MeetingsForParticipant(ctx context.Context, email string) ([]string, error) {
	return s.watchers(ctx, models.WatchParticipant, email)
}

// MeetingsForDomain returns the meetings waiting on domain
func (s *GormJoinStore) MeetingsForDomain(ctx context.Context, domain string) ([]string, error) {
	return s.watchers(ctx, models.WatchDomain, domain)
}

func (s *GormJoinStore) watchers(ctx context.Context, kind, value string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.MeetingWatchModel{}).
		Where("kind = ? AND value = ?", kind, value).
		Order("meeting_id ASC").
		Pluck("meeting_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Record marks part present and reports whether this call completed the join
func (s *GormJoinStore) Record(ctx context.Context, meetingID string, part meeting.JoinPart) (bool, error) {
	column, err := joinColumn(part)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)

	join := &models.MeetingJoinModel{MeetingID: meetingID, UpdatedAt: now}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(join).Error; err != nil {
		return false, err
	}
	err = db.Model(&models.MeetingJoinModel{}).
		Where("meeting_id = ?", meetingID).
		Updates(map[string]any{column: true, "updated_at": now}).Error
	if err != nil {
		return false, err
	}

	result := db.Model(&models.MeetingJoinModel{}).
		Where("meeting_id = ? AND participant_data = ? AND company_data = ? AND fired = ?", meetingID, true, true, false).
		Updates(map[string]any{"fired": true, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Parts returns the parts recorded so far
func (s *GormJoinStore) Parts(ctx context.Context, meetingID string) ([]meeting.JoinPart, error) {
	var model models.MeetingJoinModel
	err := s.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var parts []meeting.JoinPart
	if model.ParticipantData {
		parts = append(parts, meeting.PartParticipantData)
	}
	if model.CompanyData {
		parts = append(parts, meeting.PartCompanyData)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
	return parts, nil
}

// Reset forgets the join state and the watches of the meeting
func (s *GormJoinStore) Reset(ctx context.Context, meetingID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", meetingID).Delete(&models.MeetingWatchModel{}).Error; err != nil {
			return err
		}
		return tx.Where("meeting_id = ?", meetingID).Delete(&models.MeetingJoinModel{}).Error
	})
}

func joinColumn(part meeting.JoinPart) (string, error) {
	switch part {
	case meeting.PartParticipantData:
		return "participant_data", nil
	case meeting.PartCompanyData:
		return "company_data", nil
	}
	return "", fmt.Errorf("unknown join part %q", part)
}

var _ meeting.JoinStore = (*GormJoinStore)(nil)
