package services

import (
	"errors"
	"strings"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"
	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/store"

	"github.com/google/uuid"
)

// ErrBulletinInvalid is returned for an empty message or unknown bulletin.
var ErrBulletinInvalid = errors.New("invalid bulletin")

// BulletinService manages the news items shown on the public page.
type BulletinService struct {
	store *store.Store
}

func NewBulletinService(s *store.Store) *BulletinService {
	return &BulletinService{store: s}
}

// ListActive returns the bulletins shown publicly, newest first.
func (s *BulletinService) ListActive() ([]models.Bulletin, error) {
	return s.store.ListBulletins(true, 10)
}

// ListAll returns every bulletin for the admin view.
func (s *BulletinService) ListAll() ([]models.Bulletin, error) {
	return s.store.ListBulletins(false, 50)
}

func (s *BulletinService) Create(message string) (*models.Bulletin, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrBulletinInvalid
	}
	b := &models.Bulletin{
		ID:      uuid.New().String(),
		Message: message,
		Active:  true,
	}
	if err := s.store.CreateBulletin(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Update changes the message and/or active flag. Nil leaves a field as is.
func (s *BulletinService) Update(id string, message *string, active *bool) (*models.Bulletin, error) {
	b, err := s.store.GetBulletin(id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrBulletinInvalid
		}
		return nil, err
	}
	if message != nil {
		trimmed := strings.TrimSpace(*message)
		if trimmed == "" {
			return nil, ErrBulletinInvalid
		}
		b.Message = trimmed
	}
	if active != nil {
		b.Active = *active
	}
	if err := s.store.UpdateBulletin(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BulletinService) Delete(id string) error {
	return s.store.DeleteBulletin(id)
}
