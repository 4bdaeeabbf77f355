package service

import (
	"time"

	"golang.org/x/oauth2"

	"viammo.app/tripscan/internal/queue"
	"viammo.app/tripscan/internal/taskstore"
)

type Services struct {
	store         taskstore.Store
	credentials   taskstore.Credentials
	producer      queue.Producer
	oauth         *oauth2.Config
	credentialTTL time.Duration
}

func NewServices(store taskstore.Store, credentials taskstore.Credentials, producer queue.Producer, oauth *oauth2.Config, credentialTTL time.Duration) *Services {
	return &Services{
		store:         store,
		credentials:   credentials,
		producer:      producer,
		oauth:         oauth,
		credentialTTL: credentialTTL,
	}
}

func (s *Services) Scans() ScanService {
	return NewScanService(s.store, s.credentials, s.producer, s.credentialTTL)
}

func (s *Services) Auth() AuthService {
	return NewAuthService(s.oauth)
}
