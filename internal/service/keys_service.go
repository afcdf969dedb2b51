package service

import (
	"context"
	"errors"
	"strings"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/repository"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// ApiKeyService resolves caller credentials. Keys are issued elsewhere.
type ApiKeyService interface {
	GetUserID(ctx context.Context, apiKey string) (int64, error)
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return 0, ErrInvalidAPIKey
	}

	userID, err := s.k.GetUserID(ctx, apiKey)
	if errors.Is(err, common.ErrNotFound) {
		return 0, ErrInvalidAPIKey
	}
	return userID, err
}
