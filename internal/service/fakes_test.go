package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeAccounts struct {
	accounts map[int64]*models.SocialAccount
}

func (f *fakeAccounts) ListByIDs(_ context.Context, ids []int64) ([]*models.SocialAccount, error) {
	var out []*models.SocialAccount
	for _, id := range ids {
		if a, ok := f.accounts[id]; ok {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// newAccounts registers one connection per platform name for user 1, with
// connection ids starting at 1.
func newAccounts(t *testing.T, store *repository.MemoryStore, platforms ...string) *fakeAccounts {
	t.Helper()
	token, err := utils.Encrypt([]byte("access-token"), utils.DeriveKey(testSecret))
	require.NoError(t, err)

	f := &fakeAccounts{accounts: map[int64]*models.SocialAccount{}}
	for i, p := range platforms {
		id := int64(i + 1)
		f.accounts[id] = &models.SocialAccount{
			ID:          id,
			UserID:      1,
			Platform:    p,
			AccountID:   fmt.Sprintf("%s-account-%d", p, id),
			AccessToken: token,
		}
		if store != nil {
			store.SetConnectionPlatform(id, p)
		}
	}
	return f
}

type fakeStorage struct {
	mu         sync.Mutex
	objects    map[string][]byte
	deleted    []string
	failDelete bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://upload.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeStorage) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (f *fakeStorage) Upload(_ context.Context, key string, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, common.Storage(fmt.Errorf("no such key %s", key))
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return common.Storage(fmt.Errorf("delete %s: bucket unavailable", key))
	}
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type fakeTasks struct {
	mu          sync.Mutex
	published   []string
	processed   []string
	cleaned     [][]string
	failCleanup bool
}

func (f *fakeTasks) EnqueuePublish(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, groupID)
	return nil
}

func (f *fakeTasks) EnqueueMediaProcess(_ context.Context, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, mediaID)
	return nil
}

func (f *fakeTasks) EnqueueMediaCleanup(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCleanup {
		return fmt.Errorf("redis unavailable")
	}
	f.cleaned = append(f.cleaned, keys)
	return nil
}

type publishCall struct {
	platform string
	req      transfer.RelayPublishRequest
}

type fakeClient struct {
	mu      sync.Mutex
	calls   []publishCall
	publish func(ctx context.Context, platform string, req *transfer.RelayPublishRequest) (string, error)
}

func (f *fakeClient) Publish(ctx context.Context, platform string, req *transfer.RelayPublishRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, publishCall{platform: platform, req: *req})
	n := len(f.calls)
	f.mu.Unlock()

	if f.publish != nil {
		return f.publish(ctx, platform, req)
	}
	return fmt.Sprintf("%s-post-%d", platform, n), nil
}

func (f *fakeClient) callsFor(platform string) []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishCall
	for _, c := range f.calls {
		if c.platform == platform {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
