package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clip-studio/internal/aws"
	"clip-studio/internal/models"
	"clip-studio/internal/storage"
)

// MockS3Service implements aws.S3Service for manager tests
type MockS3Service struct {
	mock.Mock
}

func (m *MockS3Service) UploadFile(ctx context.Context, req aws.UploadRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockS3Service) GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	args := m.Called(ctx, key, expiration)
	return args.String(0), args.Error(1)
}

func (m *MockS3Service) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockS3Service) HeadObject(ctx context.Context, key string) (*aws.ObjectInfo, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aws.ObjectInfo), args.Error(1)
}

func (m *MockS3Service) TestConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newTestDB(t *testing.T) *storage.SQLiteDatabase {
	t.Helper()
	db, err := storage.NewSQLiteDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// writeDraft creates a draft backed by a real file in dir
func writeDraft(t *testing.T, dir string) *models.DraftAsset {
	t.Helper()
	path := filepath.Join(dir, "draft-"+time.Now().Format("150405.000000000")+".mp4")
	require.NoError(t, os.WriteFile(path, []byte("encoded frames"), 0600))
	draft, err := models.NewDraftAsset(path, 7*time.Second)
	require.NoError(t, err)
	return draft
}
