package mocks

import (
	"context"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockAdapters implements every step adapter interface with one mock.
type MockAdapters struct {
	mock.Mock
}

// Set returns an adapter set backed by m. Shorts and Reporter stay unset.
func (m *MockAdapters) Set() adapters.Set {
	return adapters.Set{
		News:      m,
		Script:    m,
		Voice:     m,
		Video:     m,
		Thumbnail: m,
		Upload:    m,
		CrossPost: m,
		Alerter:   m,
	}
}

func (m *MockAdapters) FetchNews(ctx context.Context, maxArticles int) ([]models.Headline, error) {
	args := m.Called(ctx, maxArticles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Headline), args.Error(1)
}

func (m *MockAdapters) WriteScript(ctx context.Context, date string, headlines []models.Headline) (models.Script, error) {
	args := m.Called(ctx, date, headlines)

	return args.Get(0).(models.Script), args.Error(1)
}

func (m *MockAdapters) SynthesizeVoice(ctx context.Context, bodyText, dir string) (models.Narration, error) {
	args := m.Called(ctx, bodyText, dir)

	return args.Get(0).(models.Narration), args.Error(1)
}

func (m *MockAdapters) BuildVideo(ctx context.Context, narration models.Narration, script models.Script, dir string) (models.Video, error) {
	args := m.Called(ctx, narration, script, dir)

	return args.Get(0).(models.Video), args.Error(1)
}

func (m *MockAdapters) BuildThumbnail(ctx context.Context, title, dir string) (models.Thumbnail, error) {
	args := m.Called(ctx, title, dir)

	return args.Get(0).(models.Thumbnail), args.Error(1)
}

func (m *MockAdapters) Upload(ctx context.Context, req models.UploadRequest) (models.Upload, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(models.Upload), args.Error(1)
}

func (m *MockAdapters) CrossPost(ctx context.Context, platformVideoID, title string) error {
	args := m.Called(ctx, platformVideoID, title)

	return args.Error(0)
}

func (m *MockAdapters) Alert(ctx context.Context, date, message string) error {
	args := m.Called(ctx, date, message)

	return args.Error(0)
}

func (m *MockAdapters) ShortClip(ctx context.Context, video models.Video, script models.Script, dir string) (models.Short, error) {
	args := m.Called(ctx, video, script, dir)

	return args.Get(0).(models.Short), args.Error(1)
}

func (m *MockAdapters) Summary(ctx context.Context, summary models.RunSummary) error {
	args := m.Called(ctx, summary)

	return args.Error(0)
}
