package vision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/internal/resilience"
)

// fakeModel replays answers in order and records prompts.
type fakeModel struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	prompts []Prompt
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Complete(_ context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, p)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var answer string
	if i < len(f.answers) {
		answer = f.answers[i]
	}
	return answer, err
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error) {
	args := m.Called(ctx, pdfPath, page, dpi)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func visionConfig() config.VisionConfig {
	return config.VisionConfig{
		Provider:         "fake",
		DPI:              200,
		Question:         config.DefaultQuestion,
		TimeoutSecs:      5,
		BreakerThreshold: 5,
		BreakerResetSecs: 60,
	}
}

var pngStub = []byte{0x89, 'P', 'N', 'G'}

func TestAccept(t *testing.T) {
	tests := []struct {
		answer string
		want   string
		ok     bool
	}{
		{"4509836", "4509836", true},
		{" 4,509,836 \n", "4509836", true},
		{"4 509 836", "4509836", true},
		{"٤٬٥٠٩٬٨٣٦", "4509836", true},
		{"SAR 4,509,836", "", false},
		{"4,509,836.50", "", false},
		{"(4,509,836)", "", false},
		{"I could not find the value.", "", false},
		{"", "", false},
		{" , ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, ok := Accept(tt.answer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFromImage_Digits(t *testing.T) {
	m := &fakeModel{answers: []string{"4,509,836"}}
	s := NewStrategy(m, nil, visionConfig())

	value, ok := s.ExtractFromImage(context.Background(), pngStub, "")
	require.True(t, ok)
	assert.Equal(t, "4509836", value)

	require.Equal(t, 1, m.calls())
	assert.Equal(t, config.DefaultQuestion, m.prompts[0].Question)
	assert.Equal(t, pngStub, m.prompts[0].Image)
	assert.Equal(t, "image/png", m.prompts[0].MediaType)
}

func TestExtractFromImage_ProseFailsSoft(t *testing.T) {
	m := &fakeModel{answers: []string{"The retained earnings are 4,509,836 SAR."}}
	value, ok := NewStrategy(m, nil, visionConfig()).ExtractFromImage(context.Background(), pngStub, "q")
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestExtractFromImage_ErrorFailsSoft(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("invalid image")}}
	_, ok := NewStrategy(m, nil, visionConfig()).ExtractFromImage(context.Background(), pngStub, "q")
	assert.False(t, ok)
	assert.Equal(t, 1, m.calls())
}

func TestExtractFromImage_RetriesTransient(t *testing.T) {
	m := &fakeModel{
		errs:    []error{resilience.NewTransientError(errors.New("overloaded"), 529)},
		answers: []string{"", "4509836"},
	}
	cfg := visionConfig()
	cfg.MaxRetries = 1

	value, ok := NewStrategy(m, nil, cfg).ExtractFromImage(context.Background(), pngStub, "q")
	require.True(t, ok)
	assert.Equal(t, "4509836", value)
	assert.Equal(t, 2, m.calls())
}

func TestExtractFromImage_BreakerStopsCalls(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("bad request"), errors.New("bad request"), errors.New("bad request")}}
	cfg := visionConfig()
	cfg.BreakerThreshold = 2
	s := NewStrategy(m, nil, cfg)

	for range 3 {
		_, ok := s.ExtractFromImage(context.Background(), pngStub, "q")
		assert.False(t, ok)
	}
	assert.Equal(t, 2, m.calls())
	assert.Equal(t, resilience.CircuitOpen, s.breaker.State())
}

func TestExtractFromImage_Disabled(t *testing.T) {
	s := NewStrategy(nil, nil, visionConfig())
	assert.False(t, s.Enabled())
	_, ok := s.ExtractFromImage(context.Background(), pngStub, "q")
	assert.False(t, ok)

	var nilStrategy *Strategy
	assert.False(t, nilStrategy.Enabled())
}

func TestExtractFromImage_EmptyImage(t *testing.T) {
	m := &fakeModel{answers: []string{"1"}}
	_, ok := NewStrategy(m, nil, visionConfig()).ExtractFromImage(context.Background(), nil, "q")
	assert.False(t, ok)
	assert.Zero(t, m.calls())
}

func TestExtractFromPage(t *testing.T) {
	r := &mockRenderer{}
	r.On("RenderPage", mock.Anything, "/reports/2222_2024.pdf", 5, 200).Return(pngStub, nil)
	m := &fakeModel{answers: []string{"4509836"}}

	value, ok := NewStrategy(m, r, visionConfig()).ExtractFromPage(context.Background(), "/reports/2222_2024.pdf", 5)
	require.True(t, ok)
	assert.Equal(t, "4509836", value)
	r.AssertExpectations(t)
}

func TestExtractFromPage_RenderFailure(t *testing.T) {
	r := &mockRenderer{}
	r.On("RenderPage", mock.Anything, "a.pdf", 1, 200).Return(nil, errors.New("pdftoppm: exit 1"))
	m := &fakeModel{answers: []string{"4509836"}}

	_, ok := NewStrategy(m, r, visionConfig()).ExtractFromPage(context.Background(), "a.pdf", 1)
	assert.False(t, ok)
	assert.Zero(t, m.calls())
}

func TestNewStrategy_Defaults(t *testing.T) {
	s := NewStrategy(&fakeModel{}, nil, config.VisionConfig{})
	assert.Equal(t, 200, s.dpi)
	assert.Equal(t, defaultTimeout, s.timeout)
	assert.Equal(t, config.DefaultQuestion, s.question)
	assert.Equal(t, 1, s.retry.MaxAttempts)
	assert.Equal(t, "vision:fake", s.retry.Name)
}

func TestNewModel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Vision.Provider = "none"
	m, err := NewModel(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, m)

	cfg.Vision.Provider = "openai"
	cfg.OpenAI.Key = "sk-test"
	cfg.OpenAI.Model = "gpt-4o"
	m, err = NewModel(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Name())

	cfg.Vision.Provider = "anthropic"
	cfg.Anthropic.Key = "sk-ant"
	m, err = NewModel(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Name())

	cfg.Vision.Provider = "llava"
	_, err = NewModel(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown provider "llava"`)
}
