package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readcomic/internal/sandbox"
)

const (
	defaultURL  = "https://site.test/Scripts/rguard.min.js"
	observedURL = "https://cdn.site.test/Scripts/rguard.min.js?v=2"
	loaderBody  = "var guarded = window.navigator.webdriver; var loaderReady = true;"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchScript(ctx context.Context, url string, maxAge time.Duration) ([]byte, error) {
	args := m.Called(ctx, url, maxAge)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

func TestCacheBuildsOnce(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchScript", mock.Anything, defaultURL, DefaultMaxAge).Return([]byte(loaderBody), nil).Once()

	cache := NewCache(fetcher, defaultURL, nil, nil)

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), cache.Builds())
	assert.Equal(t, defaultURL, first.SourceURL)
	fetcher.AssertExpectations(t)
}

func TestCacheRebuildsOnNewSource(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchScript", mock.Anything, defaultURL, DefaultMaxAge).Return([]byte(loaderBody), nil).Once()
	fetcher.On("FetchScript", mock.Anything, observedURL, HintedMaxAge).Return([]byte(loaderBody), nil).Once()

	cache := NewCache(fetcher, defaultURL, nil, nil)

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.ObserveSourceURL(observedURL)
	assert.Equal(t, observedURL, cache.SourceURL())

	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, observedURL, second.SourceURL)

	// The program handed out earlier is untouched.
	assert.Equal(t, defaultURL, first.SourceURL)
	assert.NotNil(t, first.Compiled())

	cache.ObserveSourceURL(observedURL)
	third, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, third)
	assert.Equal(t, int64(2), cache.Builds())
	fetcher.AssertExpectations(t)
}

func TestCacheIgnoresEmptyHint(t *testing.T) {
	cache := NewCache(&mockFetcher{}, defaultURL, nil, nil)
	cache.ObserveSourceURL("")
	assert.Equal(t, defaultURL, cache.SourceURL())
}

func TestCacheFetchFailure(t *testing.T) {
	errDown := errors.New("connection refused")
	fetcher := &mockFetcher{}
	fetcher.On("FetchScript", mock.Anything, defaultURL, DefaultMaxAge).Return(nil, errDown)

	cache := NewCache(fetcher, defaultURL, nil, nil)

	p, err := cache.Get(context.Background())
	assert.Nil(t, p)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, int64(0), cache.Builds())
}

func TestCacheKeepsServingPreviousProgram(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchScript", mock.Anything, defaultURL, DefaultMaxAge).Return([]byte(loaderBody), nil).Once()
	fetcher.On("FetchScript", mock.Anything, observedURL, HintedMaxAge).Return(nil, errors.New("timeout")).Once()

	cache := NewCache(fetcher, defaultURL, nil, nil)
	clock := time.Now()
	cache.now = func() time.Time { return clock }

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.ObserveSourceURL(observedURL)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Within the retry delay the failed source is not fetched again.
	third, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, third)
	fetcher.AssertNumberOfCalls(t, "FetchScript", 2)

	fetcher.On("FetchScript", mock.Anything, observedURL, HintedMaxAge).Return([]byte(loaderBody), nil).Once()
	clock = clock.Add(2 * retryDelay)

	fourth, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, observedURL, fourth.SourceURL)
	fetcher.AssertExpectations(t)
}

func TestCacheConcurrentGet(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchScript", mock.Anything, defaultURL, DefaultMaxAge).Return([]byte(loaderBody), nil).Once()

	cache := NewCache(fetcher, defaultURL, nil, nil)

	var wg sync.WaitGroup
	programs := make([]*Program, 16)
	for i := range programs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := cache.Get(context.Background())
			assert.NoError(t, err)
			programs[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range programs {
		assert.Same(t, programs[0], p)
	}
	assert.Equal(t, int64(1), cache.Builds())
}

func TestCompileRejectsBadBody(t *testing.T) {
	_, err := Compile(defaultURL, nil)
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = Compile(defaultURL, []byte("function ( {"))
	assert.Error(t, err)
}

func TestProgramNeutralizesGlobals(t *testing.T) {
	program, err := Compile(defaultURL, []byte(loaderBody))
	require.NoError(t, err)

	rt, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	require.NoError(t, rt.Load(ctx, program.Compiled()))

	tests := []struct {
		name string
		expr string
	}{
		{"loader ran", "loaderReady === true"},
		{"href is empty", "location.href === '' && window.location.href === ''"},
		{"calls return proxies", "typeof document.getElementById('x').appendChild() === 'function'"},
		{"constructors return proxies", "typeof new window.Image() === 'function'"},
		{"jquery stub", "typeof $('#main').find('img') === 'function'"},
		{"assignments stick", "(document.title = 'x', document.title === 'x')"},
		{"console is inert", "(console.log('hi'), true)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := rt.Evaluate(ctx, tt.expr)
			require.NoError(t, err)
			assert.True(t, val.IsTrue(), tt.expr)
		})
	}
}

func TestAtobPolyfill(t *testing.T) {
	program, err := Compile(defaultURL, []byte("var decodedAtLoad = atob('aGk=');"))
	require.NoError(t, err)

	rt, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer rt.Close()

	ctx := context.Background()
	require.NoError(t, rt.Load(ctx, program.Compiled()))

	tests := []struct {
		name string
		expr string
	}{
		{"hoisted above loader", "decodedAtLoad === 'hi'"},
		{"padded", "atob('aGVsbG8=') === 'hello'"},
		{"unpadded", "atob('aGVsbG8') === 'hello'"},
		{"whitespace", "atob(' aGVs\\nbG8= ') === 'hello'"},
		{"url", "atob('aHR0cHM6Ly9ibG9nZ2VyLmdvb2dsZXVzZXJjb250ZW50LmNvbS9pbWcucG5n') === 'https://blogger.googleusercontent.com/img.png'"},
		{"empty", "atob('') === ''"},
		{"rejects bad length", "(function () { try { atob('abcde'); return false } catch (e) { return e instanceof TypeError } })()"},
		{"rejects bad chars", "(function () { try { atob('ab*d'); return false } catch (e) { return e instanceof TypeError } })()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := rt.Evaluate(ctx, tt.expr)
			require.NoError(t, err)
			assert.True(t, val.IsTrue(), tt.expr)
		})
	}
}
