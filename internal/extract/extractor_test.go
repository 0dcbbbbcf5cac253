package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage scripts the listing page: scans[i] is what the i-th scan pass
// sees, heights[i] is the i-th height read. The last element of each
// repeats once the script runs out.
type fakePage struct {
	scans   [][][]string
	heights []int64

	navigated string
	waitErr   error
	scanErrAt int // 1-based scan call that fails, 0 for never

	scanN, heightN, scrolls int
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = url
	return nil
}

func (f *fakePage) WaitListing(context.Context) error { return f.waitErr }

func (f *fakePage) ScanFragments(context.Context) ([][]string, error) {
	f.scanN++
	if f.scanErrAt > 0 && f.scanN >= f.scanErrAt {
		return nil, errors.New("page went away")
	}
	i := f.scanN - 1
	if i >= len(f.scans) {
		i = len(f.scans) - 1
	}
	return f.scans[i], nil
}

func (f *fakePage) ScrollToBottom(context.Context) error {
	f.scrolls++
	return nil
}

func (f *fakePage) ScrollHeight(context.Context) (int64, error) {
	i := f.heightN
	if i >= len(f.heights) {
		i = len(f.heights) - 1
	}
	f.heightN++
	return f.heights[i], nil
}

func newTestExtractor(page PageDriver, opts ...Option) *Extractor {
	opts = append([]Option{WithSettle(time.Millisecond)}, opts...)
	return New(page, zerolog.Nop(), opts...)
}

func item(name, handle, bio string) []string {
	return []string{name, "@" + handle, "フォローされています", bio}
}

func TestRunDedupesAcrossRounds(t *testing.T) {
	page := &fakePage{
		scans: [][][]string{
			{item("A", "a", "bio a"), item("B", "b", "bio b")},
			{item("B", "b", "bio b"), item("C", "c", "bio c")},
		},
		// Initial 1000, grows to 2000 after the first scroll, stable
		// after the second.
		heights: []int64{1000, 2000, 2000},
	}

	users, err := newTestExtractor(page).Run(context.Background(), "someone", "")
	require.NoError(t, err)

	require.Len(t, users, 3)
	assert.Equal(t, "a", users[0].Handle)
	assert.Equal(t, "b", users[1].Handle)
	assert.Equal(t, "c", users[2].Handle)
	assert.Equal(t, 2, page.scrolls)
	assert.Equal(t, "https://x.com/someone/followers", page.navigated)
}

func TestRunOverrideURL(t *testing.T) {
	page := &fakePage{
		scans:   [][][]string{{item("A", "a", "")}},
		heights: []int64{500, 500},
	}
	_, err := newTestExtractor(page).Run(context.Background(), "ignored",
		"https://x.com/other/followers")
	require.NoError(t, err)
	assert.Equal(t, "https://x.com/other/followers", page.navigated)
}

func TestRunMaxRoundsBoundsGrowingPage(t *testing.T) {
	page := &fakePage{
		scans:   [][][]string{{item("A", "a", "")}},
		heights: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9},
	}

	users, err := newTestExtractor(page, WithMaxRounds(3)).
		Run(context.Background(), "someone", "")
	require.NoError(t, err)

	assert.Len(t, users, 1)
	assert.Equal(t, 3, page.scanN)
	assert.Equal(t, 3, page.scrolls)
}

func TestRunReturnsPartialResultsOnScanError(t *testing.T) {
	page := &fakePage{
		scans: [][][]string{
			{item("A", "a", ""), item("B", "b", "")},
		},
		heights:   []int64{1000, 2000, 3000},
		scanErrAt: 2,
	}

	users, err := newTestExtractor(page).Run(context.Background(), "someone", "")
	require.Error(t, err)
	assert.Len(t, users, 2)
}

func TestRunCancellationDuringSettle(t *testing.T) {
	page := &fakePage{
		scans:   [][][]string{{item("A", "a", "")}},
		heights: []int64{1000, 2000, 3000},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ex := New(page, zerolog.Nop(), WithSettle(time.Hour))
	users, err := ex.Run(ctx, "someone", "")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, users, 1, "already collected records survive cancellation")
}

func TestRunListingNeverAppears(t *testing.T) {
	page := &fakePage{waitErr: ErrListingNotFound, heights: []int64{0}}
	_, err := newTestExtractor(page).Run(context.Background(), "someone", "")
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestRunAppliesKeywordFilter(t *testing.T) {
	page := &fakePage{
		scans: [][][]string{{
			item("A", "a", "Goエンジニア"),
			item("B", "b", "人事担当"),
		}},
		heights: []int64{100, 100},
	}

	users, err := newTestExtractor(page, WithKeywordFilter(SearchPartial, []string{"エンジニア"})).
		Run(context.Background(), "someone", "")
	require.NoError(t, err)

	require.Len(t, users, 1)
	assert.Equal(t, "a", users[0].Handle)
}
