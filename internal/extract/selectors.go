package extract

// X.com DOM selectors
// These are isolated here because X changes their DOM frequently
// Update these when scraping breaks

const (
	// ListingContainer marks a loaded followers page.
	ListingContainer = `[data-testid="primaryColumn"]`
)

// scanJS enumerates clickable listing elements and returns, per element,
// its visible span text fragments in DOM order. Parsing the fragments into
// records happens Go-side (see ParseListingItem) so it stays testable
// without a browser.
const scanJS = `
	(function() {
		const rows = [];
		document.querySelectorAll('button').forEach((button) => {
			const texts = Array.from(button.querySelectorAll('span'))
				.map((span) => span.textContent)
				.filter((text) => text && text.trim() !== '');
			if (texts.length > 0) {
				rows.push(texts);
			}
		});
		return rows;
	})()
`

const (
	scrollJS = `window.scrollTo(0, document.body.scrollHeight)`
	heightJS = `document.body.scrollHeight`
)
