// Package zoopla finds the postcode of a street by scraping Zoopla's house
// price pages.
package zoopla

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/couchcryptid/ltn-survey/internal/domain"
	"github.com/couchcryptid/ltn-survey/internal/observability"
)

const (
	provider = "zoopla"

	// titleClass marks the address heading of each sale card. The heading
	// reads "<house>, <postcode>".
	titleClass = "hp-card__title"
)

// Client implements domain.PostcodeFinder.
type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Zoopla scraper.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Search returns the postcode of the first sale listed for street under
// locality, or "" when the page lists none.
func (c *Client) Search(ctx context.Context, street, locality string) (string, error) {
	u := fmt.Sprintf("%s/house-prices/%s/%s", c.baseURL, url.PathEscape(strings.ToLower(locality)), url.PathEscape(slug(street)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LookupAPIDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return "", fmt.Errorf("zoopla request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.LookupRequests.WithLabelValues(provider, "empty").Inc()
		return "", nil
	case resp.StatusCode != http.StatusOK:
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("zoopla error: status %d: %s", resp.StatusCode, body)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(provider, "error").Inc()
		return "", fmt.Errorf("parse page: %w", err)
	}

	postcode := postcodeFromTitle(firstWithClass(doc, titleClass))
	if postcode == "" {
		c.metrics.LookupRequests.WithLabelValues(provider, "empty").Inc()
		return "", nil
	}
	c.metrics.LookupRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("postcode found", "street", street, "locality", locality, "postcode", postcode)
	return postcode, nil
}

// slug lower-cases a street name and joins its words with hyphens.
func slug(street string) string {
	return strings.Join(strings.Fields(strings.ToLower(street)), "-")
}

// postcodeFromTitle takes the second comma-separated field of a card title.
func postcodeFromTitle(title string) string {
	parts := strings.Split(strings.TrimSpace(title), ",")
	if len(parts) < 2 {
		return ""
	}
	return domain.NormalizePostcode(parts[1])
}

// firstWithClass returns the text of the first element, in document order,
// whose class list contains class.
func firstWithClass(n *html.Node, class string) string {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return textContent(n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if t := firstWithClass(child, class); t != "" {
			return t
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
